// Package scheduler runs the capture loop of a recording session.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/timelapse/timelapse/internal/capture"
	"github.com/timelapse/timelapse/internal/logging"
	"github.com/timelapse/timelapse/internal/store"
)

const statsLogInterval = 30 * time.Second

// FrameSink receives captured frames. *store.Store implements it.
type FrameSink interface {
	NextIndex() int
	Persist(index int, data []byte) (store.Frame, error)
}

// Options configures a Scheduler.
type Options struct {
	Interval time.Duration
	Capturer capture.Capturer
	Sink     FrameSink
	Logger   *slog.Logger

	// OnFrame is called after each persisted frame, on the scheduler goroutine.
	OnFrame func(store.Frame)
	// OnFailure is called after each failed tick, on the scheduler goroutine.
	OnFailure func(error)
}

// Stats summarises scheduler behaviour.
type Stats struct {
	Ticks       uint64
	Captures    uint64
	Failures    uint64
	LastError   error
	AvgCapture  time.Duration
	LastCapture time.Time
}

// Scheduler fires one capture per interval. Ticks never overlap: a capture
// that outlasts its slot pushes the next tick back until it returns.
type Scheduler struct {
	opts   Options
	logger *slog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}

	ticks        atomic.Uint64
	captures     atomic.Uint64
	failures     atomic.Uint64
	captureNanos atomic.Uint64
	lastCapture  atomic.Int64
	lastErr      atomic.Pointer[error]
}

// New validates opts and returns a stopped Scheduler.
func New(opts Options) (*Scheduler, error) {
	if opts.Interval <= 0 {
		return nil, errors.New("interval must be positive")
	}
	if opts.Capturer == nil {
		return nil, errors.New("capturer is required")
	}
	if opts.Sink == nil {
		return nil, errors.New("frame sink is required")
	}
	return &Scheduler{
		opts:   opts,
		logger: logging.OrDiscard(opts.Logger),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// Start launches the capture loop. The first capture fires immediately.
// ctx is handed to the capturer; stopping the scheduler does not cancel it,
// so an in-flight capture always runs to completion.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() { go s.loop(ctx) })
}

// StopAndDrain stops scheduling ticks and blocks until the tick in progress,
// if any, has returned. After it returns no further Persist call is made.
// It is safe to call more than once, and before Start.
func (s *Scheduler) StopAndDrain() {
	s.stopOnce.Do(func() { close(s.stop) })
	// Never started: nothing to drain, and Start becomes a no-op.
	s.startOnce.Do(func() { close(s.done) })
	<-s.done
}

// Stats returns a snapshot of the loop counters.
func (s *Scheduler) Stats() Stats {
	captures := s.captures.Load()
	var avg time.Duration
	if captures > 0 {
		avg = time.Duration(s.captureNanos.Load() / captures)
	}
	var last time.Time
	if ns := s.lastCapture.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	var lastErr error
	if p := s.lastErr.Load(); p != nil {
		lastErr = *p
	}
	return Stats{
		Ticks:       s.ticks.Load(),
		Captures:    captures,
		Failures:    s.failures.Load(),
		LastError:   lastErr,
		AvgCapture:  avg,
		LastCapture: last,
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	logTicker := time.NewTicker(statsLogInterval)
	defer logTicker.Stop()

	timer := time.NewTimer(0)
	defer timer.Stop()
	next := time.Now()

	for {
		select {
		case <-s.stop:
			return
		case <-logTicker.C:
			s.logStats()
			continue
		case <-timer.C:
		}

		// A stop that raced with the timer wins.
		select {
		case <-s.stop:
			return
		default:
		}

		s.tick(ctx)

		next = next.Add(s.opts.Interval)
		wait := time.Until(next)
		if wait < 0 {
			// Overran the slot: fire now and re-anchor instead of bursting.
			next = time.Now()
			wait = 0
		}
		timer.Reset(wait)
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	s.ticks.Add(1)
	index := s.opts.Sink.NextIndex()

	start := time.Now()
	data, err := s.opts.Capturer.Capture(ctx)
	elapsed := time.Since(start)
	if err != nil {
		s.fail(index, err)
		return
	}

	frame, err := s.opts.Sink.Persist(index, data)
	if err != nil {
		s.fail(index, err)
		return
	}
	frame.CaptureDuration = elapsed

	s.captures.Add(1)
	s.captureNanos.Add(uint64(elapsed.Nanoseconds()))
	s.lastCapture.Store(time.Now().UnixNano())

	s.logger.Debug("frame persisted", "frame", frame.Index, "bytes", frame.Size, "capture", elapsed)
	if s.opts.OnFrame != nil {
		s.opts.OnFrame(frame)
	}
}

func (s *Scheduler) fail(index int, err error) {
	s.failures.Add(1)
	s.lastErr.Store(&err)
	s.logger.Warn("capture skipped", "frame", index, "error", err)
	if s.opts.OnFailure != nil {
		s.opts.OnFailure(err)
	}
}

func (s *Scheduler) logStats() {
	st := s.Stats()
	s.logger.Debug("capture.stats",
		"ticks", st.Ticks,
		"captures", st.Captures,
		"failures", st.Failures,
		"avg_capture", st.AvgCapture,
	)
}
