// Package session owns the recording lifecycle: it starts the capture
// scheduler, stops and drains it, runs the encoder over the captured frames
// and cleans up, exposing the progress as status snapshots.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/timelapse/timelapse/internal/capture"
	"github.com/timelapse/timelapse/internal/encoder"
	"github.com/timelapse/timelapse/internal/logging"
	"github.com/timelapse/timelapse/internal/scheduler"
	"github.com/timelapse/timelapse/internal/store"
)

// sessionSeq makes session IDs unique within the process even when two
// sessions start in the same second.
var sessionSeq atomic.Uint64

// Encoder runs one encode. *encoder.Encoder implements it.
type Encoder interface {
	Encode(ctx context.Context, job encoder.Job) (*encoder.Result, error)
}

// Options configures a Controller.
type Options struct {
	OutputRoot string
	VideoExt   string
	Capturer   capture.Capturer
	Encoder    Encoder
	Logger     *slog.Logger

	// MinFreeBytes makes Start fail when the output root has less space.
	MinFreeBytes uint64
	// FreeBytes probes free space; defaults to store.FreeBytes.
	FreeBytes func(path string) (uint64, error)
	// Now defaults to time.Now.
	Now func() time.Time
}

// Session describes one recording run.
type Session struct {
	ID         string
	Directory  string
	OutputPath string
	Settings   Settings
	Interval   time.Duration
	StartedAt  time.Time
}

// Result is the outcome of a successful encode.
type Result struct {
	SessionID      string
	OutputPath     string
	Size           int64
	FrameCount     int
	VideoSeconds   float64
	EncodeDuration time.Duration
}

// StatusListener receives a snapshot after every tick and state transition.
// It runs on the goroutine that caused the change and must not block.
type StatusListener func(Status)

// Controller is the session state machine:
//
//	Idle -> Start -> Recording -> Stop -> Finalizing -> Idle
//	                                      Finalizing -> Failed
//	Failed -> Retry -> Finalizing,  Failed -> Reset -> Idle
//
// mu guards the fields below it and is never held across capture, encoding
// or directory removal, so Status never waits on I/O.
type Controller struct {
	opts   Options
	logger *slog.Logger

	mu         sync.Mutex
	state      State
	stopping   bool // Stop is draining the scheduler; state is still Recording
	current    *Session
	store      *store.Store
	sched      *scheduler.Scheduler
	manifest   *store.Manifest
	lastErr    error
	lastResult *Result
	listeners  []StatusListener
}

// New validates opts and returns an idle Controller.
func New(opts Options) (*Controller, error) {
	if strings.TrimSpace(opts.OutputRoot) == "" {
		return nil, errors.New("output root is required")
	}
	if opts.Capturer == nil {
		return nil, errors.New("capturer is required")
	}
	if opts.Encoder == nil {
		return nil, errors.New("encoder is required")
	}
	if opts.VideoExt == "" {
		opts.VideoExt = "mp4"
	}
	opts.VideoExt = strings.TrimPrefix(opts.VideoExt, ".")
	if opts.FreeBytes == nil {
		opts.FreeBytes = store.FreeBytes
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{opts: opts, logger: logging.OrDiscard(opts.Logger)}, nil
}

// OnStatus registers a listener.
func (c *Controller) OnStatus(l StatusListener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

// Start begins a new recording session.
func (c *Controller) Start(ctx context.Context, settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if err := c.checkIdle(); err != nil {
		return err
	}
	if err := c.checkFreeSpace(); err != nil {
		return err
	}

	started := c.opts.Now()
	id := fmt.Sprintf("%s-%d", started.UTC().Format("20060102-150405"), sessionSeq.Add(1))
	st, err := store.Create(c.opts.OutputRoot, id, capture.ImageExt)
	if err != nil {
		return err
	}

	sess := &Session{
		ID:         id,
		Directory:  st.Dir(),
		OutputPath: filepath.Join(c.opts.OutputRoot, id+"."+c.opts.VideoExt),
		Settings:   settings,
		Interval:   settings.Interval(),
		StartedAt:  started,
	}
	manifest := &store.Manifest{
		SessionID:       id,
		StartedAt:       started.UTC(),
		FrameRate:       settings.FrameRate,
		SpeedMultiplier: settings.SpeedMultiplier,
		IntervalMS:      settings.IntervalMS(),
		OutputPath:      sess.OutputPath,
		State:           StateRecording.String(),
	}
	if err := st.WriteManifest(manifest); err != nil {
		_ = st.Purge()
		return fmt.Errorf("failed to initialise session: %w", err)
	}

	sched, err := scheduler.New(scheduler.Options{
		Interval:  sess.Interval,
		Capturer:  c.opts.Capturer,
		Sink:      st,
		Logger:    c.logger.With("session_id", id),
		OnFrame:   func(store.Frame) { c.emit() },
		OnFailure: func(error) { c.emit() },
	})
	if err != nil {
		_ = st.Purge()
		return err
	}

	c.mu.Lock()
	if c.state != StateIdle {
		// Lost a race with a concurrent Start.
		c.mu.Unlock()
		_ = st.Purge()
		return fmt.Errorf("%w: state is %s", ErrAlreadyRecording, c.state)
	}
	c.current, c.store, c.sched, c.manifest = sess, st, sched, manifest
	c.lastErr = nil
	c.state = StateRecording
	c.mu.Unlock()

	c.logger.Info("recording started",
		"session_id", id,
		"dir", sess.Directory,
		"frame_rate", settings.FrameRate,
		"speed_multiplier", settings.SpeedMultiplier,
		"interval", sess.Interval,
	)
	c.emit()

	// The capture loop outlives the caller's request; only Stop ends it.
	sched.Start(context.WithoutCancel(ctx))
	return nil
}

// Stop ends the recording, waits for the in-flight capture, then switches to
// Finalizing and encodes the frames. On success the session directory is
// removed and the controller is Idle; a failed removal is returned as
// store.ErrCleanupFailure together with the result. On encode failure the controller is Failed and the
// directory is left untouched for Retry or inspection.
//
// Stop blocks for the whole encode and cannot be cancelled through ctx.
func (c *Controller) Stop(ctx context.Context) (*Result, error) {
	c.mu.Lock()
	if c.state != StateRecording || c.stopping {
		state := c.state
		c.mu.Unlock()
		if state == StateRecording {
			return nil, fmt.Errorf("%w: stop already in progress", ErrNotRecording)
		}
		return nil, fmt.Errorf("%w: state is %s", ErrNotRecording, state)
	}
	sess, st, sched := c.current, c.store, c.sched
	c.stopping = true
	c.mu.Unlock()
	c.emit()

	// The in-flight capture may still persist a frame; Finalizing is only
	// reported once the frame count is final.
	sched.StopAndDrain()
	st.Seal()

	c.mu.Lock()
	c.stopping = false
	c.state = StateFinalizing
	c.mu.Unlock()
	c.emit()

	stats := sched.Stats()
	c.logger.Info("recording stopped",
		"session_id", sess.ID,
		"frames", st.FrameCount(),
		"bytes", st.TotalBytes(),
		"capture_failures", stats.Failures,
		"avg_capture", stats.AvgCapture,
	)
	return c.finalize(ctx, sess, st)
}

// Retry re-runs the encode of a Failed session against its preserved frames.
func (c *Controller) Retry(ctx context.Context) (*Result, error) {
	c.mu.Lock()
	if c.state != StateFailed {
		state := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: state is %s", ErrNotFailed, state)
	}
	sess, st := c.current, c.store
	c.state = StateFinalizing
	c.lastErr = nil
	c.mu.Unlock()
	c.emit()

	c.logger.Info("retrying encode", "session_id", sess.ID, "frames", st.FrameCount())
	return c.finalize(ctx, sess, st)
}

// Reset discards a Failed session: its directory is removed and the
// controller returns to Idle. If removal fails the controller stays Failed.
func (c *Controller) Reset() error {
	c.mu.Lock()
	if c.state != StateFailed {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: state is %s", ErrNotFailed, state)
	}
	sess, st := c.current, c.store
	c.mu.Unlock()

	if err := st.Purge(); err != nil {
		c.logger.Error("discard failed", "session_id", sess.ID, "error", err)
		return err
	}

	c.mu.Lock()
	c.clearLocked()
	c.lastErr = nil
	c.state = StateIdle
	c.mu.Unlock()

	c.logger.Info("session discarded", "session_id", sess.ID)
	c.emit()
	return nil
}

func (c *Controller) finalize(ctx context.Context, sess *Session, st *store.Store) (*Result, error) {
	c.mu.Lock()
	manifest := c.manifest
	c.mu.Unlock()

	manifest.State = StateFinalizing.String()
	manifest.Diagnostic = ""
	if err := st.WriteManifest(manifest); err != nil {
		c.logger.Warn("manifest update failed", "session_id", sess.ID, "error", err)
	}

	res, err := c.opts.Encoder.Encode(context.WithoutCancel(ctx), encoder.Job{
		Pattern:    st.Pattern(),
		FrameCount: st.FrameCount(),
		FrameRate:  sess.Settings.FrameRate,
		OutputPath: sess.OutputPath,
	})
	if err != nil {
		manifest.State = StateFailed.String()
		manifest.Diagnostic = err.Error()
		if werr := st.WriteManifest(manifest); werr != nil {
			c.logger.Warn("manifest update failed", "session_id", sess.ID, "error", werr)
		}

		c.mu.Lock()
		c.lastErr = err
		c.state = StateFailed
		c.mu.Unlock()

		c.logger.Error("encode failed", "session_id", sess.ID, "dir", sess.Directory, "error", err)
		c.emit()
		return nil, err
	}

	result := &Result{
		SessionID:      sess.ID,
		OutputPath:     res.OutputPath,
		Size:           res.Size,
		FrameCount:     res.FrameCount,
		VideoSeconds:   float64(res.FrameCount) / float64(sess.Settings.FrameRate),
		EncodeDuration: res.Duration,
	}

	purgeErr := st.Purge()
	if purgeErr != nil {
		c.logger.Warn("session cleanup incomplete", "session_id", sess.ID, "dir", sess.Directory, "error", purgeErr)
	}

	c.mu.Lock()
	c.clearLocked()
	c.lastResult = result
	c.lastErr = purgeErr
	c.state = StateIdle
	c.mu.Unlock()

	c.logger.Info("session complete", "session_id", sess.ID, "output", result.OutputPath, "bytes", result.Size)
	c.emit()
	return result, purgeErr
}

func (c *Controller) checkIdle() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		id := ""
		if c.current != nil {
			id = c.current.ID
		}
		return fmt.Errorf("%w: session %s is %s", ErrAlreadyRecording, id, c.state)
	}
	return nil
}

func (c *Controller) checkFreeSpace() error {
	free, err := c.opts.FreeBytes(nearestExisting(c.opts.OutputRoot))
	if err != nil {
		c.logger.Debug("free space probe failed", "error", err)
		return nil
	}
	c.logger.Debug("free space", "root", c.opts.OutputRoot, "bytes", free)
	if c.opts.MinFreeBytes > 0 && free < c.opts.MinFreeBytes {
		return fmt.Errorf("%w: %d bytes free on %s, need %d", ErrInsufficientSpace, free, c.opts.OutputRoot, c.opts.MinFreeBytes)
	}
	return nil
}

func (c *Controller) clearLocked() {
	c.current, c.store, c.sched, c.manifest = nil, nil, nil, nil
}

func (c *Controller) emit() {
	c.mu.Lock()
	listeners := append([]StatusListener(nil), c.listeners...)
	c.mu.Unlock()
	if len(listeners) == 0 {
		return
	}
	st := c.Status()
	for _, l := range listeners {
		l(st)
	}
}
