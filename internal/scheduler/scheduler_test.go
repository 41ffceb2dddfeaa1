package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timelapse/timelapse/internal/capture"
	"github.com/timelapse/timelapse/internal/capture/testutil"
	"github.com/timelapse/timelapse/internal/store"
)

const waitTimeout = 5 * time.Second

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Create(t.TempDir(), "session", capture.ImageExt)
	require.NoError(t, err)
	return s
}

// capturesThen returns a capture func that delegates to inner for the first
// n calls, signals reached when call n returns, and reports the display as
// unavailable afterwards so no further frame is persisted.
func capturesThen(n int, inner func(context.Context, int) ([]byte, error), reached chan<- struct{}) func(context.Context, int) ([]byte, error) {
	return func(ctx context.Context, call int) ([]byte, error) {
		if call > n {
			return nil, capture.ErrCaptureUnavailable
		}
		data, err := inner(ctx, call)
		if call == n {
			close(reached)
		}
		return data, err
	}
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for scheduler")
	}
}

func assertContiguous(t *testing.T, s *store.Store, n int) {
	t.Helper()
	reopened, err := store.Open(s.Dir(), s.Ext())
	require.NoError(t, err, "frames on disk must be 1..N without gaps")
	assert.Equal(t, n, reopened.FrameCount())
	for i := 1; i <= n; i++ {
		assert.FileExists(t, s.FramePath(i))
	}
	assert.NoFileExists(t, s.FramePath(n+1))
}

func TestNew_Validation(t *testing.T) {
	fake := testutil.NewFakeCapturer()
	sink := newStore(t)

	tests := []struct {
		name string
		opts Options
	}{
		{"zero interval", Options{Capturer: fake, Sink: sink}},
		{"no capturer", Options{Interval: time.Second, Sink: sink}},
		{"no sink", Options{Interval: time.Second, Capturer: fake}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestScheduler_SuccessfulTicksAreContiguous(t *testing.T) {
	const n = 8
	st := newStore(t)
	reached := make(chan struct{})
	fake := testutil.NewFakeCapturer()
	fake.CaptureFunc = capturesThen(n, testutil.FailOn(), reached)

	s, err := New(Options{Interval: time.Millisecond, Capturer: fake, Sink: st})
	require.NoError(t, err)

	s.Start(context.Background())
	waitFor(t, reached)
	s.StopAndDrain()

	assert.Equal(t, n, st.FrameCount())
	assertContiguous(t, st, n)

	stats := s.Stats()
	assert.Equal(t, uint64(n), stats.Captures)
	assert.GreaterOrEqual(t, stats.Ticks, uint64(n))
	assert.False(t, stats.LastCapture.IsZero())
}

func TestScheduler_CaptureFailureReusesIndex(t *testing.T) {
	// Ten ticks with the third reporting the display unavailable.
	st := newStore(t)
	reached := make(chan struct{})
	fake := testutil.NewFakeCapturer()
	fake.CaptureFunc = capturesThen(10, testutil.FailOn(3), reached)

	var failures atomic.Int32
	s, err := New(Options{
		Interval:  time.Millisecond,
		Capturer:  fake,
		Sink:      st,
		OnFailure: func(error) { failures.Add(1) },
	})
	require.NoError(t, err)

	s.Start(context.Background())
	waitFor(t, reached)
	s.StopAndDrain()

	assert.Equal(t, 9, st.FrameCount())
	assertContiguous(t, st, 9)

	stats := s.Stats()
	assert.GreaterOrEqual(t, stats.Failures, uint64(1))
	assert.Equal(t, int32(stats.Failures), failures.Load())
	assert.ErrorIs(t, stats.LastError, capture.ErrCaptureUnavailable)
}

type flakySink struct {
	*store.Store
	failIndex int
	failed    bool
}

func (f *flakySink) Persist(index int, data []byte) (store.Frame, error) {
	if index == f.failIndex && !f.failed {
		f.failed = true
		return store.Frame{}, fmt.Errorf("%w: disk full", store.ErrIOFailure)
	}
	return f.Store.Persist(index, data)
}

func TestScheduler_WriteFailureIsAbsorbed(t *testing.T) {
	st := newStore(t)
	sink := &flakySink{Store: st, failIndex: 2}
	reached := make(chan struct{})
	fake := testutil.NewFakeCapturer()
	fake.CaptureFunc = capturesThen(5, testutil.FailOn(), reached)

	var frames []int
	s, err := New(Options{
		Interval: time.Millisecond,
		Capturer: fake,
		Sink:     sink,
		OnFrame:  func(f store.Frame) { frames = append(frames, f.Index) },
	})
	require.NoError(t, err)

	s.Start(context.Background())
	waitFor(t, reached)
	s.StopAndDrain()

	assert.Equal(t, []int{1, 2, 3, 4}, frames)
	assertContiguous(t, st, 4)
	assert.GreaterOrEqual(t, s.Stats().Failures, uint64(1))
}

func TestScheduler_StopDrainsInFlightCapture(t *testing.T) {
	st := newStore(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	fake := testutil.NewFakeCapturer()
	fake.CaptureFunc = func(_ context.Context, call int) ([]byte, error) {
		if call == 1 {
			close(entered)
			<-release
		}
		return testutil.Frame(call), nil
	}

	s, err := New(Options{Interval: time.Hour, Capturer: fake, Sink: st})
	require.NoError(t, err)
	s.Start(context.Background())
	waitFor(t, entered)

	drained := make(chan struct{})
	go func() {
		s.StopAndDrain()
		close(drained)
	}()

	select {
	case <-drained:
		t.Fatal("StopAndDrain returned while a capture was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	waitFor(t, drained)

	assert.Equal(t, 1, st.FrameCount(), "the in-flight capture must be persisted")
	assert.Equal(t, 1, fake.Calls(), "no tick after stop")
	assertContiguous(t, st, 1)
}

func TestScheduler_TicksNeverOverlap(t *testing.T) {
	st := newStore(t)
	var inFlight, maxInFlight atomic.Int32
	reached := make(chan struct{})
	fake := testutil.NewFakeCapturer()
	fake.CaptureFunc = capturesThen(5, func(_ context.Context, call int) ([]byte, error) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := maxInFlight.Load()
			if cur <= old || maxInFlight.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond) // far longer than the interval
		return testutil.Frame(call), nil
	}, reached)

	s, err := New(Options{Interval: time.Millisecond, Capturer: fake, Sink: st})
	require.NoError(t, err)
	s.Start(context.Background())
	waitFor(t, reached)
	s.StopAndDrain()

	assert.Equal(t, int32(1), maxInFlight.Load())
	assertContiguous(t, st, 5)
}

func TestScheduler_RespectsInterval(t *testing.T) {
	const interval = 30 * time.Millisecond
	st := newStore(t)

	var mu sync.Mutex
	var stamps []time.Time
	reached := make(chan struct{})
	fake := testutil.NewFakeCapturer()
	fake.CaptureFunc = capturesThen(3, func(_ context.Context, call int) ([]byte, error) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		return testutil.Frame(call), nil
	}, reached)

	s, err := New(Options{Interval: interval, Capturer: fake, Sink: st})
	require.NoError(t, err)
	s.Start(context.Background())
	waitFor(t, reached)
	s.StopAndDrain()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, stamps, 3)
	for i := 1; i < len(stamps); i++ {
		assert.GreaterOrEqual(t, stamps[i].Sub(stamps[i-1]), interval-5*time.Millisecond)
	}
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	s, err := New(Options{Interval: time.Second, Capturer: testutil.NewFakeCapturer(), Sink: newStore(t)})
	require.NoError(t, err)

	s.StopAndDrain()
	s.StopAndDrain()

	// Start after stop must not launch the loop.
	s.Start(context.Background())
	assert.Equal(t, uint64(0), s.Stats().Ticks)
}

func TestScheduler_NoPersistAfterSeal(t *testing.T) {
	st := newStore(t)
	reached := make(chan struct{})
	fake := testutil.NewFakeCapturer()
	fake.CaptureFunc = capturesThen(2, testutil.FailOn(), reached)

	s, err := New(Options{Interval: time.Millisecond, Capturer: fake, Sink: st})
	require.NoError(t, err)
	s.Start(context.Background())
	waitFor(t, reached)
	s.StopAndDrain()
	st.Seal()

	_, err = st.Persist(st.NextIndex(), []byte("late"))
	assert.True(t, errors.Is(err, store.ErrSealed))
}
