// Package testutil provides test helpers for the capture package.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"

	"github.com/timelapse/timelapse/internal/capture"
)

// FakeCapturer is a configurable test double implementing capture.Capturer.
// Test authors set CaptureFunc to control behavior per call.
type FakeCapturer struct {
	// CaptureFunc overrides Capture. It receives the 1-based call number.
	// If nil, Capture returns a tiny PNG whose pixel encodes the call number.
	CaptureFunc func(ctx context.Context, call int) ([]byte, error)

	mu    sync.Mutex
	calls int
}

// NewFakeCapturer returns a FakeCapturer with default behavior.
func NewFakeCapturer() *FakeCapturer {
	return &FakeCapturer{}
}

// Capture records the call and delegates to CaptureFunc.
func (f *FakeCapturer) Capture(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if f.CaptureFunc != nil {
		return f.CaptureFunc(ctx, call)
	}
	return Frame(call), nil
}

// Calls returns the number of Capture invocations so far.
func (f *FakeCapturer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// FailOn returns a CaptureFunc that fails with capture.ErrCaptureUnavailable
// on the listed call numbers and succeeds otherwise.
func FailOn(calls ...int) func(context.Context, int) ([]byte, error) {
	fail := make(map[int]bool, len(calls))
	for _, c := range calls {
		fail[c] = true
	}
	return func(_ context.Context, call int) ([]byte, error) {
		if fail[call] {
			return nil, fmt.Errorf("%w: simulated on call %d", capture.ErrCaptureUnavailable, call)
		}
		return Frame(call), nil
	}
}

// Frame returns a valid 2x2 PNG whose red channel is n%256, so tests can
// tell frames apart by content.
func Frame(n int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			img.Set(x, y, color.RGBA{R: uint8(n % 256), A: 255})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

// Verify compile-time interface compliance.
var _ capture.Capturer = (*FakeCapturer)(nil)
