// Package capture defines the screen-grab primitive used by the capture
// scheduler and its screen-backed implementation.
package capture

import (
	"context"
	"errors"
)

// ImageExt is the file extension of the images produced by capturers. PNG is
// lossless, which keeps re-encoding artefacts out of the final video.
const ImageExt = "png"

// ErrCaptureUnavailable is returned when no display or desktop session can be
// captured. Callers treat it as recoverable: the tick is skipped.
var ErrCaptureUnavailable = errors.New("capture unavailable")

// Capturer grabs one full-screen raster image and returns it encoded as PNG.
type Capturer interface {
	Capture(ctx context.Context) ([]byte, error)
}

// CapturerFunc adapts a function to the Capturer interface.
type CapturerFunc func(ctx context.Context) ([]byte, error)

// Capture calls f(ctx).
func (f CapturerFunc) Capture(ctx context.Context) ([]byte, error) { return f(ctx) }
