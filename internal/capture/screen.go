package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
	"github.com/vova616/screenshot"
)

// Screen captures the primary display.
type Screen struct {
	// MaxWidth downscales frames wider than this many pixels, keeping the
	// aspect ratio. Zero keeps the native resolution.
	MaxWidth int

	grab func() (*image.RGBA, error)
}

// NewScreen returns a Screen capturer backed by the OS screenshot API.
func NewScreen(maxWidth int) *Screen {
	return &Screen{MaxWidth: maxWidth, grab: screenshot.CaptureScreen}
}

// Capture grabs the screen and returns PNG bytes. Failures of the underlying
// grab (no display, lost X connection) are reported as ErrCaptureUnavailable.
func (s *Screen) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := s.safeGrab()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrCaptureUnavailable)
	}

	var out image.Image = img
	if s.MaxWidth > 0 && img.Bounds().Dx() > s.MaxWidth {
		out = imaging.Resize(img, s.MaxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG, imaging.PNGCompressionLevel(png.BestSpeed)); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// safeGrab converts a panic inside the platform backend into an error; the
// X11 backend panics on some broken connections instead of returning one.
func (s *Screen) safeGrab() (img *image.RGBA, err error) {
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("screenshot backend panic: %v", r)
		}
	}()
	return s.grab()
}

var _ Capturer = (*Screen)(nil)
