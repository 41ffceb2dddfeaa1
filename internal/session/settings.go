package session

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// SpeedMultipliers lists the accepted speed multipliers.
var SpeedMultipliers = []int{10, 20, 50, 100, 200, 500, 1000}

// Settings are fixed for the lifetime of a session.
type Settings struct {
	FrameRate       int
	SpeedMultiplier int
}

// Validate checks the frame rate and speed multiplier.
func (s Settings) Validate() error {
	if s.FrameRate <= 0 {
		return fmt.Errorf("%w: frame rate must be positive, got %d", ErrInvalidSettings, s.FrameRate)
	}
	if !slices.Contains(SpeedMultipliers, s.SpeedMultiplier) {
		return fmt.Errorf("%w: speed multiplier must be one of %v, got %d", ErrInvalidSettings, SpeedMultipliers, s.SpeedMultiplier)
	}
	if s.IntervalMS() < 1 {
		return fmt.Errorf("%w: frame rate %d at %dx gives a capture interval under 1ms", ErrInvalidSettings, s.FrameRate, s.SpeedMultiplier)
	}
	return nil
}

// IntervalMS returns round(1000 / FrameRate * SpeedMultiplier): one captured
// frame stands for SpeedMultiplier frames of real time.
func (s Settings) IntervalMS() int64 {
	return int64(math.Round(1000 / float64(s.FrameRate) * float64(s.SpeedMultiplier)))
}

// Interval returns IntervalMS as a duration.
func (s Settings) Interval() time.Duration {
	return time.Duration(s.IntervalMS()) * time.Millisecond
}
