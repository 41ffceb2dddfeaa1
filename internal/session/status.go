package session

import (
	"os"
	"path/filepath"
	"time"
)

// Status is a read-only snapshot of the controller.
type Status struct {
	State State
	// Stopping is set while Stop waits for the in-flight capture.
	Stopping bool

	SessionID       string
	Directory       string
	OutputPath      string
	FrameRate       int
	SpeedMultiplier int
	Interval        time.Duration
	StartedAt       time.Time

	FrameCount int
	TotalBytes int64
	// ElapsedSeconds is the length of the video recorded so far.
	ElapsedSeconds float64

	CaptureFailures  uint64
	LastCaptureError error

	// LastError is the encode failure of a Failed session, or the cleanup
	// failure of the last completed one.
	LastError  error
	LastResult *Result
}

// Status returns a snapshot. It never blocks on capture or encoding.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		State:      c.state,
		Stopping:   c.stopping,
		LastError:  c.lastErr,
		LastResult: c.lastResult,
	}
	if c.current != nil {
		st.SessionID = c.current.ID
		st.Directory = c.current.Directory
		st.OutputPath = c.current.OutputPath
		st.FrameRate = c.current.Settings.FrameRate
		st.SpeedMultiplier = c.current.Settings.SpeedMultiplier
		st.Interval = c.current.Interval
		st.StartedAt = c.current.StartedAt
	}
	if c.store != nil {
		st.FrameCount = c.store.FrameCount()
		st.TotalBytes = c.store.TotalBytes()
		if st.FrameRate > 0 {
			st.ElapsedSeconds = float64(st.FrameCount) / float64(st.FrameRate)
		}
	}
	if c.sched != nil {
		stats := c.sched.Stats()
		st.CaptureFailures = stats.Failures
		st.LastCaptureError = stats.LastError
	}
	return st
}

// nearestExisting returns path or its closest existing ancestor, so free
// space can be probed before the output root is created.
func nearestExisting(path string) string {
	p := filepath.Clean(path)
	for {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p
		}
		p = parent
	}
}
