package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/timelapse/timelapse/internal/session"
)

// statusPrinter renders controller snapshots. On a terminal it redraws a
// single line in place; otherwise it prints one line per state change.
type statusPrinter struct {
	w     io.Writer
	live  bool
	color colorMode
	now   func() time.Time

	mu      sync.Mutex
	printed bool
	drawn   bool
	last    session.State
}

func newStatusPrinter(w io.Writer, color colorMode) *statusPrinter {
	return &statusPrinter{w: w, live: isTerminal(w), color: color, now: time.Now}
}

// Update is registered with session.Controller.OnStatus.
func (p *statusPrinter) Update(st session.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.live {
		fmt.Fprintf(p.w, "\r\033[K%s", p.line(st))
		p.drawn = true
		return
	}
	if !p.printed || st.State != p.last {
		fmt.Fprintln(p.w, p.line(st))
	}
	p.printed = true
	p.last = st.State
}

// Finish ends the live line so later output starts on a fresh line.
func (p *statusPrinter) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.drawn {
		fmt.Fprintln(p.w)
		p.drawn = false
	}
}

func (p *statusPrinter) line(st session.Status) string {
	switch st.State {
	case session.StateRecording:
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s %s  %d frames  %s  video %s  (%d fps, %dx, every %s)",
			red("● REC", p.color),
			formatClock(p.now().Sub(st.StartedAt)),
			st.FrameCount,
			formatBytes(st.TotalBytes),
			formatVideoLength(st.ElapsedSeconds),
			st.FrameRate, st.SpeedMultiplier, st.Interval,
		)
		if st.CaptureFailures > 0 {
			sb.WriteString(yellow(fmt.Sprintf("  %d skipped", st.CaptureFailures), p.color))
		}
		if st.Stopping {
			sb.WriteString(yellow("  stopping", p.color))
		}
		return sb.String()
	case session.StateFinalizing:
		return fmt.Sprintf("%s %d frames into %s ...", yellow("Encoding", p.color), st.FrameCount, st.OutputPath)
	case session.StateFailed:
		return fmt.Sprintf("%s session %s kept in %s", red("Failed:", p.color), st.SessionID, st.Directory)
	default:
		if st.LastResult != nil {
			return fmt.Sprintf("%s %s", green("Encoded", p.color), st.LastResult.OutputPath)
		}
		return green("Idle", p.color)
	}
}
