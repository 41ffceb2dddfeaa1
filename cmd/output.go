package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"
)

// colorEnvVar forces colour on or off regardless of the terminal.
const colorEnvVar = "TIMELAPSE_COLOR"

type colorMode int

const (
	colorOff colorMode = iota
	colorOn
)

// resolveColor determines whether to emit ANSI color codes on w.
// Priority: TIMELAPSE_COLOR env > NO_COLOR env > auto-detect TTY.
func resolveColor(w io.Writer) colorMode {
	if v := os.Getenv(colorEnvVar); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return colorOn
		case "0", "false", "no", "off":
			return colorOff
		}
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return colorOff
	}
	if isTerminal(w) {
		return colorOn
	}
	return colorOff
}

// isTerminal reports whether v (a reader or writer) is attached to a terminal.
func isTerminal(v any) bool {
	f, ok := v.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}

func red(s string, c colorMode) string {
	if c == colorOn {
		return "\033[31m" + s + "\033[0m"
	}
	return s
}

func green(s string, c colorMode) string {
	if c == colorOn {
		return "\033[32m" + s + "\033[0m"
	}
	return s
}

func yellow(s string, c colorMode) string {
	if c == colorOn {
		return "\033[33m" + s + "\033[0m"
	}
	return s
}

func bold(s string, c colorMode) string {
	if c == colorOn {
		return "\033[1m" + s + "\033[0m"
	}
	return s
}

// formatBytes renders n the way file managers do (e.g. "12 MB").
func formatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

// formatClock renders d as H:MM:SS.
func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	return fmt.Sprintf("%d:%02d:%02d", h, m, d/time.Second)
}

// formatVideoLength renders a video duration in seconds, e.g. "12.4s".
func formatVideoLength(seconds float64) string {
	return fmt.Sprintf("%.1fs", seconds)
}
