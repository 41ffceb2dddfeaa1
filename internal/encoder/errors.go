package encoder

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidInput is returned when there is nothing to encode.
	ErrInvalidInput = errors.New("invalid encoder input")
	// ErrEncodeFailure matches every *EncodeError via errors.Is.
	ErrEncodeFailure = errors.New("encode failed")
)

// maxDiagnosticLines bounds how much encoder output is repeated in Error().
const maxDiagnosticLines = 5

// EncodeError describes a failed encoder run.
type EncodeError struct {
	ExitCode int    // process exit code; -1 when the process did not run
	Output   []byte // combined stdout and stderr
	Err      error  // underlying cause when the exit code alone does not explain it
}

func (e *EncodeError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "encode failed (exit code %d)", e.ExitCode)
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	if tail := e.Tail(maxDiagnosticLines); tail != "" {
		sb.WriteString(": ")
		sb.WriteString(strings.ReplaceAll(tail, "\n", " | "))
	}
	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *EncodeError) Unwrap() error { return e.Err }

// Is reports ErrEncodeFailure as a match.
func (e *EncodeError) Is(target error) bool { return target == ErrEncodeFailure }

// Tail returns the last n non-empty lines of the encoder output.
func (e *EncodeError) Tail(n int) string {
	lines := strings.Split(strings.TrimSpace(string(e.Output)), "\n")
	var kept []string
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			kept = append(kept, l)
		}
	}
	if len(kept) > n {
		kept = kept[len(kept)-n:]
	}
	return strings.Join(kept, "\n")
}
