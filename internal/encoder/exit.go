package encoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// ExitCodeFromError maps the error of exec.Cmd.Run to the status a shell
// would report: 0 for nil, the child's own status, 128+signum for a child
// killed by a signal, and 1 when the error does not come from the child.
func ExitCodeFromError(err error) int {
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &exitErr) && exitErr.ProcessState != nil:
		return processStatus(exitErr.ProcessState)
	default:
		return 1
	}
}

func processStatus(ps *os.ProcessState) int {
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	if code := ps.ExitCode(); code >= 0 {
		return code
	}
	return 1
}

// timeoutCause explains a failed run that was cut short by the encoder
// timeout. ctx is the context the run received; nil means the failure was
// the encoder's own.
func timeoutCause(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 || !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil
	}
	return fmt.Errorf("encoder timed out after %s: %w", timeout, ctx.Err())
}
