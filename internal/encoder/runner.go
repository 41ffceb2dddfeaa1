package encoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Runner runs an external program to completion. It returns the exit code
// and combined output; err is non-nil only when the program could not be
// run at all (not found, not executable).
type Runner interface {
	Run(ctx context.Context, name string, args []string) (exitCode int, output []byte, err error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, name string, args []string) (int, []byte, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, name string, args []string) (int, []byte, error) {
	return f(ctx, name, args)
}

// ExecRunner runs programs with os/exec.
type ExecRunner struct{}

// Run executes name with args, capturing stdout and stderr together.
func (ExecRunner) Run(ctx context.Context, name string, args []string) (int, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // encoder binary is configured by the user

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return -1, out.Bytes(), fmt.Errorf("failed to run %s: %w", name, err)
		}
	}
	return ExitCodeFromError(err), out.Bytes(), nil
}
