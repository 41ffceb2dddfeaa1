// Package encoder assembles a numbered frame sequence into a video by
// running an external encoder (ffmpeg).
package encoder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/timelapse/timelapse/internal/logging"
)

// evenDimensions trims at most one pixel per axis so width and height are
// even, which yuv420p requires.
const evenDimensions = "scale=trunc(iw/2)*2:trunc(ih/2)*2"

// Options configures the encoder command.
type Options struct {
	Binary      string
	Codec       string
	PixelFormat string
	ExtraArgs   []string
	// Timeout bounds a single run. Zero means wait indefinitely.
	Timeout time.Duration
}

// DefaultOptions returns the ffmpeg H.264 / yuv420p configuration.
func DefaultOptions() Options {
	return Options{Binary: "ffmpeg", Codec: "libx264", PixelFormat: "yuv420p"}
}

// Job describes one encode.
type Job struct {
	// Pattern is the numeric input pattern, e.g. /out/session/%d.png.
	Pattern    string
	FrameCount int
	FrameRate  int
	OutputPath string
}

// Result describes a successful encode.
type Result struct {
	OutputPath string
	Size       int64
	FrameCount int
	Duration   time.Duration
	Output     []byte
}

// Encoder runs the external encoder. It never retries.
type Encoder struct {
	opts   Options
	runner Runner
	logger *slog.Logger
}

// New returns an Encoder. A nil runner uses ExecRunner.
func New(opts Options, runner Runner, logger *slog.Logger) *Encoder {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Encoder{opts: opts, runner: runner, logger: logging.OrDiscard(logger)}
}

// Args returns the encoder arguments for reading pattern at frameRate and
// writing output.
func (e *Encoder) Args(pattern string, frameRate int, output string) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-framerate", strconv.Itoa(frameRate),
		"-start_number", "1",
		"-i", pattern,
		"-vf", evenDimensions,
		"-c:v", e.opts.Codec,
		"-pix_fmt", e.opts.PixelFormat,
	}
	args = append(args, e.opts.ExtraArgs...)
	return append(args, output)
}

// Encode runs the encoder for job and blocks until it exits. The video is
// written to a temporary name next to OutputPath and renamed into place only
// when the encoder exits 0 and produced a non-empty file.
func (e *Encoder) Encode(ctx context.Context, job Job) (*Result, error) {
	if job.FrameCount <= 0 {
		return nil, fmt.Errorf("%w: no frames to encode", ErrInvalidInput)
	}
	if job.FrameRate <= 0 {
		return nil, fmt.Errorf("%w: frame rate must be positive, got %d", ErrInvalidInput, job.FrameRate)
	}
	if job.Pattern == "" || job.OutputPath == "" {
		return nil, fmt.Errorf("%w: input pattern and output path are required", ErrInvalidInput)
	}

	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	tmp := tempOutputPath(job.OutputPath)
	args := e.Args(job.Pattern, job.FrameRate, tmp)
	e.logger.Info("encoding", "binary", e.opts.Binary, "frames", job.FrameCount, "frame_rate", job.FrameRate, "output", job.OutputPath)
	e.logger.Debug("encoder command", "args", strings.Join(args, " "))

	start := time.Now()
	code, out, err := e.runner.Run(ctx, e.opts.Binary, args)
	elapsed := time.Since(start)
	if err != nil {
		_ = os.Remove(tmp)
		return nil, &EncodeError{ExitCode: -1, Output: out, Err: err}
	}
	if code != 0 {
		_ = os.Remove(tmp)
		return nil, &EncodeError{ExitCode: code, Output: out, Err: timeoutCause(ctx, e.opts.Timeout)}
	}

	info, err := os.Stat(tmp)
	if err != nil || info.Size() == 0 {
		_ = os.Remove(tmp)
		return nil, &EncodeError{ExitCode: code, Output: out, Err: errors.New("encoder produced no output file")}
	}
	if err := os.Rename(tmp, job.OutputPath); err != nil {
		_ = os.Remove(tmp)
		return nil, &EncodeError{ExitCode: code, Output: out, Err: fmt.Errorf("failed to publish output: %w", err)}
	}

	e.logger.Info("encoded", "output", job.OutputPath, "bytes", info.Size(), "elapsed", elapsed)
	return &Result{
		OutputPath: job.OutputPath,
		Size:       info.Size(),
		FrameCount: job.FrameCount,
		Duration:   elapsed,
		Output:     out,
	}, nil
}

// tempOutputPath keeps the extension so the encoder can still infer the
// container format.
func tempOutputPath(output string) string {
	dir, base := filepath.Split(output)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, "."+stem+"-"+uuid.NewString()+ext)
}
