package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/timelapse/timelapse/internal/capture"
	"github.com/timelapse/timelapse/internal/config"
	"github.com/timelapse/timelapse/internal/encoder"
	"github.com/timelapse/timelapse/internal/session"
)

var (
	recordFrameRate  int
	recordSpeed      int
	recordOutputRoot string
	recordMaxWidth   int
	recordDuration   time.Duration
)

// newCapturer builds the frame source. Tests replace it.
var newCapturer = func(maxWidth int) capture.Capturer {
	return capture.NewScreen(maxWidth)
}

func newRecordCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "record",
		Short: "Record the screen until stopped, then encode the video",
		Long: `Record captures the screen at a fixed interval and encodes the frames
into a video when recording stops.

Recording stops when Enter is pressed, on Ctrl-C / SIGTERM, or after
--duration. The interval is round(1000 / frame-rate * speed) milliseconds.
Allowed speed multipliers: 10, 20, 50, 100, 200, 500, 1000.

On success the frame directory is removed and only the video remains. If
the encoder fails the frames are kept; re-run the encode with
'timelapse encode DIR' or discard them with 'timelapse clean DIR'.

Examples:
  timelapse record
  timelapse record --frame-rate 60 --speed 100
  timelapse record --duration 2h --output-root ~/Videos/timelapse`,
		Args: cobra.NoArgs,
		RunE: runRecord,
	}

	c.Flags().IntVarP(&recordFrameRate, "frame-rate", "r", 0, "video frame rate (default from config, 30)")
	c.Flags().IntVarP(&recordSpeed, "speed", "s", 0, "speed multiplier (default from config, 20)")
	c.Flags().StringVarP(&recordOutputRoot, "output-root", "o", "", "directory for frames and videos (default from config, ./output)")
	c.Flags().IntVar(&recordMaxWidth, "max-width", 0, "downscale frames wider than this many pixels (0 keeps full size)")
	c.Flags().DurationVarP(&recordDuration, "duration", "d", 0, "stop automatically after this long (e.g. 30m, 2h)")
	return c
}

func init() { //nolint:gochecknoinits // Standard cobra pattern
	rootCmd.AddCommand(newRecordCmd())
}

func runRecord(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	applyRecordFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	minFree, err := cfg.MinFreeBytes()
	if err != nil {
		return err
	}

	ctrl, err := session.New(session.Options{
		OutputRoot:   cfg.OutputRoot,
		VideoExt:     cfg.VideoExt,
		Capturer:     newCapturer(cfg.MaxWidth),
		Encoder:      newEncoder(cfg, logger),
		Logger:       logger,
		MinFreeBytes: minFree,
	})
	if err != nil {
		return err
	}

	out := cmd.ErrOrStderr()
	color := resolveColor(out)
	printer := newStatusPrinter(out, color)
	ctrl.OnStatus(printer.Update)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	lines := readLines(cmd.InOrStdin())
	interactive := isTerminal(cmd.InOrStdin())

	settings := session.Settings{FrameRate: cfg.FrameRate, SpeedMultiplier: cfg.SpeedMultiplier}
	if err := ctrl.Start(cmd.Context(), settings); err != nil {
		return err
	}
	if interactive {
		fmt.Fprintln(out, "Press Enter to stop recording.")
	}

	reason := waitForStop(cmd.Context(), lines, sigCh, recordDuration)
	logger.Debug("stop requested", "reason", reason)

	res, err := stopWithNotice(out, sigCh, func() (*session.Result, error) {
		return ctrl.Stop(cmd.Context())
	})
	printer.Finish()

	for err != nil && res == nil && interactive {
		printFailure(out, color, ctrl.Status(), err)
		switch promptFailure(out, lines) {
		case "r":
			res, err = stopWithNotice(out, sigCh, func() (*session.Result, error) {
				return ctrl.Retry(cmd.Context())
			})
			printer.Finish()
		case "d":
			dir := ctrl.Status().Directory
			if rerr := ctrl.Reset(); rerr != nil {
				return rerr
			}
			fmt.Fprintf(out, "Discarded %s\n", dir)
			return fmt.Errorf("recording discarded: %w", err)
		default:
			return fmt.Errorf("recording failed: %w", err)
		}
	}

	if err != nil && res == nil {
		printFailure(out, color, ctrl.Status(), err)
		return fmt.Errorf("recording failed: %w", err)
	}
	printResult(out, color, res)
	if err != nil {
		// Cleanup failure: the video exists, only frames were left behind.
		fmt.Fprintf(out, "%s %v\n", yellow("warning:", color), err)
	}
	return nil
}

// applyRecordFlags overrides config values with flags given on the command line.
func applyRecordFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("frame-rate") {
		cfg.FrameRate = recordFrameRate
	}
	if cmd.Flags().Changed("speed") {
		cfg.SpeedMultiplier = recordSpeed
	}
	if cmd.Flags().Changed("output-root") {
		cfg.OutputRoot = recordOutputRoot
	}
	if cmd.Flags().Changed("max-width") {
		cfg.MaxWidth = recordMaxWidth
	}
}

// readLines delivers lines read from r. The channel is closed at EOF.
func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- strings.TrimSpace(sc.Text())
		}
	}()
	return ch
}

// waitForStop blocks until the user asks to stop and reports why. A closed
// lines channel (stdin at EOF) does not stop the recording.
func waitForStop(ctx context.Context, lines <-chan string, sigCh <-chan os.Signal, d time.Duration) string {
	var timeout <-chan time.Time
	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		timeout = t.C
	}

	for {
		select {
		case _, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			return "enter"
		case sig := <-sigCh:
			return sig.String()
		case <-timeout:
			return "duration elapsed"
		case <-ctx.Done():
			return ctx.Err().Error()
		}
	}
}

// stopWithNotice runs finish (Stop or Retry) and tells the user that the
// encode cannot be interrupted if they signal again while it runs.
func stopWithNotice(out io.Writer, sigCh <-chan os.Signal, finish func() (*session.Result, error)) (*session.Result, error) {
	type outcome struct {
		res *session.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := finish()
		done <- outcome{res, err}
	}()

	for {
		select {
		case o := <-done:
			return o.res, o.err
		case <-sigCh:
			fmt.Fprintln(out, "\nEncoding in progress; waiting for it to finish.")
		}
	}
}

func promptFailure(out io.Writer, lines <-chan string) string {
	for {
		fmt.Fprint(out, "[r]etry encode, [k]eep frames, [d]iscard frames? ")
		answer, ok := <-lines
		if !ok {
			return "k"
		}
		switch strings.ToLower(answer) {
		case "r", "retry":
			return "r"
		case "k", "keep", "":
			return "k"
		case "d", "discard":
			return "d"
		}
	}
}

func printResult(out io.Writer, color colorMode, res *session.Result) {
	fmt.Fprintf(out, "%s %s\n", green("Saved", color), bold(res.OutputPath, color))
	fmt.Fprintf(out, "  %d frames, %s of video, %s, encoded in %s\n",
		res.FrameCount,
		formatVideoLength(res.VideoSeconds),
		formatBytes(res.Size),
		res.EncodeDuration.Round(time.Millisecond),
	)
}

func printFailure(out io.Writer, color colorMode, st session.Status, err error) {
	fmt.Fprintf(out, "%s %v\n", red("Encoding failed:", color), summarizeError(err))

	var encErr *encoder.EncodeError
	if errors.As(err, &encErr) {
		if tail := encErr.Tail(10); tail != "" {
			fmt.Fprintln(out, "  encoder output:")
			for _, l := range strings.Split(tail, "\n") {
				fmt.Fprintf(out, "    %s\n", l)
			}
		}
	}
	if st.Directory != "" {
		fmt.Fprintf(out, "  %d frames kept in %s\n", st.FrameCount, st.Directory)
		fmt.Fprintf(out, "  retry:   timelapse encode %s\n", st.Directory)
		fmt.Fprintf(out, "  discard: timelapse clean %s\n", st.Directory)
	}
}

// summarizeError drops the encoder output from an encode error, which is
// printed separately.
func summarizeError(err error) string {
	var encErr *encoder.EncodeError
	if errors.As(err, &encErr) {
		if encErr.Err != nil {
			return encErr.Err.Error()
		}
		return fmt.Sprintf("encoder exited with status %d", encErr.ExitCode)
	}
	if errors.Is(err, encoder.ErrInvalidInput) {
		return "no frames were captured"
	}
	return err.Error()
}
