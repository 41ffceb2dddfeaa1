// Package cmd implements the timelapse Cobra command tree.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/timelapse/timelapse/internal/config"
	"github.com/timelapse/timelapse/internal/encoder"
	"github.com/timelapse/timelapse/internal/logging"
)

// Version, Commit, and Date are set at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "timelapse",
	Short: "Record the screen into a timelapse video",
	Long: `timelapse - screen timelapse recorder

Captures the screen at a fixed cadence while recording, then assembles the
frames into one H.264 video with ffmpeg when recording stops.

The capture interval is derived from the target frame rate and the speed
multiplier: at 30 fps and 20x, one frame is taken every 667ms so that one
second of video covers twenty seconds of wall-clock time.

Examples:
  # Record at the configured defaults until Enter or Ctrl-C
  timelapse record

  # Record one hour at 60 fps, 100x speed
  timelapse record --frame-rate 60 --speed 100 --duration 1h

  # Re-encode a session left behind by a failed encode
  timelapse encode output/20240501-120000-1

  # List and discard preserved sessions
  timelapse list
  timelapse clean output/20240501-120000-1`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() { //nolint:gochecknoinits
	rootCmd.SetVersionTemplate(fmt.Sprintf("timelapse version {{.Version}} (commit: %s, built: %s)\n", Commit, Date))
	addGlobalFlags(rootCmd)
}

// addGlobalFlags registers the flags shared by every subcommand.
func addGlobalFlags(c *cobra.Command) {
	c.PersistentFlags().StringVar(&configPath, "config", "",
		fmt.Sprintf("config file (default %s, or $%s)", config.DefaultPath, config.ConfigEnvVar))
	c.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	c.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text, json (overrides config)")
}

// loadRuntime loads the configuration and builds the diagnostic logger,
// which writes to the command's stderr.
func loadRuntime(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, optional := config.ResolvePath(configPath)
	cfg, err := config.LoadFile(path, optional)
	if err != nil {
		return nil, nil, err
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("configuration loaded", "path", path, "output_root", cfg.OutputRoot)
	return cfg, logger, nil
}

// newEncoder builds the video encoder from the encoder section of cfg.
func newEncoder(cfg *config.Config, logger *slog.Logger) *encoder.Encoder {
	return encoder.New(encoder.Options{
		Binary:      cfg.Encoder.Binary,
		Codec:       cfg.Encoder.Codec,
		PixelFormat: cfg.Encoder.PixelFormat,
		ExtraArgs:   cfg.Encoder.ExtraArgs,
		Timeout:     cfg.Encoder.Timeout,
	}, nil, logger)
}
