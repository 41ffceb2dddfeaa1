// Package config provides the timelapse configuration model and its YAML loader.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// DefaultPath is the configuration file looked up when no --config flag or
// TIMELAPSE_CONFIG environment variable is given.
const DefaultPath = "timelapse.yaml"

// ConfigEnvVar names the environment variable that selects the config file.
const ConfigEnvVar = "TIMELAPSE_CONFIG"

// Config holds runtime configuration for recording and encoding.
type Config struct {
	OutputRoot      string  `yaml:"output_root"`
	FrameRate       int     `yaml:"frame_rate"`
	SpeedMultiplier int     `yaml:"speed_multiplier"`
	MaxWidth        int     `yaml:"max_width,omitempty"`
	MinFreeSpace    string  `yaml:"min_free_space,omitempty"`
	VideoExt        string  `yaml:"video_ext"`
	Encoder         Encoder `yaml:"encoder"`
	Log             Log     `yaml:"log"`
}

// Encoder configures the external encoder process.
type Encoder struct {
	Binary      string        `yaml:"binary"`
	Codec       string        `yaml:"codec"`
	PixelFormat string        `yaml:"pixel_format"`
	ExtraArgs   []string      `yaml:"extra_args,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
}

// Log configures the diagnostic logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config populated with standard defaults.
func Default() *Config {
	return &Config{
		OutputRoot:      "output",
		FrameRate:       30,
		SpeedMultiplier: 20,
		VideoExt:        "mp4",
		Encoder: Encoder{
			Binary:      "ffmpeg",
			Codec:       "libx264",
			PixelFormat: "yuv420p",
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks that the configuration is usable. Frame rate and speed
// multiplier are range-checked by the session controller when a recording
// starts; here they only need to be positive.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.OutputRoot) == "" {
		return errors.New("output_root must be non-empty")
	}
	if c.FrameRate <= 0 {
		return fmt.Errorf("frame_rate must be positive, got %d", c.FrameRate)
	}
	if c.SpeedMultiplier <= 0 {
		return fmt.Errorf("speed_multiplier must be positive, got %d", c.SpeedMultiplier)
	}
	if c.MaxWidth < 0 {
		return fmt.Errorf("max_width must not be negative, got %d", c.MaxWidth)
	}
	if _, err := c.MinFreeBytes(); err != nil {
		return err
	}
	if strings.TrimSpace(c.VideoExt) == "" {
		return errors.New("video_ext must be non-empty")
	}
	if err := c.Encoder.Validate(); err != nil {
		return fmt.Errorf("encoder: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

// MinFreeBytes parses MinFreeSpace ("500MB", "2GiB"). An empty value means no minimum.
func (c *Config) MinFreeBytes() (uint64, error) {
	if strings.TrimSpace(c.MinFreeSpace) == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(c.MinFreeSpace)
	if err != nil {
		return 0, fmt.Errorf("min_free_space: %w", err)
	}
	return n, nil
}

// Validate checks that the encoder section is valid.
func (e *Encoder) Validate() error {
	if strings.TrimSpace(e.Binary) == "" {
		return errors.New("binary must be non-empty")
	}
	if strings.TrimSpace(e.Codec) == "" {
		return errors.New("codec must be non-empty")
	}
	if strings.TrimSpace(e.PixelFormat) == "" {
		return errors.New("pixel_format must be non-empty")
	}
	if e.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	return nil
}

// Validate checks that the log section is valid.
func (l *Log) Validate() error {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown level %q", l.Level)
	}
	switch strings.ToLower(l.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown format %q", l.Format)
	}
	return nil
}
