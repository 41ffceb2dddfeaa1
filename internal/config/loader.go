package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Load parses a configuration from r on top of the defaults, with strict
// field validation. Unknown fields cause an error. An empty document yields
// the defaults.
func Load(r io.Reader) (*Config, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFile loads a configuration from path. When optional is true and the
// file does not exist, the defaults are returned.
func LoadFile(path string, optional bool) (*Config, error) {
	f, err := os.Open(path) //nolint:gosec // config path comes from the user
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Load(f)
}

// ResolvePath picks the config file to load: an explicit flag value first,
// then TIMELAPSE_CONFIG, then DefaultPath. The boolean reports whether the
// file may be missing (only true for the implicit default).
func ResolvePath(flagValue string) (string, bool) {
	if flagValue != "" {
		return flagValue, false
	}
	if env := os.Getenv(ConfigEnvVar); env != "" {
		return env, false
	}
	return DefaultPath, true
}
