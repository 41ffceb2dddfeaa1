package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FullConfig(t *testing.T) {
	yaml := `
output_root: /tmp/timelapse
frame_rate: 60
speed_multiplier: 100
max_width: 1280
min_free_space: 500MB
video_ext: mkv
encoder:
  binary: /usr/local/bin/ffmpeg
  codec: libx265
  pixel_format: yuv420p
  extra_args: ["-crf", "28"]
  timeout: 10m
log:
  level: debug
  format: json
`
	cfg, err := Load(strings.NewReader(yaml))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/timelapse", cfg.OutputRoot)
	assert.Equal(t, 60, cfg.FrameRate)
	assert.Equal(t, 100, cfg.SpeedMultiplier)
	assert.Equal(t, 1280, cfg.MaxWidth)
	assert.Equal(t, "mkv", cfg.VideoExt)
	assert.Equal(t, "/usr/local/bin/ffmpeg", cfg.Encoder.Binary)
	assert.Equal(t, "libx265", cfg.Encoder.Codec)
	assert.Equal(t, []string{"-crf", "28"}, cfg.Encoder.ExtraArgs)
	assert.Equal(t, 10*time.Minute, cfg.Encoder.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	minFree, err := cfg.MinFreeBytes()
	require.NoError(t, err)
	assert.Equal(t, uint64(500_000_000), minFree)
}

func TestLoad_PartialConfigKeepsDefaults(t *testing.T) {
	cfg, err := Load(strings.NewReader("frame_rate: 24\n"))
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, 24, cfg.FrameRate)
	assert.Equal(t, def.SpeedMultiplier, cfg.SpeedMultiplier)
	assert.Equal(t, def.OutputRoot, cfg.OutputRoot)
	assert.Equal(t, def.Encoder, cfg.Encoder)
}

func TestLoad_EmptyDocument(t *testing.T) {
	cfg, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		errMsg string
	}{
		{
			name:   "unknown field",
			yaml:   "frame_rat: 30\n",
			errMsg: "field frame_rat not found",
		},
		{
			name:   "zero frame rate",
			yaml:   "frame_rate: 0\n",
			errMsg: "frame_rate must be positive",
		},
		{
			name:   "negative speed",
			yaml:   "speed_multiplier: -5\n",
			errMsg: "speed_multiplier must be positive",
		},
		{
			name:   "empty output root",
			yaml:   "output_root: \"  \"\n",
			errMsg: "output_root must be non-empty",
		},
		{
			name:   "bad free space",
			yaml:   "min_free_space: lots\n",
			errMsg: "min_free_space",
		},
		{
			name:   "empty encoder binary",
			yaml:   "encoder:\n  binary: \"\"\n  codec: libx264\n  pixel_format: yuv420p\n",
			errMsg: "binary must be non-empty",
		},
		{
			name:   "unknown log level",
			yaml:   "log:\n  level: loud\n  format: text\n",
			errMsg: "unknown level",
		},
		{
			name:   "unknown log format",
			yaml:   "log:\n  level: info\n  format: xml\n",
			errMsg: "unknown format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "timelapse.yaml")
	require.NoError(t, os.WriteFile(path, []byte("speed_multiplier: 50\n"), 0600))

	cfg, err := LoadFile(path, false)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.SpeedMultiplier)
}

func TestLoadFile_Missing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	cfg, err := LoadFile(missing, true)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = LoadFile(missing, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open config file")
}

func TestResolvePath(t *testing.T) {
	t.Setenv(ConfigEnvVar, "")

	path, optional := ResolvePath("")
	assert.Equal(t, DefaultPath, path)
	assert.True(t, optional)

	path, optional = ResolvePath("custom.yaml")
	assert.Equal(t, "custom.yaml", path)
	assert.False(t, optional)

	t.Setenv(ConfigEnvVar, "/etc/timelapse.yaml")
	path, optional = ResolvePath("")
	assert.Equal(t, "/etc/timelapse.yaml", path)
	assert.False(t, optional)
}
