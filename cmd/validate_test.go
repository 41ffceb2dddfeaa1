package cmd

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_ValidFile(t *testing.T) {
	path := writeConfig(t, "frame_rate: 30\nspeed_multiplier: 20\n")

	root, _, stderr := makeTestRoot(t, "")
	root.SetArgs([]string{"validate", path})
	require.NoError(t, root.Execute())
	assert.Contains(t, stderr.String(), "valid (capture every 667ms)")
}

func TestValidate_InvalidFiles(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"speed not allowed", "speed_multiplier: 15\n", "speed multiplier must be one of"},
		{"unknown field", "frame_rat: 30\n", "field frame_rat not found"},
		{"negative frame rate", "frame_rate: -1\n", "frame_rate must be positive"},
		{"bad min free space", "min_free_space: lots\n", "min_free_space"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validateFile(writeConfig(t, tt.yaml))
			assert.False(t, r.Valid)
			require.NotEmpty(t, r.Errors)
			assert.Contains(t, r.Errors[0], tt.wantErr)
		})
	}
}

func TestValidate_FileNotFound(t *testing.T) {
	r := validateFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.False(t, r.Valid)
	require.NotEmpty(t, r.Errors)
	assert.Contains(t, r.Errors[0], "failed to open config file")
}

func TestValidate_MixedResultsJSON(t *testing.T) {
	good := writeConfig(t, "frame_rate: 60\nspeed_multiplier: 10\n")
	bad := writeConfig(t, "speed_multiplier: 3\n")

	root, stdout, _ := makeTestRoot(t, "")
	root.SetArgs([]string{"validate", "--format", "json", good, bad})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 config files invalid")

	var results []ValidationResult
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &results))
	require.Len(t, results, 2)
	assert.True(t, results[0].Valid)
	assert.Equal(t, int64(167), results[0].IntervalMS)
	assert.False(t, results[1].Valid)
}

func TestValidate_InvalidFormat(t *testing.T) {
	root, _, _ := makeTestRoot(t, "")
	root.SetArgs([]string{"validate", "--format", "xml", "x.yaml"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}
