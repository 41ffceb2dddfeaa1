package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/timelapse/timelapse/internal/config"
	"github.com/timelapse/timelapse/internal/store"
)

// makeTestRoot creates a fresh command tree with captured output, so flag
// state does not leak between tests.
func makeTestRoot(t *testing.T, stdin string) (root *cobra.Command, stdout, stderr *bytes.Buffer) {
	t.Helper()
	t.Setenv(config.ConfigEnvVar, "")
	t.Setenv(colorEnvVar, "")

	root = &cobra.Command{
		Use:           "timelapse",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	addGlobalFlags(root)
	root.AddCommand(newRecordCmd(), newEncodeCmd(), newCleanCmd(), newListCmd(), newValidateCmd())

	stdout, stderr = &bytes.Buffer{}, &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetIn(strings.NewReader(stdin))
	return root, stdout, stderr
}

// writeConfig writes a config file and returns its path.
func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "timelapse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// fakeEncoderConfig returns a config whose encoder is a shell script that
// writes its last argument, or fails when FAKE_ENCODER_EXIT is non-zero.
func fakeEncoderConfig(t *testing.T, outputRoot string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("Unix-specific test")
	}

	script := filepath.Join(t.TempDir(), "fake-ffmpeg")
	body := `#!/bin/sh
for last; do :; done
if [ -n "$FAKE_ENCODER_EXIT" ] && [ "$FAKE_ENCODER_EXIT" != "0" ]; then
    echo "Error while opening encoder" >&2
    exit "$FAKE_ENCODER_EXIT"
fi
printf 'video' > "$last"
`
	require.NoError(t, os.WriteFile(script, []byte(body), 0o700)) //nolint:gosec // test script must be executable

	return writeConfig(t, fmt.Sprintf(`output_root: %s
frame_rate: 1000
speed_multiplier: 10
encoder:
  binary: %s
  codec: libx264
  pixel_format: yuv420p
log:
  level: error
  format: text
`, outputRoot, script))
}

// preserveSession creates a session directory as a failed encode leaves it.
func preserveSession(t *testing.T, root, id string, frames int) string {
	t.Helper()
	st, err := store.Create(root, id, "png")
	require.NoError(t, err)
	for i := 1; i <= frames; i++ {
		_, err := st.Persist(i, []byte(fmt.Sprintf("frame %d", i)))
		require.NoError(t, err)
	}
	require.NoError(t, st.WriteManifest(&store.Manifest{
		SessionID:       id,
		FrameRate:       30,
		SpeedMultiplier: 20,
		IntervalMS:      667,
		OutputPath:      filepath.Join(root, id+".mp4"),
		State:           "failed",
		Diagnostic:      "encode failed (exit code 1)",
	}))
	return st.Dir()
}
