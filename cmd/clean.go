package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/timelapse/timelapse/internal/session"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean DIR [DIR...]",
		Short: "Discard preserved session directories",
		Long: `Clean deletes the frames of sessions kept after a failed encode.

Only directories carrying a session manifest are removed, so clean cannot
be pointed at unrelated data by mistake. Use 'timelapse list' to find them.

Examples:
  timelapse clean output/20240501-120000-1`,
		Args: cobra.MinimumNArgs(1),
		RunE: runClean,
	}
}

func init() { //nolint:gochecknoinits // Standard cobra pattern
	rootCmd.AddCommand(newCleanCmd())
}

func runClean(cmd *cobra.Command, args []string) error {
	out := cmd.ErrOrStderr()

	for _, arg := range args {
		dir, err := filepath.Abs(arg)
		if err != nil {
			return fmt.Errorf("failed to resolve session directory: %w", err)
		}

		m, err := session.DiscardDirectory(dir)
		if err != nil {
			return fmt.Errorf("failed to clean %s: %w", arg, err)
		}
		fmt.Fprintf(out, "timelapse: removed session %s (%d frames, %s)\n",
			m.SessionID, m.FrameCount, formatBytes(m.TotalBytes))
	}
	return nil
}
