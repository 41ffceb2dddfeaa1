package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/spf13/cobra"

	"github.com/timelapse/timelapse/internal/store"
)

var listOutputRoot string

func newListCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "list",
		Short: "List preserved session directories",
		Long: `List shows the session directories under the output root that still hold
frames, typically because their encode failed, together with the free
space left on the output volume.`,
		Args: cobra.NoArgs,
		RunE: runList,
	}
	c.Flags().StringVarP(&listOutputRoot, "output-root", "o", "", "output root to scan (default from config)")
	return c
}

func init() { //nolint:gochecknoinits // Standard cobra pattern
	rootCmd.AddCommand(newListCmd())
}

func runList(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	root := cfg.OutputRoot
	if listOutputRoot != "" {
		root = listOutputRoot
	}
	out := cmd.OutOrStdout()

	sessions, err := store.FindSessions(root)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to scan %s: %w", root, err)
	}

	if len(sessions) == 0 {
		fmt.Fprintf(out, "No preserved sessions in %s\n", root)
	} else {
		dirs := make([]string, 0, len(sessions))
		for dir := range sessions {
			dirs = append(dirs, dir)
		}
		sort.Strings(dirs)

		fmt.Fprintf(out, "%-24s %-10s %8s %10s  %s\n", "SESSION", "STATE", "FRAMES", "SIZE", "DIRECTORY")
		for _, dir := range dirs {
			m := sessions[dir]
			fmt.Fprintf(out, "%-24s %-10s %8d %10s  %s\n", m.SessionID, m.State, m.FrameCount, formatBytes(m.TotalBytes), dir)
			if m.Diagnostic != "" {
				fmt.Fprintf(out, "  %s\n", m.Diagnostic)
			}
		}
	}

	if free, err := store.FreeBytes(root); err == nil {
		fmt.Fprintf(out, "Free space on %s: %s\n", root, formatBytes(int64(free)))
	} else {
		logger.Debug("free space probe failed", "root", root, "error", err)
	}
	return nil
}
