package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/timelapse/timelapse/internal/session"
)

var encodeOutput string

func newEncodeCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "encode DIR",
		Short: "Encode the frames of a preserved session directory",
		Long: `Encode re-runs the encoder over a session directory that was kept after a
failed encode, using the frame rate recorded in its manifest.

On success the directory is removed. On failure it is kept and the
encoder's diagnostic is recorded in its manifest.

Examples:
  timelapse encode output/20240501-120000-1
  timelapse encode output/20240501-120000-1 --output ~/Videos/desk.mp4`,
		Args: cobra.ExactArgs(1),
		RunE: runEncode,
	}
	c.Flags().StringVarP(&encodeOutput, "output", "o", "", "video path (default: the path recorded in the manifest)")
	return c
}

func init() { //nolint:gochecknoinits // Standard cobra pattern
	rootCmd.AddCommand(newEncodeCmd())
}

func runEncode(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadRuntime(cmd)
	if err != nil {
		return err
	}

	dir, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve session directory: %w", err)
	}

	out := cmd.ErrOrStderr()
	color := resolveColor(out)
	fmt.Fprintf(out, "%s %s ...\n", yellow("Encoding", color), dir)

	res, err := session.EncodeDirectory(cmd.Context(), dir, encodeOutput, newEncoder(cfg, logger), logger)
	if res == nil {
		printFailure(out, color, session.Status{}, err)
		return fmt.Errorf("encode failed: %w", err)
	}
	printResult(out, color, res)
	if err != nil {
		fmt.Fprintf(out, "%s %v\n", yellow("warning:", color), err)
	}
	return nil
}
