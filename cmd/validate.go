package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/timelapse/timelapse/internal/config"
	"github.com/timelapse/timelapse/internal/session"
)

// ValidationResult represents the validation outcome for a single config file.
type ValidationResult struct {
	File       string   `json:"file"`
	Valid      bool     `json:"valid"`
	IntervalMS int64    `json:"interval_ms,omitempty"`
	Errors     []string `json:"errors"`
}

var validateFormatFlag string

func newValidateCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "validate <config.yaml>...",
		Short: "Validate configuration files",
		Long: `Validate one or more timelapse configuration files without recording.

Checks that the YAML has no unknown fields, that every value is in range,
and that frame_rate and speed_multiplier form usable recording settings.
For valid files the derived capture interval is reported.

Formats:
  text   Human-readable output to stderr (default)
  json   Structured JSON to stdout

Examples:
  timelapse validate timelapse.yaml
  timelapse validate --format json a.yaml b.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: runValidate,
	}
	c.Flags().StringVar(&validateFormatFlag, "format", "text", "Output format: text, json")
	return c
}

func init() { //nolint:gochecknoinits // Standard cobra pattern
	rootCmd.AddCommand(newValidateCmd())
}

func runValidate(cmd *cobra.Command, args []string) error {
	format := strings.ToLower(validateFormatFlag)
	switch format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid format %q: valid values are text, json", validateFormatFlag)
	}

	var results []ValidationResult
	invalid := 0
	for _, path := range args {
		r := validateFile(path)
		results = append(results, r)
		if !r.Valid {
			invalid++
		}
	}

	switch format {
	case "text":
		formatValidateText(cmd.ErrOrStderr(), results)
	case "json":
		if err := formatValidateJSON(cmd.OutOrStdout(), results); err != nil {
			return fmt.Errorf("failed to encode JSON output: %w", err)
		}
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d config files invalid", invalid, len(results))
	}
	return nil
}

// validateFile loads path strictly and checks that its recording settings
// would be accepted by the session controller.
func validateFile(path string) ValidationResult {
	cfg, err := config.LoadFile(path, false)
	if err != nil {
		return ValidationResult{File: path, Errors: []string{err.Error()}}
	}

	settings := session.Settings{FrameRate: cfg.FrameRate, SpeedMultiplier: cfg.SpeedMultiplier}
	if err := settings.Validate(); err != nil {
		return ValidationResult{File: path, Errors: []string{err.Error()}}
	}
	return ValidationResult{File: path, Valid: true, IntervalMS: settings.IntervalMS(), Errors: []string{}}
}

func formatValidateText(w io.Writer, results []ValidationResult) {
	validCount := 0
	for _, r := range results {
		if r.Valid {
			validCount++
			fmt.Fprintf(w, "✓ %s: valid (capture every %dms)\n", r.File, r.IntervalMS)
			continue
		}
		fmt.Fprintf(w, "✗ %s:\n", r.File)
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  - %s\n", e)
		}
	}

	if len(results) > 1 {
		fmt.Fprintf(w, "\nResult: %d/%d files valid\n", validCount, len(results))
	}
}

func formatValidateJSON(w io.Writer, results []ValidationResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
