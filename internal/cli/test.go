package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/crm/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool // regenerate golden files
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run conformance scenarios",
		Long: `Run every *.yaml scenario in a directory against a fresh in-memory
store with sequential ids and a fixed clock. When golden/<name>.golden
exists next to the scenarios, the trace must match it byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  crm test ./scenarios
  crm test ./scenarios --update
  crm test ./scenarios --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	f := newFormatter(cmd, opts.RootOptions)

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	hopts := harness.Options{
		Driver: cfg.Driver,
		Logger: cfg.NewLogger(cmd.ErrOrStderr()),
	}
	ctx := commandContext(cmd)

	if opts.Update {
		written, err := harness.UpdateGoldens(ctx, dir, hopts)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to update golden files", err)
		}
		return f.Success(written, func(w io.Writer) {
			for _, name := range written {
				fmt.Fprintf(w, "✓ %s (golden updated)\n", name)
			}
		})
	}

	result, err := harness.RunDir(ctx, dir, hopts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to run scenarios", err)
	}

	if opts.Format == "json" {
		if err := f.Success(result, nil); err != nil {
			return err
		}
	} else {
		outputTestText(f.Writer, result)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// outputTestText prints each failure and the summary.
func outputTestText(w io.Writer, result *harness.SuiteResult) {
	for _, failure := range result.Failures {
		name := failure.Scenario
		if name == "" {
			name = failure.ScenarioPath
		}
		fmt.Fprintf(w, "✗ %s\n", name)
		for _, e := range failure.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.TotalScenarios)
	if result.Failed == 0 {
		fmt.Fprintln(w, "✓ All scenarios passed")
	}
}
