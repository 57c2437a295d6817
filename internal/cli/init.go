package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/crm/internal/seed"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	NoSeed bool
}

// InitResult is the init command's payload.
type InitResult struct {
	Path    string       `json:"path"`
	Schema  string       `json:"schema"`
	Version int          `json:"version"`
	Seed    *seed.Result `json:"seed,omitempty"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create or upgrade the store and add sample data",
		Long: `Open the store, creating the file and applying schema upgrades as
needed. When the store holds no contacts, sample contacts, projects, tasks
and events are added unless --no-seed is given or no_seed is configured.

Examples:
  crm init
  crm init --db ./demo.db --no-seed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.NoSeed, "no-seed", false, "do not add sample data")

	return cmd
}

func runInit(opts *InitOptions, cmd *cobra.Command) error {
	f := newFormatter(cmd, opts.RootOptions)

	s, err := openSession(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	result := InitResult{
		Path:    s.path,
		Schema:  s.store.Schema().Name,
		Version: s.store.Version(),
	}

	if !opts.NoSeed && !s.cfg.NoSeed {
		res, err := seed.Run(commandContext(cmd), s.db, seed.Options{Logger: s.logger})
		if err != nil {
			return f.Fail("failed to add sample data", err)
		}
		result.Seed = &res
	}

	return f.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "Store ready: %s (schema %s v%d)\n", result.Path, result.Schema, result.Version)
		switch {
		case result.Seed == nil:
			fmt.Fprintln(w, "Sample data: disabled")
		case result.Seed.Skipped:
			fmt.Fprintln(w, "Sample data: skipped, store already has contacts")
		default:
			fmt.Fprintf(w, "Sample data: %d contacts, %d projects, %d tasks, %d events\n",
				result.Seed.Contacts, result.Seed.Projects, result.Seed.Tasks, result.Seed.Events)
		}
	})
}
