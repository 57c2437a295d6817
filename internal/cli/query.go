package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/crm/internal/queries"
)

// QueryResult is the query command's payload.
type QueryResult struct {
	Helper  string            `json:"helper"`
	IDs     []string          `json:"ids"`
	Records []json.RawMessage `json:"records,omitempty"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "query [helper] [key=value]...",
		Short: "Run a query helper",
		Long: `Run a named query helper. Arguments are key=value pairs; list arguments
are comma separated and times are RFC 3339. Without a helper name the
available helpers are listed.

Examples:
  crm query
  crm query tasks-by-contact contactId=0192f0c4-...
  crm query upcoming-tasks days=14
  crm query events-in-range start=2026-05-01T00:00:00Z end=2026-05-31T23:59:59Z
  crm query notes-by-entity type=project id=0192f0c4-...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return listHelpers(rootOpts, cmd)
			}
			return runQuery(rootOpts, args[0], args[1:], cmd)
		},
	}
}

func listHelpers(opts *RootOptions, cmd *cobra.Command) error {
	f := newFormatter(cmd, opts)

	names := queries.Names()
	usage := make([]string, len(names))
	for i, name := range names {
		usage[i] = queries.Usage(name)
	}
	return f.Success(usage, func(w io.Writer) {
		fmt.Fprintln(w, "Helpers:")
		for _, u := range usage {
			fmt.Fprintf(w, "  %s\n", u)
		}
	})
}

// parseArgs turns key=value pairs into helper arguments.
func parseArgs(pairs []string) (queries.Args, error) {
	args := make(queries.Args, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("argument %q is not key=value", pair)
		}
		if _, dup := args[key]; dup {
			return nil, fmt.Errorf("argument %q given twice", key)
		}
		args[key] = value
	}
	return args, nil
}

func runQuery(opts *RootOptions, helper string, pairs []string, cmd *cobra.Command) error {
	f := newFormatter(cmd, opts)

	args, err := parseArgs(pairs)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid arguments", err)
	}

	s, err := openSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	h := queries.New(s.db, queries.Options{Logger: s.logger})
	out, err := h.Call(commandContext(cmd), helper, args)
	if err != nil {
		return f.Fail("query failed", err)
	}
	f.VerboseLog("%s returned %d ids", helper, len(out.IDs))

	result := QueryResult{Helper: helper, IDs: out.IDs}
	if out.Records != nil {
		result.Records = make([]json.RawMessage, len(out.Records))
		for i, rec := range out.Records {
			b, err := json.Marshal(rec)
			if err != nil {
				return f.Fail("query failed", fmt.Errorf("encode %s: %w", rec.Key(), err))
			}
			result.Records[i] = b
		}
	}

	return f.Success(result, func(w io.Writer) {
		if len(result.IDs) == 0 {
			fmt.Fprintln(w, "No results.")
			return
		}
		if result.Records == nil {
			for _, id := range result.IDs {
				fmt.Fprintln(w, id)
			}
			return
		}
		for i, rec := range result.Records {
			fmt.Fprintf(w, "%s  %s\n", result.IDs[i], rec)
		}
	})
}
