package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/roach88/crm/internal/crm"
	"github.com/roach88/crm/internal/model"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Order string // "label" | "insertion"
	Lang  string // BCP 47 tag for label collation
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list <table>",
		Short: "List the records of a table",
		Long: `List every record of a table. Records are ordered by label (a contact's
name, a task's title, ...) using locale-aware collation, or in insertion
order with --order insertion.

Examples:
  crm list contacts
  crm list tasks --order insertion --format json
  crm list contacts --lang sv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Order, "order", "label", "record order (label|insertion)")
	cmd.Flags().StringVar(&opts.Lang, "lang", "und", "collation language for label order")

	return cmd
}

func runList(opts *ListOptions, table string, cmd *cobra.Command) error {
	f := newFormatter(cmd, opts.RootOptions)

	if opts.Order != "label" && opts.Order != "insertion" {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid order %q: must be label or insertion", opts.Order))
	}
	tag, err := language.Parse(opts.Lang)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --lang", err)
	}

	s, err := openSession(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	c, err := s.db.Collection(table)
	if err != nil {
		return f.Fail("unknown table", err)
	}
	items, err := c.List(commandContext(cmd))
	if err != nil {
		return f.Fail("failed to list "+table, err)
	}
	if opts.Order == "label" {
		sortByLabel(items, collate.New(tag))
	}

	docs := make([]json.RawMessage, len(items))
	for i, it := range items {
		docs[i] = it.JSON
	}
	return f.Success(docs, func(w io.Writer) {
		if len(items) == 0 {
			fmt.Fprintf(w, "No %s.\n", table)
			return
		}
		for _, it := range items {
			fmt.Fprintf(w, "%s  %s\n", it.ID, it.Label)
		}
	})
}

// sortByLabel orders items by label under c, then by id.
func sortByLabel(items []crm.Item, c *collate.Collator) {
	slices.SortStableFunc(items, func(a, b crm.Item) int {
		if n := c.CompareString(a.Label, b.Label); n != 0 {
			return n
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <table> <id>",
		Short: "Show one record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(rootOpts, args[0], args[1], cmd)
		},
	}
}

func runGet(opts *RootOptions, table, id string, cmd *cobra.Command) error {
	f := newFormatter(cmd, opts)

	s, err := openSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	c, err := s.db.Collection(table)
	if err != nil {
		return f.Fail("unknown table", err)
	}
	it, err := c.GetJSON(commandContext(cmd), id)
	if err != nil {
		return f.Fail("failed to get record", err)
	}

	return f.Success(it.JSON, func(w io.Writer) {
		var buf bytes.Buffer
		if err := json.Indent(&buf, it.JSON, "", "  "); err != nil {
			fmt.Fprintln(w, string(it.JSON))
			return
		}
		fmt.Fprintln(w, buf.String())
	})
}

// AddResult is the add command's payload.
type AddResult struct {
	Table string `json:"table"`
	ID    string `json:"id"`
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <table> <json|->",
		Short: "Add a record",
		Long: `Add a record given as a JSON object, or read from stdin when the
argument is "-". Unknown attributes are rejected. createdAt is set when
absent and updatedAt is always set to the current time.

Examples:
  crm add contacts '{"name":"Ada Lovelace","tags":["vip"]}'
  crm add tasks - < task.json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(rootOpts, args[0], args[1], cmd)
		},
	}
}

func runAdd(opts *RootOptions, table, arg string, cmd *cobra.Command) error {
	f := newFormatter(cmd, opts)

	doc := []byte(arg)
	if arg == "-" {
		var err error
		if doc, err = io.ReadAll(cmd.InOrStdin()); err != nil {
			return WrapExitError(ExitCommandError, "failed to read stdin", err)
		}
	}
	doc, err := stampJSON(doc, time.Now())
	if err != nil {
		return WrapExitError(ExitCommandError, "record must be a JSON object", err)
	}

	s, err := openSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	c, err := s.db.Collection(table)
	if err != nil {
		return f.Fail("unknown table", err)
	}
	id, err := c.AddJSON(commandContext(cmd), doc)
	if err != nil {
		return f.Fail("failed to add record", err)
	}
	f.VerboseLog("added %s/%s", table, id)

	return f.Success(AddResult{Table: table, ID: id}, func(w io.Writer) {
		fmt.Fprintln(w, id)
	})
}

// stampJSON sets the record's timestamps the way model.Base.Stamp does,
// keeping every other attribute as given.
func stampJSON(doc []byte, now time.Time) ([]byte, error) {
	var attrs map[string]any
	if err := json.Unmarshal(doc, &attrs); err != nil {
		return nil, err
	}
	if attrs == nil {
		return nil, fmt.Errorf("got null")
	}

	var base model.Base
	if err := json.Unmarshal(doc, &base); err != nil {
		return nil, err
	}
	base.Stamp(now.UTC())
	attrs["createdAt"] = base.CreatedAt
	attrs["updatedAt"] = base.UpdatedAt

	return json.Marshal(attrs)
}

// DeleteResult is the delete command's payload.
type DeleteResult struct {
	Table   string   `json:"table"`
	Deleted []string `json:"deleted"`
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <table> <id>...",
		Short: "Delete records",
		Long: `Delete one or more records in a single transaction. If any id is
unknown nothing is deleted.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(rootOpts, args[0], args[1:], cmd)
		},
	}
}

func runDelete(opts *RootOptions, table string, ids []string, cmd *cobra.Command) error {
	f := newFormatter(cmd, opts)

	s, err := openSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	c, err := s.db.Collection(table)
	if err != nil {
		return f.Fail("unknown table", err)
	}
	if err := c.BulkDelete(commandContext(cmd), ids); err != nil {
		return f.Fail("failed to delete", err)
	}

	return f.Success(DeleteResult{Table: table, Deleted: ids}, func(w io.Writer) {
		fmt.Fprintf(w, "Deleted %d %s.\n", len(ids), table)
	})
}
