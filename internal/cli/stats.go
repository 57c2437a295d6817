package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/crm/internal/model"
)

// Stats reports the store location, schema version and record counts.
type Stats struct {
	Path    string      `json:"path"`
	Schema  string      `json:"schema"`
	Version int         `json:"version"`
	Tables  []TableStat `json:"tables"`
	Total   int         `json:"total"`
}

// TableStat is one table's record count.
type TableStat struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count records per table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(rootOpts, cmd)
		},
	}
}

func runStats(opts *RootOptions, cmd *cobra.Command) error {
	f := newFormatter(cmd, opts)

	s, err := openSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	stats := Stats{
		Path:    s.path,
		Schema:  s.store.Schema().Name,
		Version: s.store.Version(),
	}
	for _, name := range model.Tables {
		c, err := s.db.Collection(name)
		if err != nil {
			return f.Fail("unknown table", err)
		}
		n, err := c.Count(commandContext(cmd))
		if err != nil {
			return f.Fail("failed to count "+name, err)
		}
		stats.Tables = append(stats.Tables, TableStat{Name: name, Count: n})
		stats.Total += n
	}

	return f.Success(stats, func(w io.Writer) {
		fmt.Fprintf(w, "%s (schema %s v%d)\n", stats.Path, stats.Schema, stats.Version)
		for _, t := range stats.Tables {
			fmt.Fprintf(w, "  %-12s %d\n", t.Name, t.Count)
		}
		fmt.Fprintf(w, "  %-12s %d\n", "total", stats.Total)
	})
}
