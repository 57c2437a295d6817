package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/crm/internal/schema"
)

// SchemaInfo describes the latest schema version.
type SchemaInfo struct {
	Name    string      `json:"name"`
	Version int         `json:"version"`
	Tables  []TableInfo `json:"tables"`
}

// TableInfo lists one table's indexes.
type TableInfo struct {
	Name    string      `json:"name"`
	Indexes []IndexInfo `json:"indexes"`
}

// IndexInfo describes one index.
type IndexInfo struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Path  string `json:"path"`
	Multi bool   `json:"multi,omitempty"`
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Show tables and indexes",
		Long: `Show the tables and indexes of the built-in schema at its latest version.
Inverted (multi-valued) indexes are marked with *.

Examples:
  crm schema
  crm schema --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(rootOpts, cmd)
		},
	}
}

func runSchema(opts *RootOptions, cmd *cobra.Command) error {
	f := newFormatter(cmd, opts)

	s, err := schema.Default()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compile schema", err)
	}

	info := describeSchema(s)
	return f.Success(info, func(w io.Writer) {
		fmt.Fprintf(w, "Schema %s v%d (%d tables)\n\n", info.Name, info.Version, len(info.Tables))
		for _, t := range info.Tables {
			names := make([]string, len(t.Indexes))
			for i, idx := range t.Indexes {
				names[i] = idx.Name
				if idx.Multi {
					names[i] = "*" + idx.Name
				}
			}
			fmt.Fprintf(w, "%s: %s\n", t.Name, strings.Join(names, ", "))
		}
	})
}

func describeSchema(s *schema.Schema) SchemaInfo {
	latest := s.Latest()
	info := SchemaInfo{Name: s.Name, Version: latest.Number}
	for _, t := range latest.Tables {
		ti := TableInfo{Name: t.Name, Indexes: make([]IndexInfo, len(t.Indexes))}
		for i, idx := range t.Indexes {
			ti.Indexes[i] = IndexInfo{
				Name:  idx.Name,
				Type:  string(idx.Type),
				Path:  strings.Join(idx.Path, "."),
				Multi: idx.Multi,
			}
		}
		info.Tables = append(info.Tables, ti)
	}
	return info
}
