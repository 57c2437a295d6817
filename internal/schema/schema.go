// Package schema declares the store layout: which tables exist and which
// attributes each table indexes, per schema version.
//
// The layout is written in CUE (crm.cue, embedded) and checked against the
// constraints in defs.cue. Load compiles a document into a Schema whose
// versions are already folded: Version(n) describes the complete effective
// layout at version n, not just the tables that version mentions.
package schema

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed defs.cue
var defsSrc string

//go:embed crm.cue
var crmSrc []byte

// PrimaryKey is the implicit primary key attribute of every table.
const PrimaryKey = "id"

// IndexType is the value domain of an indexed attribute.
type IndexType string

const (
	TypeString IndexType = "string"
	TypeTime   IndexType = "time"
	TypeBool   IndexType = "bool"
	TypeNumber IndexType = "number"
)

// Index describes one indexed attribute.
type Index struct {
	// Name is how queries refer to the index.
	Name string

	// Path is the attribute location inside the stored document.
	// Defaults to []string{Name}.
	Path []string

	Type IndexType

	// Multi marks an inverted index over a string array.
	Multi bool
}

// Table describes one table's indexes, sorted by name.
type Table struct {
	Name    string
	Indexes []Index
}

// Index looks up an index by name.
func (t *Table) Index(name string) (Index, bool) {
	for _, idx := range t.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return Index{}, false
}

// Scalar returns the single-valued indexes.
func (t *Table) Scalar() []Index {
	var out []Index
	for _, idx := range t.Indexes {
		if !idx.Multi {
			out = append(out, idx)
		}
	}
	return out
}

// Multi returns the inverted indexes.
func (t *Table) Multi() []Index {
	var out []Index
	for _, idx := range t.Indexes {
		if idx.Multi {
			out = append(out, idx)
		}
	}
	return out
}

// Version is the effective layout at one schema version.
type Version struct {
	Number int
	Tables []*Table
}

// Table looks up a table by name.
func (v *Version) Table(name string) (*Table, bool) {
	for _, t := range v.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// TableNames returns the table names in sorted order.
func (v *Version) TableNames() []string {
	names := make([]string, len(v.Tables))
	for i, t := range v.Tables {
		names[i] = t.Name
	}
	return names
}

// Schema is a compiled schema document.
type Schema struct {
	// Name identifies the database; a store file created under one name
	// refuses to open under another.
	Name string

	// Versions in ascending order.
	Versions []*Version
}

// Latest returns the newest version.
func (s *Schema) Latest() *Version {
	return s.Versions[len(s.Versions)-1]
}

// Version returns the effective layout at version n.
func (s *Schema) Version(n int) (*Version, bool) {
	for _, v := range s.Versions {
		if v.Number == n {
			return v, true
		}
	}
	return nil, false
}

// Default returns the built-in CRM schema.
func Default() (*Schema, error) {
	return Load(crmSrc, "crm.cue")
}

// MustDefault is Default for package initialisation and tests.
func MustDefault() *Schema {
	s, err := Default()
	if err != nil {
		panic(fmt.Sprintf("schema: built-in document invalid: %v", err))
	}
	return s
}

// Load compiles a CUE schema document.
func Load(src []byte, filename string) (*Schema, error) {
	ctx := cuecontext.New()

	defs := ctx.CompileString(defsSrc, cue.Filename("defs.cue"))
	if err := defs.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	doc := ctx.CompileBytes(src, cue.Filename(filename))
	if err := doc.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	v := defs.LookupPath(cue.ParsePath("#Schema")).Unify(doc)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	return compile(v)
}

// compile walks a validated document and folds its versions.
func compile(v cue.Value) (*Schema, error) {
	name, err := v.LookupPath(cue.ParsePath("name")).String()
	if err != nil {
		return nil, formatCUEError(err)
	}

	s := &Schema{Name: name}

	list, err := v.LookupPath(cue.ParsePath("versions")).List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	current := map[string]*Table{}
	last := 0
	for list.Next() {
		ver := list.Value()

		n, err := ver.LookupPath(cue.ParsePath("version")).Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if int(n) <= last {
			return nil, &CompileError{
				Field:   "version",
				Message: fmt.Sprintf("version %d must be greater than %d", n, last),
				Pos:     ver.Pos(),
			}
		}
		last = int(n)

		tables, err := ver.LookupPath(cue.ParsePath("tables")).Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for tables.Next() {
			t, err := compileTable(tables.Label(), tables.Value())
			if err != nil {
				return nil, err
			}
			current[t.Name] = t
		}

		if len(current) == 0 {
			return nil, &CompileError{
				Field:   "tables",
				Message: fmt.Sprintf("version %d declares no tables", n),
				Pos:     ver.Pos(),
			}
		}

		s.Versions = append(s.Versions, snapshot(int(n), current))
	}

	return s, nil
}

func compileTable(name string, v cue.Value) (*Table, error) {
	t := &Table{Name: name}

	iter, err := v.LookupPath(cue.ParsePath("indexes")).Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		idxName := iter.Label()
		val := iter.Value()

		if idxName == PrimaryKey {
			return nil, &CompileError{
				Field:   name + ".indexes." + idxName,
				Message: "the primary key is indexed implicitly",
				Pos:     val.Pos(),
			}
		}

		typ, err := val.LookupPath(cue.ParsePath("type")).String()
		if err != nil {
			return nil, formatCUEError(err)
		}

		multi := false
		if m, _ := val.LookupPath(cue.ParsePath("multi")).Default(); m.Exists() {
			if multi, err = m.Bool(); err != nil {
				return nil, formatCUEError(err)
			}
		}

		idx := Index{
			Name:  idxName,
			Path:  []string{idxName},
			Type:  IndexType(typ),
			Multi: multi,
		}

		if p := val.LookupPath(cue.ParsePath("path")); p.Exists() {
			path, err := p.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			idx.Path = strings.Split(path, ".")
		}

		if idx.Multi && idx.Type != TypeString {
			return nil, &CompileError{
				Field:   name + ".indexes." + idxName,
				Message: fmt.Sprintf("multi indexes hold strings, got %s", idx.Type),
				Pos:     val.Pos(),
			}
		}

		t.Indexes = append(t.Indexes, idx)
	}

	sort.Slice(t.Indexes, func(i, j int) bool { return t.Indexes[i].Name < t.Indexes[j].Name })
	return t, nil
}

// snapshot copies the running table set into an immutable Version.
func snapshot(n int, tables map[string]*Table) *Version {
	v := &Version{Number: n}
	for _, t := range tables {
		v.Tables = append(v.Tables, t)
	}
	sort.Slice(v.Tables, func(i, j int) bool { return v.Tables[i].Name < v.Tables[j].Name })
	return v
}

// CompileError reports a schema document problem with its source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
