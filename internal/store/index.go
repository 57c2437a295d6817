package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/crm/internal/errs"
	"github.com/roach88/crm/internal/query"
	"github.com/roach88/crm/internal/querysql"
	"github.com/roach88/crm/internal/schema"
)

// layout holds the statements for one table's physical layout.
type layout struct {
	def    *schema.Table
	scalar []schema.Index
	multis []schema.Index

	table string // quoted record table
	multi string // quoted side table

	insertSQL string
	updateSQL string
}

func newLayout(def *schema.Table) *layout {
	l := &layout{
		def:    def,
		scalar: def.Scalar(),
		multis: def.Multi(),
		table:  querysql.Quote(def.Name),
		multi:  querysql.Quote(querysql.MultiTable(def.Name)),
	}

	cols := []string{"id", "seq", "doc"}
	vals := []string{"?", fmt.Sprintf("(SELECT COALESCE(MAX(seq), 0) + 1 FROM %s)", l.table), "?"}
	sets := []string{"doc = ?"}
	for _, idx := range l.scalar {
		col := querysql.Quote(querysql.Column(idx.Name))
		cols = append(cols, col)
		vals = append(vals, "?")
		sets = append(sets, col+" = ?")
	}

	l.insertSQL = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		l.table, strings.Join(cols, ", "), strings.Join(vals, ", "))
	l.updateSQL = fmt.Sprintf("UPDATE %s SET %s WHERE id = ?",
		l.table, strings.Join(sets, ", "))
	return l
}

// entry is one element of a multi-valued index.
type entry struct {
	field string
	pos   int
	value string
}

// keys are the index values extracted from one document.
type keys struct {
	scalar  []any // aligned with layout.scalar; nil when absent
	entries []entry
}

// extract reads every indexed attribute of doc. Absent and null attributes
// produce no key; attributes of the wrong JSON type are a ValidationError.
func (l *layout) extract(doc []byte) (keys, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()

	var m map[string]any
	if err := dec.Decode(&m); err != nil || m == nil {
		return keys{}, errs.Invalid(l.def.Name, "", "record is not a JSON object")
	}

	k := keys{scalar: make([]any, len(l.scalar))}
	for i, idx := range l.scalar {
		v, err := l.scalarKey(idx, lookup(m, idx.Path))
		if err != nil {
			return keys{}, err
		}
		k.scalar[i] = v
	}

	for _, idx := range l.multis {
		switch v := lookup(m, idx.Path).(type) {
		case nil:
		case []any:
			for pos, el := range v {
				s, ok := el.(string)
				if !ok {
					return keys{}, errs.Invalid(l.def.Name, idx.Name, "element %d is %T, want string", pos, el)
				}
				k.entries = append(k.entries, entry{field: idx.Name, pos: pos, value: s})
			}
		default:
			return keys{}, errs.Invalid(l.def.Name, idx.Name, "multi-valued attribute is %T, want array", v)
		}
	}

	return k, nil
}

func (l *layout) scalarKey(idx schema.Index, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}

	var v any
	switch idx.Type {
	case schema.TypeString:
		v = raw
	case schema.TypeBool:
		v = raw
	case schema.TypeNumber:
		n, ok := raw.(json.Number)
		if !ok {
			return nil, errs.Invalid(l.def.Name, idx.Name, "indexed attribute is %T, want number", raw)
		}
		f, err := n.Float64()
		if err != nil {
			return nil, errs.Invalid(l.def.Name, idx.Name, "bad number %q", n)
		}
		v = f
	case schema.TypeTime:
		s, ok := raw.(string)
		if !ok {
			return nil, errs.Invalid(l.def.Name, idx.Name, "indexed attribute is %T, want RFC 3339 time", raw)
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, errs.Invalid(l.def.Name, idx.Name, "bad time %q", s)
		}
		// The zero time is how an unset time.Time serialises.
		if t.IsZero() {
			return nil, nil
		}
		v = t
	}

	key, err := query.Key(idx, v)
	if err != nil {
		return nil, errs.Invalid(l.def.Name, idx.Name, "%v", err)
	}
	return key, nil
}

// lookup walks a dotted path through nested objects.
func lookup(m map[string]any, path []string) any {
	var cur any = m
	for _, p := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[p]
	}
	return cur
}

// insert writes a new record and its side-table entries.
func (l *layout) insert(ctx context.Context, tx *sql.Tx, id string, doc []byte, k keys) error {
	args := make([]any, 0, 2+len(k.scalar))
	args = append(args, id, string(doc))
	args = append(args, k.scalar...)
	if _, err := tx.ExecContext(ctx, l.insertSQL, args...); err != nil {
		return fmt.Errorf("insert %s/%s: %w", l.def.Name, id, err)
	}
	return l.insertEntries(ctx, tx, id, k.entries)
}

// rewrite replaces an existing record's document and index entries.
// A missing record is a NotFoundError.
func (l *layout) rewrite(ctx context.Context, tx *sql.Tx, id string, doc []byte, k keys) error {
	args := make([]any, 0, 2+len(k.scalar))
	args = append(args, string(doc))
	args = append(args, k.scalar...)
	args = append(args, id)

	res, err := tx.ExecContext(ctx, l.updateSQL, args...)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", l.def.Name, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", l.def.Name, id, err)
	}
	if n == 0 {
		return &errs.NotFoundError{Table: l.def.Name, ID: id}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE record_id = ?", l.multi), id); err != nil {
		return fmt.Errorf("clear entries %s/%s: %w", l.def.Name, id, err)
	}
	return l.insertEntries(ctx, tx, id, k.entries)
}

func (l *layout) insertEntries(ctx context.Context, tx *sql.Tx, id string, entries []entry) error {
	if len(entries) == 0 {
		return nil
	}
	stmt := fmt.Sprintf("INSERT INTO %s (record_id, field, pos, value) VALUES (?, ?, ?, ?)", l.multi)
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, stmt, id, e.field, e.pos, e.value); err != nil {
			return fmt.Errorf("insert entry %s/%s.%s: %w", l.def.Name, id, e.field, err)
		}
	}
	return nil
}

// remove deletes a record and its entries. A missing record is a
// NotFoundError.
func (l *layout) remove(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE record_id = ?", l.multi), id); err != nil {
		return fmt.Errorf("delete entries %s/%s: %w", l.def.Name, id, err)
	}
	res, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", l.table), id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", l.def.Name, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", l.def.Name, id, err)
	}
	if n == 0 {
		return &errs.NotFoundError{Table: l.def.Name, ID: id}
	}
	return nil
}
