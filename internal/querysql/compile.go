// Package querysql compiles query predicates to parameterised SQLite over
// the physical table layout used by the store.
//
// Layout for a table T:
//
//	"T"(id TEXT PRIMARY KEY, seq INTEGER, doc TEXT, "ix_<index>" ...)
//	"T__multi"(record_id, field, pos, value)
//
// Scalar indexes are columns of T; multi-valued indexes are rows of the
// inverted side table, one per element, with pos giving the element's
// position in the stored array.
//
// All values are bound as parameters, never interpolated. Identifiers come
// from the schema, whose names are restricted to [a-zA-Z][a-zA-Z0-9]*.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/crm/internal/query"
	"github.com/roach88/crm/internal/schema"
)

// Quote returns a double-quoted SQL identifier.
func Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// Column is the column holding a scalar index of a table.
func Column(indexName string) string {
	if indexName == schema.PrimaryKey {
		return schema.PrimaryKey
	}
	return "ix_" + indexName
}

// MultiTable is the inverted side table of a table.
func MultiTable(table string) string {
	return table + "__multi"
}

// OrderBy is appended to every read so results come back in insertion
// order with a deterministic tiebreaker.
const OrderBy = " ORDER BY seq ASC, id COLLATE BINARY ASC"

// Compiler compiles predicates for one table.
type Compiler struct {
	table *schema.Table
}

// NewCompiler creates a Compiler for t.
func NewCompiler(t *schema.Table) *Compiler {
	return &Compiler{table: t}
}

// Select compiles p into a full statement returning (id, doc) rows.
// The predicate must already have passed query.Validate.
func (c *Compiler) Select(p query.Predicate) (string, []any, error) {
	where, params, err := c.Where(p)
	if err != nil {
		return "", nil, err
	}
	sql := fmt.Sprintf("SELECT id, doc FROM %s WHERE %s%s", Quote(c.table.Name), where, OrderBy)
	return sql, params, nil
}

// Where compiles p into a WHERE fragment and its parameters.
func (c *Compiler) Where(p query.Predicate) (string, []any, error) {
	switch pred := query.Normalize(p).(type) {
	case nil:
		return "", nil, fmt.Errorf("cannot compile nil predicate")
	case query.Equals:
		return c.compileEquals(pred)
	case query.AnyOf:
		return c.compileAnyOf(pred)
	case query.NoneOf:
		return c.compileNoneOf(pred)
	case query.Between:
		return c.compileBetween(pred)
	case query.Contains:
		return c.compileContains(pred)
	case query.StartsWith:
		return c.compileStartsWith(pred)
	case query.Or:
		return c.compileJunction(" OR ", pred.Predicates)
	case query.And:
		return c.compileJunction(" AND ", pred.Predicates)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func (c *Compiler) index(field string) (schema.Index, error) {
	if field == schema.PrimaryKey {
		return query.PrimaryIndex, nil
	}
	idx, ok := c.table.Index(field)
	if !ok {
		return schema.Index{}, fmt.Errorf("%s.%s is not indexed", c.table.Name, field)
	}
	return idx, nil
}

func (c *Compiler) keys(idx schema.Index, values ...any) ([]any, error) {
	params := make([]any, len(values))
	for i, v := range values {
		k, err := query.Key(idx, v)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", c.table.Name, idx.Name, err)
		}
		params[i] = k
	}
	return params, nil
}

// compileEquals compiles to "col = ?".
func (c *Compiler) compileEquals(eq query.Equals) (string, []any, error) {
	idx, err := c.index(eq.Field)
	if err != nil {
		return "", nil, err
	}
	params, err := c.keys(idx, eq.Value)
	if err != nil {
		return "", nil, err
	}
	return Quote(Column(idx.Name)) + " = ?", params, nil
}

// compileAnyOf compiles to "col IN (?, ...)"; an empty set matches nothing.
func (c *Compiler) compileAnyOf(a query.AnyOf) (string, []any, error) {
	if len(a.Values) == 0 {
		return "0 = 1", nil, nil
	}
	idx, err := c.index(a.Field)
	if err != nil {
		return "", nil, err
	}
	params, err := c.keys(idx, a.Values...)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("%s IN (%s)", Quote(Column(idx.Name)), placeholders(len(params))), params, nil
}

// compileNoneOf compiles to "col IS NOT NULL AND col NOT IN (...)".
func (c *Compiler) compileNoneOf(none query.NoneOf) (string, []any, error) {
	idx, err := c.index(none.Field)
	if err != nil {
		return "", nil, err
	}
	col := Quote(Column(idx.Name))
	if len(none.Values) == 0 {
		return col + " IS NOT NULL", nil, nil
	}
	params, err := c.keys(idx, none.Values...)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("(%s IS NOT NULL AND %s NOT IN (%s))", col, col, placeholders(len(params))), params, nil
}

// compileBetween compiles to the inclusive "col BETWEEN ? AND ?".
func (c *Compiler) compileBetween(b query.Between) (string, []any, error) {
	idx, err := c.index(b.Field)
	if err != nil {
		return "", nil, err
	}
	params, err := c.keys(idx, b.Low, b.High)
	if err != nil {
		return "", nil, err
	}
	return Quote(Column(idx.Name)) + " BETWEEN ? AND ?", params, nil
}

// compileContains looks the element up in the inverted index.
func (c *Compiler) compileContains(ct query.Contains) (string, []any, error) {
	sql := fmt.Sprintf("id IN (SELECT record_id FROM %s WHERE field = ? AND value = ?)",
		Quote(MultiTable(c.table.Name)))
	return sql, []any{ct.Field, ct.Value}, nil
}

// compileStartsWith requires the element at every prefix position to
// match. (record_id, field, pos) is unique, so a full count means the
// whole prefix matched.
func (c *Compiler) compileStartsWith(sw query.StartsWith) (string, []any, error) {
	if len(sw.Prefix) == 0 {
		return "", nil, fmt.Errorf("%s.%s: empty prefix", c.table.Name, sw.Field)
	}

	terms := make([]string, len(sw.Prefix))
	params := []any{sw.Field}
	for i, v := range sw.Prefix {
		terms[i] = "(pos = ? AND value = ?)"
		params = append(params, i, v)
	}
	params = append(params, len(sw.Prefix))

	sql := fmt.Sprintf(
		"id IN (SELECT record_id FROM %s WHERE field = ? AND (%s) GROUP BY record_id HAVING COUNT(*) = ?)",
		Quote(MultiTable(c.table.Name)),
		strings.Join(terms, " OR "),
	)
	return sql, params, nil
}

func (c *Compiler) compileJunction(op string, preds []query.Predicate) (string, []any, error) {
	if len(preds) == 0 {
		return "", nil, fmt.Errorf("empty%s", strings.ToLower(op))
	}

	parts := make([]string, 0, len(preds))
	var params []any
	for _, p := range preds {
		sql, ps, err := c.Where(p)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, "("+sql+")")
		params = append(params, ps...)
	}
	return strings.Join(parts, op), params, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
