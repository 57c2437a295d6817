package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/crm/internal/errs"
	"github.com/roach88/crm/internal/query"
	"github.com/roach88/crm/internal/querysql"
)

// Get returns the record under id. A missing id is a NotFoundError.
func (t *Table) Get(ctx context.Context, id string) (Row, error) {
	var doc string
	err := t.s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT doc FROM %s WHERE id = ?", t.layout.table), id,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, &errs.NotFoundError{Table: t.Name(), ID: id}
	}
	if err != nil {
		return Row{}, fault("get "+t.Name(), fmt.Errorf("read %s/%s: %w", t.Name(), id, err))
	}
	return Row{ID: id, Doc: []byte(doc)}, nil
}

// ToArray returns every record in insertion order.
//
// Returns an empty slice (not nil) for an empty table.
func (t *Table) ToArray(ctx context.Context) ([]Row, error) {
	rows, err := scanRows(t.s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT id, doc FROM %s", t.layout.table)+querysql.OrderBy))
	if err != nil {
		return nil, fault("toArray "+t.Name(), err)
	}
	return rows, nil
}

// Count returns the number of records.
func (t *Table) Count(ctx context.Context) (int, error) {
	var n int
	if err := t.s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s", t.layout.table),
	).Scan(&n); err != nil {
		return 0, fault("count "+t.Name(), fmt.Errorf("count %s: %w", t.Name(), err))
	}
	return n, nil
}

// Where returns the records matching p in insertion order.
//
// p is validated against the table's indexes first; a predicate the
// indexes cannot answer is a QueryError and nothing is read.
func (t *Table) Where(ctx context.Context, p query.Predicate) ([]Row, error) {
	if err := query.Validate(t.layout.def, p); err != nil {
		return nil, err
	}

	stmt, params, err := t.compiler.Select(p)
	if err != nil {
		return nil, errs.BadQuery(t.Name(), "", "%v", err)
	}

	rows, err := scanRows(t.s.db.QueryContext(ctx, stmt, params...))
	if err != nil {
		return nil, fault("where "+t.Name(), err)
	}

	t.s.log.Debug("query", "table", t.Name(), "sql", stmt, "matched", len(rows))
	return rows, nil
}

// scanRows drains (id, doc) rows. Returns an empty slice (not nil) when
// there are none.
func scanRows(rows *sql.Rows, err error) ([]Row, error) {
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		var (
			id  string
			doc string
		)
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, Row{ID: id, Doc: []byte(doc)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}
