package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/crm/internal/errs"
	"github.com/roach88/crm/internal/querysql"
	"github.com/roach88/crm/internal/schema"
)

// Row is one stored record: its id and its JSON document.
type Row struct {
	ID  string
	Doc []byte
}

// Table is a handle on one schema table. It stores opaque JSON documents;
// typed validation happens in the layer above.
type Table struct {
	s        *Store
	layout   *layout
	compiler *querysql.Compiler
}

func newTable(s *Store, def *schema.Table) *Table {
	return &Table{
		s:        s,
		layout:   newLayout(def),
		compiler: querysql.NewCompiler(def),
	}
}

// Name returns the table name.
func (t *Table) Name() string {
	return t.layout.def.Name
}

// Def returns the table's index declaration.
func (t *Table) Def() *schema.Table {
	return t.layout.def
}

// Add stores doc under a fresh id and returns the id.
func (t *Table) Add(ctx context.Context, doc []byte) (string, error) {
	ids, err := t.BulkAdd(ctx, [][]byte{doc})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// BulkAdd stores docs in one transaction and returns their ids in input
// order. Either every document is stored or none is.
func (t *Table) BulkAdd(ctx context.Context, docs [][]byte) ([]string, error) {
	extracted := make([]keys, len(docs))
	for i, doc := range docs {
		k, err := t.layout.extract(doc)
		if err != nil {
			return nil, err
		}
		extracted[i] = k
	}

	ids := make([]string, len(docs))
	if len(docs) == 0 {
		return ids, nil
	}

	err := t.s.withTx(ctx, "bulkAdd "+t.Name(), func(tx *sql.Tx) error {
		for i, doc := range docs {
			id := t.s.ids.Generate()
			if err := t.layout.insert(ctx, tx, id, doc, extracted[i]); err != nil {
				return err
			}
			ids[i] = id
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	t.s.log.Debug("records added", "table", t.Name(), "count", len(ids))
	return ids, nil
}

// Put replaces the document stored under id. A missing id is a
// NotFoundError.
func (t *Table) Put(ctx context.Context, id string, doc []byte) error {
	k, err := t.layout.extract(doc)
	if err != nil {
		return err
	}
	return t.s.withTx(ctx, "put "+t.Name(), func(tx *sql.Tx) error {
		return t.layout.rewrite(ctx, tx, id, doc, k)
	})
}

// Modify reads the document under id, passes it to fn and stores what fn
// returns, all in one transaction. An error from fn aborts the change and
// is returned as is.
func (t *Table) Modify(ctx context.Context, id string, fn func(doc []byte) ([]byte, error)) error {
	return t.s.withTx(ctx, "update "+t.Name(), func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx,
			fmt.Sprintf("SELECT doc FROM %s WHERE id = ?", t.layout.table), id,
		).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return &errs.NotFoundError{Table: t.Name(), ID: id}
		}
		if err != nil {
			return fmt.Errorf("read %s/%s: %w", t.Name(), id, err)
		}

		next, err := fn([]byte(current))
		if err != nil {
			return err
		}
		k, err := t.layout.extract(next)
		if err != nil {
			return err
		}
		return t.layout.rewrite(ctx, tx, id, next, k)
	})
}

// Delete removes the record under id. A missing id is a NotFoundError.
func (t *Table) Delete(ctx context.Context, id string) error {
	return t.BulkDelete(ctx, []string{id})
}

// BulkDelete removes every listed record in one transaction. If any id is
// missing nothing is deleted and the NotFoundError names the first one.
// Repeated ids count once.
func (t *Table) BulkDelete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := t.s.withTx(ctx, "bulkDelete "+t.Name(), func(tx *sql.Tx) error {
		seen := make(map[string]bool, len(ids))
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			if err := t.layout.remove(ctx, tx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	t.s.log.Debug("records deleted", "table", t.Name(), "count", len(ids))
	return nil
}

// Clear removes every record of the table.
func (t *Table) Clear(ctx context.Context) error {
	return t.s.withTx(ctx, "clear "+t.Name(), func(tx *sql.Tx) error {
		for _, table := range []string{t.layout.multi, t.layout.table} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}
