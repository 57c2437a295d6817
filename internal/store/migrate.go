package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/crm/internal/querysql"
	"github.com/roach88/crm/internal/schema"
)

const metaDDL = `
CREATE TABLE IF NOT EXISTS schema_meta (
	id      INTEGER PRIMARY KEY CHECK (id = 1),
	name    TEXT NOT NULL,
	version INTEGER NOT NULL
)`

// migrate brings the file up to the latest schema version.
//
// Each version above the stored one is applied in its own transaction.
// Tables are created when missing; tables whose index set changed get new
// columns and a backfill from their stored documents.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, metaDDL); err != nil {
		return fmt.Errorf("create schema_meta: %w", err)
	}

	name, stored, err := s.readMeta(ctx)
	if err != nil {
		return err
	}

	if stored > 0 && name != s.schema.Name {
		return versionFault(fmt.Errorf("database holds schema %q, opened as %q", name, s.schema.Name))
	}

	latest := s.version.Number
	if stored > latest {
		return versionFault(fmt.Errorf("database is at schema version %d, newest known is %d", stored, latest))
	}
	if stored == latest {
		return nil
	}

	var prev *schema.Version
	if stored > 0 {
		prev, _ = s.schema.Version(stored)
	}

	for _, v := range s.schema.Versions {
		if v.Number <= stored {
			continue
		}
		if err := s.withTx(ctx, "upgrade", func(tx *sql.Tx) error {
			return s.upgrade(ctx, tx, prev, v)
		}); err != nil {
			return fmt.Errorf("upgrade to version %d: %w", v.Number, err)
		}
		s.log.Info("schema upgraded", "schema", s.schema.Name, "from", stored, "to", v.Number)
		prev, stored = v, v.Number
	}

	// Mirrors schema_meta for tools that only look at the header.
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", latest)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// readMeta returns the stored schema name and version, or ("", 0) for a
// new file.
func (s *Store) readMeta(ctx context.Context) (string, int, error) {
	var (
		name    string
		version int
	)
	err := s.db.QueryRowContext(ctx, `SELECT name, version FROM schema_meta WHERE id = 1`).Scan(&name, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("read schema_meta: %w", err)
	}
	return name, version, nil
}

func (s *Store) upgrade(ctx context.Context, tx *sql.Tx, prev, next *schema.Version) error {
	for _, def := range next.Tables {
		existed, err := ensureTable(ctx, tx, def)
		if err != nil {
			return err
		}

		var old *schema.Table
		if prev != nil {
			old, _ = prev.Table(def.Name)
		}
		if existed && !sameIndexes(old, def) {
			n, err := reindex(ctx, tx, def)
			if err != nil {
				return err
			}
			s.log.Info("table reindexed", "table", def.Name, "records", n)
		}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO schema_meta (id, name, version) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, version = excluded.version
	`, s.schema.Name, next.Number)
	if err != nil {
		return fmt.Errorf("write schema_meta: %w", err)
	}
	return nil
}

// ensureTable creates the record and side tables for def and reconciles the
// index columns with its declaration. It reports whether the record table
// existed before.
func ensureTable(ctx context.Context, tx *sql.Tx, def *schema.Table) (bool, error) {
	var n int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, def.Name,
	).Scan(&n); err != nil {
		return false, fmt.Errorf("inspect %s: %w", def.Name, err)
	}
	existed := n > 0

	table := querysql.Quote(def.Name)
	multi := querysql.Quote(querysql.MultiTable(def.Name))

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id  TEXT PRIMARY KEY,
	seq INTEGER NOT NULL,
	doc TEXT NOT NULL
)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(seq, id)`, querysql.Quote(def.Name+"_seq"), table),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	record_id TEXT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
	field     TEXT NOT NULL,
	pos       INTEGER NOT NULL,
	value     TEXT NOT NULL,
	PRIMARY KEY (record_id, field, pos)
)`, multi, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(field, value)`,
			querysql.Quote(querysql.MultiTable(def.Name)+"_value"), multi),
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return false, fmt.Errorf("create %s: %w", def.Name, err)
		}
	}

	have, err := columns(ctx, tx, def.Name)
	if err != nil {
		return false, err
	}

	want := make(map[string]bool)
	for _, idx := range def.Scalar() {
		col := querysql.Column(idx.Name)
		want[col] = true
		// Index columns carry no declared type so keys keep their storage
		// class when an index changes type between versions.
		if !have[col] {
			stmt := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s`, table, querysql.Quote(col))
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return false, fmt.Errorf("add %s.%s: %w", def.Name, col, err)
			}
		}
		stmt := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(%s)`,
			querysql.Quote(def.Name+"_"+col), table, querysql.Quote(col))
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return false, fmt.Errorf("index %s.%s: %w", def.Name, col, err)
		}
	}

	// Columns of dropped indexes stay (SQLite cannot always drop them) but
	// lose their index and values.
	for col := range have {
		if !strings.HasPrefix(col, "ix_") || want[col] {
			continue
		}
		stmts := []string{
			fmt.Sprintf(`DROP INDEX IF EXISTS %s`, querysql.Quote(def.Name+"_"+col)),
			fmt.Sprintf(`UPDATE %s SET %s = NULL`, table, querysql.Quote(col)),
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return false, fmt.Errorf("drop %s.%s: %w", def.Name, col, err)
			}
		}
	}

	return existed, nil
}

func columns(ctx context.Context, tx *sql.Tx, table string) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return cols, nil
}

// sameIndexes reports whether two declarations index identically. An
// unknown previous declaration never matches.
func sameIndexes(old, def *schema.Table) bool {
	if old == nil {
		return false
	}
	return slices.EqualFunc(old.Indexes, def.Indexes, func(a, b schema.Index) bool {
		return a.Name == b.Name && a.Type == b.Type && a.Multi == b.Multi && slices.Equal(a.Path, b.Path)
	})
}

// reindex recomputes every index entry of def from the stored documents.
func reindex(ctx context.Context, tx *sql.Tx, def *schema.Table) (int, error) {
	recs, err := scanRows(tx.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, doc FROM %s`, querysql.Quote(def.Name))+querysql.OrderBy))
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", def.Name, err)
	}

	l := newLayout(def)
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, l.multi)); err != nil {
		return 0, fmt.Errorf("clear %s: %w", l.multi, err)
	}
	for _, r := range recs {
		keys, err := l.extract(r.Doc)
		if err != nil {
			return 0, fmt.Errorf("record %s: %w", r.ID, err)
		}
		if err := l.rewrite(ctx, tx, r.ID, r.Doc, keys); err != nil {
			return 0, err
		}
	}
	return len(recs), nil
}
