package store

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/roach88/crm/internal/errs"
	"github.com/roach88/crm/internal/schema"
)

// Supported database/sql driver names.
const (
	DriverMattn   = "sqlite3"
	DriverModernc = "sqlite"
)

// Options configures Open. The zero value opens the default CRM schema with
// the cgo driver, UUIDv7 ids and a discarded log.
type Options struct {
	Driver string
	Schema *schema.Schema
	IDs    IDGenerator
	Logger *slog.Logger
}

func (o Options) withDefaults() (Options, error) {
	if o.Driver == "" {
		o.Driver = DriverMattn
	}
	if o.Driver != DriverMattn && o.Driver != DriverModernc {
		return o, fmt.Errorf("unknown sqlite driver %q (want %q or %q)", o.Driver, DriverMattn, DriverModernc)
	}
	if o.Schema == nil {
		s, err := schema.Default()
		if err != nil {
			return o, err
		}
		o.Schema = s
	}
	if o.IDs == nil {
		o.IDs = UUIDv7Generator{}
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o, nil
}

// Store is an open CRM database.
type Store struct {
	db      *sql.DB
	schema  *schema.Schema
	version *schema.Version
	ids     IDGenerator
	log     *slog.Logger
	tables  map[string]*Table
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and schema upgrades automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// Opening the same file twice is safe. Failures are *errs.StoreFault;
// FaultVersion when the file belongs to a newer schema or another database.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(opts.Driver, path)
	if err != nil {
		return nil, fault("open", fmt.Errorf("failed to open database: %w", err))
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fault("open", fmt.Errorf("failed to connect to database: %w", err))
	}

	// SQLite only supports one writer at a time, so limit connections.
	// A single connection also keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, fault("open", fmt.Errorf("failed to apply pragmas: %w", err))
	}

	s := &Store{
		db:      db,
		schema:  opts.Schema,
		version: opts.Schema.Latest(),
		ids:     opts.IDs,
		log:     opts.Logger,
	}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fault("open", err)
	}

	s.tables = make(map[string]*Table, len(s.version.Tables))
	for _, def := range s.version.Tables {
		s.tables[def.Name] = newTable(s, def)
	}

	s.log.Debug("store opened",
		"path", path,
		"driver", opts.Driver,
		"schema", s.schema.Name,
		"version", s.version.Number)

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Table methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Schema returns the schema the store was opened with.
func (s *Store) Schema() *schema.Schema {
	return s.schema
}

// Version returns the applied schema version.
func (s *Store) Version() int {
	return s.version.Number
}

// Table returns the named table. Unknown names are a QueryError.
func (s *Store) Table(name string) (*Table, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, errs.BadQuery(name, "", "no such table in schema %q version %d", s.schema.Name, s.version.Number)
	}
	return t, nil
}

// TableNames lists the tables of the applied version in name order.
func (s *Store) TableNames() []string {
	return s.version.TableNames()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// withTx runs fn in a transaction, rolling back when fn fails.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fault(op, fmt.Errorf("begin: %w", err))
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return fault(op, err)
	}

	if err := tx.Commit(); err != nil {
		return fault(op, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
