// Package store provides SQLite-backed document storage for the CRM tables.
//
// Every table declared in the schema becomes a SQLite table holding one JSON
// document per record:
//   - id: primary key, assigned by the store on insert
//   - seq: insertion counter, the only ordering used for results
//   - doc: the record as JSON, without its id
//   - ix_<name>: one column per scalar index, extracted from doc
//
// Multi-valued indexes live in an inverted side table "<table>__multi" with
// one row per array element, so membership and prefix predicates are plain
// indexed lookups.
//
// # Ordering
//
// Every read ends in ORDER BY seq ASC, id COLLATE BINARY ASC. Results come
// back in insertion order on every run.
//
// # Schema versions
//
// The declared schema is versioned. Open records the applied version in
// schema_meta (mirrored in PRAGMA user_version) and upgrades older files in
// place: new index columns are added and backfilled from the stored
// documents, indexes no longer declared are dropped. A file written by a
// newer schema, or by a different database name, fails with a StoreFault.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Side-table rows follow their record
//
// Two drivers are supported: mattn/go-sqlite3 ("sqlite3", cgo) and
// modernc.org/sqlite ("sqlite", pure Go).
package store
