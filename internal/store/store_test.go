package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/crm/internal/errs"
	"github.com/roach88/crm/internal/query"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	openTestStore(t, path, Options{})

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_OpensExistingDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(ctx, path, Options{})
	require.NoError(t, err)
	id, err := mustTable(t, s1, "contacts").Add(ctx, []byte(`{"name":"Ada"}`))
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2 := openTestStore(t, path, Options{})
	row, err := mustTable(t, s2, "contacts").Get(ctx, id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Ada"}`, string(row.Doc))
	assert.Equal(t, 1, s2.Version())
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
		{"user_version", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.verifyPragma(tt.name, tt.expected); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestOpen_BothDrivers(t *testing.T) {
	for _, driver := range []string{DriverMattn, DriverModernc} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			s := openTestStore(t, filepath.Join(t.TempDir(), "test.db"), Options{Driver: driver})
			contacts := mustTable(t, s, "contacts")

			_, err := contacts.Add(ctx, []byte(`{"name":"Ada","tags":["vip","math"]}`))
			require.NoError(t, err)

			rows, err := contacts.Where(ctx, query.Contains{Field: "tags", Value: "math"})
			require.NoError(t, err)
			assert.Equal(t, []string{"rec-0001"}, rowIDs(rows))
		})
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "x.db"), Options{Driver: "postgres"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown sqlite driver")
}

func TestOpen_NewerVersionIsVersionFault(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(ctx, path, Options{Schema: loadSchema(t, peopleV2)})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(ctx, path, Options{Schema: loadSchema(t, peopleV1)})
	require.Error(t, err)

	var sf *errs.StoreFault
	require.ErrorAs(t, err, &sf)
	assert.Equal(t, errs.FaultVersion, sf.Reason)
	assert.Contains(t, err.Error(), "version 2")
}

func TestOpen_OtherDatabaseIsVersionFault(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(ctx, path, Options{Schema: loadSchema(t, peopleV1)})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(ctx, path, Options{})

	var sf *errs.StoreFault
	require.ErrorAs(t, err, &sf)
	assert.Equal(t, errs.FaultVersion, sf.Reason)
	assert.Contains(t, err.Error(), `"people"`)
}

func TestOpen_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.db")
	garbage := make([]byte, 8192)
	for i := range garbage {
		garbage[i] = 'x'
	}
	require.NoError(t, os.WriteFile(path, garbage, 0o600))

	_, err := Open(context.Background(), path, Options{})
	require.Error(t, err)
	assert.True(t, errs.IsStoreFault(err), "got %T: %v", err, err)
}

func TestOpen_UpgradeBackfillsNewIndexes(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	v1, err := Open(ctx, path, Options{Schema: loadSchema(t, peopleV1), IDs: NewSequenceGenerator("p")})
	require.NoError(t, err)
	people := mustTable(t, v1, "people")
	_, err = people.BulkAdd(ctx, [][]byte{
		[]byte(`{"name":"Ada","city":"London","nicknames":["countess","enchantress"]}`),
		[]byte(`{"name":"Grace","city":"Arlington"}`),
	})
	require.NoError(t, err)

	_, err = people.Where(ctx, query.Equals{Field: "city", Value: "London"})
	assert.True(t, errs.IsQuery(err), "city is not indexed at version 1")
	require.NoError(t, v1.Close())

	v2 := openTestStore(t, path, Options{Schema: loadSchema(t, peopleV2)})
	assert.Equal(t, 2, v2.Version())
	people = mustTable(t, v2, "people")

	rows, err := people.Where(ctx, query.Equals{Field: "city", Value: "London"})
	require.NoError(t, err)
	assert.Equal(t, []string{"p-0001"}, rowIDs(rows))

	rows, err = people.Where(ctx, query.StartsWith{Field: "nicknames", Prefix: []string{"countess"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"p-0001"}, rowIDs(rows))

	_, err = people.Where(ctx, query.Equals{Field: "name", Value: "Ada"})
	assert.True(t, errs.IsQuery(err), "name index was replaced at version 2")

	require.NoError(t, v2.verifyPragma("user_version", "2"))
}

func TestStore_UnknownTable(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Table("widgets")
	require.Error(t, err)
	assert.True(t, errs.IsQuery(err))
}

func TestStore_TableNames(t *testing.T) {
	s := createTestStore(t)

	assert.Equal(t, []string{
		"contacts", "documents", "events", "goals", "invoices",
		"notes", "projects", "tasks", "timeEntries",
	}, s.TableNames())
}

func TestSequenceGenerator(t *testing.T) {
	g := NewSequenceGenerator("")
	assert.Equal(t, "id-0001", g.Generate())
	assert.Equal(t, "id-0002", g.Generate())

	u := UUIDv7Generator{}.Generate()
	assert.Len(t, u, 36)
}
