package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/crm/internal/schema"
)

// createTestStore opens a fresh file-backed store with sequential ids.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	return openTestStore(t, filepath.Join(t.TempDir(), "test.db"), Options{})
}

func openTestStore(t *testing.T, path string, opts Options) *Store {
	t.Helper()
	if opts.IDs == nil {
		opts.IDs = NewSequenceGenerator("rec")
	}
	s, err := Open(context.Background(), path, opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func mustTable(t *testing.T, s *Store, name string) *Table {
	t.Helper()
	tbl, err := s.Table(name)
	require.NoError(t, err)
	return tbl
}

func mustDoc(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func rowIDs(rows []Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func loadSchema(t *testing.T, src string) *schema.Schema {
	t.Helper()
	s, err := schema.Load([]byte(src), "test.cue")
	require.NoError(t, err)
	return s
}

const peopleV1 = `
name: "people"
versions: [{
	version: 1
	tables: people: indexes: name: type: "string"
}]
`

const peopleV2 = `
name: "people"
versions: [{
	version: 1
	tables: people: indexes: name: type: "string"
}, {
	version: 2
	tables: people: indexes: {
		city: type: "string"
		nicknames: {type: "string", multi: true}
	}
}]
`
