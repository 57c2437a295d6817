package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/crm/internal/store"
)

// OpenStore opens a store in a fresh temp directory with sequential ids
// ("rec-0001", ...) and closes it when the test ends.
func OpenStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "crm.db"), store.Options{
		IDs: store.NewSequenceGenerator("rec"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}
