package cart

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storefront.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Read(ctx)
	require.ErrorIs(t, err, ErrNotPersisted)

	require.NoError(t, store.Write(ctx, []byte(`[{"id":"p1"}]`)))
	require.NoError(t, store.Write(ctx, []byte(`[{"id":"p2"}]`)))

	got, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"p2"}]`, string(got), "last write wins")

	require.NoError(t, store.Clear(ctx))
	_, err = store.Read(ctx)
	require.ErrorIs(t, err, ErrNotPersisted)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storefront.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Write(ctx, []byte(`[{"id":"p1"}]`)))

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	got, err := reopened.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"p1"}]`, string(got))
}
