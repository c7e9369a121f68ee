package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blobStores(t *testing.T) map[string]BlobStore {
	t.Helper()
	sqlite, err := NewSQLite(filepath.Join(t.TempDir(), "data", "blobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]BlobStore{
		"memory": NewMemoryBlobStore(),
		"sqlite": sqlite,
	}
}

func TestBlobStoreContract(t *testing.T) {
	for name, bs := range blobStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := bs.Get(ctx, "missing")
			assert.True(t, errors.Is(err, ErrNotFound), "want ErrNotFound, got %v", err)

			require.NoError(t, bs.Put(ctx, "documents/u1/a.json", Blob{Data: []byte(`{"a":1}`), ContentType: "application/json"}))
			require.NoError(t, bs.Put(ctx, "documents/u1/b.json", Blob{Data: []byte(`{"b":1}`)}))
			require.NoError(t, bs.Put(ctx, "documents/U1/c.json", Blob{Data: []byte(`{}`)}))
			require.NoError(t, bs.Put(ctx, "files/u1/a", Blob{Data: []byte("raw"), ContentType: "text/plain"}))

			got, err := bs.Get(ctx, "files/u1/a")
			require.NoError(t, err)
			assert.Equal(t, []byte("raw"), got.Data)
			assert.Equal(t, "text/plain", got.ContentType)

			// overwrite
			require.NoError(t, bs.Put(ctx, "files/u1/a", Blob{Data: []byte("raw2"), ContentType: "text/markdown"}))
			got, err = bs.Get(ctx, "files/u1/a")
			require.NoError(t, err)
			assert.Equal(t, "raw2", string(got.Data))

			keys, err := bs.List(ctx, "documents/u1/")
			require.NoError(t, err)
			assert.Equal(t, []string{"documents/u1/a.json", "documents/u1/b.json"}, keys, "prefix match must be case-sensitive")

			require.NoError(t, bs.Delete(ctx, "documents/u1/a.json", "files/u1/a", "never-existed"))
			keys, err = bs.List(ctx, "documents/u1/")
			require.NoError(t, err)
			assert.Equal(t, []string{"documents/u1/b.json"}, keys)
			_, err = bs.Get(ctx, "files/u1/a")
			assert.True(t, errors.Is(err, ErrNotFound))

			require.NoError(t, bs.Delete(ctx))
		})
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blobs.db")
	ctx := context.Background()

	s1, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s1.Put(ctx, "k", Blob{Data: []byte("v"), ContentType: "text/plain"}))
	require.NoError(t, s1.Close())

	s2, err := NewSQLite(path)
	require.NoError(t, err)
	defer s2.Close()
	got, err := s2.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got.Data))
}
