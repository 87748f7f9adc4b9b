package assets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newMemStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewMemStore(nil)
	require.NoError(t, err)
	return store
}

func TestNormPath(t *testing.T) {
	require.Equal(t, "data/north/metadata.json", NormPath("/data/north/../north/metadata.json"))
	require.Equal(t, "data/x", NormPath(`\data\x`))
	require.Equal(t, ".", NormPath("/"))
	require.Equal(t, ".", NormPath(""))
}

func TestStore_WriteExistsRead(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)

	exists, err := store.Exists(ctx, "/projects/site.rotgis")
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, store.WriteFile(ctx, "/projects/site.rotgis", []byte("a: 1\n")))
	exists, err = store.Exists(ctx, "/projects/site.rotgis")
	require.NoError(t, err)
	require.True(t, exists)

	data, err := store.ReadFile(ctx, "/projects/site.rotgis")
	require.NoError(t, err)
	require.Equal(t, "a: 1\n", string(data))

	require.NoError(t, store.WriteFile(ctx, "/projects/site.rotgis", []byte("b")))
	data, err = store.ReadFile(ctx, "/projects/site.rotgis")
	require.NoError(t, err)
	require.Equal(t, "b", string(data))

	_, err = store.ReadFile(ctx, "/nowhere")
	require.Error(t, err)

	exists, err = store.Exists(ctx, "")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestStore_RemoveAll(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	require.NoError(t, store.WriteFile(ctx, "/data/north/metadata.json", []byte("{}")))
	require.NoError(t, store.WriteFile(ctx, "/data/north/octree.bin", []byte{1, 2}))

	require.NoError(t, store.RemoveAll(ctx, "/data/north"))
	exists, err := store.Exists(ctx, "/data/north/metadata.json")
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, store.RemoveAll(ctx, "/data/north"))
	require.Error(t, store.RemoveAll(ctx, "/"))
}

func TestStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := newMemStore(t)

	_, err := store.Exists(ctx, "/a")
	require.ErrorIs(t, err, context.Canceled)
}

func TestStore_Discover(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	for _, p := range []string{
		"/survey/north/metadata.json",
		"/survey/north/octree.bin",
		"/survey/legacy/south/cloud.js",
		"/survey/notes.txt",
		"/elsewhere/metadata.json",
	} {
		require.NoError(t, store.WriteFile(ctx, p, []byte("x")))
	}

	found, err := store.Discover(ctx, "/survey")
	require.NoError(t, err)
	require.Equal(t, []string{"/survey/legacy/south/cloud.js", "/survey/north/metadata.json"}, found)

	found, err = store.Discover(ctx, "/survey", "*.txt")
	require.NoError(t, err)
	require.Equal(t, []string{"/survey/notes.txt"}, found)

	_, err = store.Discover(ctx, "/survey", "[")
	require.Error(t, err)
}
