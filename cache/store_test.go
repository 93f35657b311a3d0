package cache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zostay/go-mailpart/cache"
	"github.com/zostay/go-mailpart/message"
	"github.com/zostay/go-mailpart/stream"
)

func openTestStore(t *testing.T) *cache.Store {
	t.Helper()
	store, err := cache.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)

	root, err := message.Parse(stream.NewBuffer(
		[]byte("Subject: hi\n\nhello world\n")))
	require.NoError(t, err)
	blob := message.Serialize(root)

	require.NoError(t, store.Put("guid-1", blob))

	got, err := store.Get("guid-1")
	require.NoError(t, err)
	assert.Equal(t, blob, got)

	tree, err := message.Deserialize(got)
	require.NoError(t, err)
	assert.Equal(t, root, tree)
}

func TestStoreMiss(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	_, err := store.Get("no-such-guid")
	assert.ErrorIs(t, err, cache.ErrMiss)
}

func TestStorePutReplaces(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	require.NoError(t, store.Put("g", []byte{1, 2, 3}))
	require.NoError(t, store.Put("g", []byte{4, 5}))

	got, err := store.Get("g")
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 5}, got)

	n, err := store.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStoreDeleteAndInvalidate(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	require.NoError(t, store.Put("a", []byte{1}))
	require.NoError(t, store.Put("b", []byte{2}))

	require.NoError(t, store.Delete("a"))
	_, err := store.Get("a")
	assert.ErrorIs(t, err, cache.ErrMiss)

	require.NoError(t, store.Delete("a"), "double delete is fine")

	require.NoError(t, store.InvalidateAll())
	n, err := store.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
