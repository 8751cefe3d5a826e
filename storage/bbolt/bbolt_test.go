package bbolt

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acoghlan/tokengate/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.db")
	s, err := NewStoreFromFile(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_PutGetDelete(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Put("session/token", []byte("tok")))

	v, err := s.Get("session/token")
	require.NoError(t, err)
	assert.Equal(t, []byte("tok"), v)

	require.NoError(t, s.Delete("session/token"))
	_, err = s.Get("session/token")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_GetBeforeAnyPut(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("anything")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_DeleteIdempotent(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Delete("absent"))
	assert.NoError(t, s.Delete("absent"))
}

func TestStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")

	s, err := NewStoreFromFile(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Put("k", []byte("v")))
	require.NoError(t, s.Close())

	s2, err := NewStoreFromFile(path, nil)
	require.NoError(t, err)
	defer s2.Close()

	v, err := s2.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}
