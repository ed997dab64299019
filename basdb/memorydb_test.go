package basdb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryDatabase(t *testing.T) {
	db := NewMemoryDatabase()
	defer db.Close()

	_, err := db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Put([]byte("k"), []byte("v")))
	ok, err := db.Has([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)

	val, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), val)

	// Stored values are detached from the caller's buffer.
	buf := []byte("vvv")
	require.NoError(t, db.Put([]byte("k2"), buf))
	buf[0] = 'x'
	val, err = db.Get([]byte("k2"))
	require.NoError(t, err)
	require.Equal(t, []byte("vvv"), val)

	require.NoError(t, db.Delete([]byte("k")))
	ok, err = db.Has([]byte("k"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLevelDBDatabase(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "chaindata")
	db, err := NewLevelDBDatabase(dir)
	require.NoError(t, err)

	require.NoError(t, db.Put([]byte("k"), []byte("v")))
	val, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), val)
	require.NoError(t, db.Close())

	// Reopen: the value survives.
	db, err = NewLevelDBDatabase(dir)
	require.NoError(t, err)
	val, err = db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), val)
	_, err = db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, db.Close())
}
