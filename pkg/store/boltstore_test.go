package store

import (
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBoltStore_PutSequence(t *testing.T) {
	s := openTestStore(t)

	bodies := [][]byte{
		[]byte("first"),
		[]byte("second"),
		[]byte("third"),
	}

	for i, body := range bodies {
		key, err := s.Put(body)
		require.NoError(t, err)
		require.Equal(t, strconv.Itoa(i), key)
	}

	for i, body := range bodies {
		got, err := s.Get(strconv.Itoa(i))
		require.NoError(t, err)
		require.Equal(t, body, got)
	}

	counter, err := s.Get(KeyCounter)
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(len(bodies)), string(counter))

	latest, ok, err := s.Latest()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, bodies[len(bodies)-1], latest)

	all, err := s.List()
	require.NoError(t, err)
	require.Len(t, all, len(bodies))
}

func TestBoltStore_LatestEmpty(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.Latest()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBoltStore_GetMissing(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get("0")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBoltStore_CounterRecoversFromMissingValue(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	_, err = s.Put([]byte("a"))
	require.NoError(t, err)
	_, err = s.Put([]byte("b"))
	require.NoError(t, err)

	// Drop __counter__ to simulate a crash between the body write and
	// the counter write: the counter goes missing but the highest
	// numeric key is still present.
	require.NoError(t, s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRequests).Delete([]byte(KeyCounter))
	}))
	require.NoError(t, s.Close())

	s2, err := Open(dir)
	require.NoError(t, err)
	defer s2.Close()

	key, err := s2.Put([]byte("c"))
	require.NoError(t, err)
	require.Equal(t, "2", key)
}

func TestBoltStore_ReopenPreservesPath(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(filepath.Join(dir))
	require.NoError(t, err)
}
