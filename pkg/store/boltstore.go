package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	bolt "go.etcd.io/bbolt"
)

var bucketRequests = []byte("requests")

// BoltStore is the bbolt-backed Store implementation. It keeps a single
// bucket and serializes all counter reads/increments inside one
// read-write transaction per Put, so concurrent POSTs from different
// workers never race on the counter.
type BoltStore struct {
	db *bolt.DB
}

// Open creates (if needed) dataDir and the database file inside it, and
// ensures the requests bucket exists.
func Open(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	path := filepath.Join(dataDir, "relayd.db")
	db, err := bolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRequests)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Put implements the two-step counter transaction from spec.md §4.5:
// read __counter__ (tolerating a missing or invalid value), write the
// body under decimal(counter), mirror it under post_data, and write
// counter+1 back. All three writes happen inside one bolt transaction,
// so a reader never observes the body written without the counter
// advanced, or vice versa.
func (s *BoltStore) Put(body []byte) (string, error) {
	var key string

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRequests)

		counter, err := readCounter(b)
		if err != nil {
			return err
		}

		key = strconv.FormatUint(counter, 10)

		if err := b.Put([]byte(key), body); err != nil {
			return err
		}
		if err := b.Put([]byte(KeyPostData), body); err != nil {
			return err
		}
		return b.Put([]byte(KeyCounter), []byte(strconv.FormatUint(counter+1, 10)))
	})
	if err != nil {
		return "", fmt.Errorf("store: put: %w", err)
	}

	return key, nil
}

// readCounter returns the counter to use for the next insert. A missing
// or non-numeric __counter__ is not an error: the store falls back to
// one past the highest existing non-reserved key, matching the crash
// recovery behavior spec.md §3 requires ("readers treat the numerically
// highest key as authoritative when __counter__ is missing or invalid").
func readCounter(b *bolt.Bucket) (uint64, error) {
	raw := b.Get([]byte(KeyCounter))
	if raw != nil {
		if n, err := strconv.ParseUint(string(raw), 10, 64); err == nil {
			return n, nil
		}
	}

	var highest uint64
	seen := false

	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		ks := string(k)
		if ks == KeyCounter || ks == KeyPostData {
			continue
		}
		n, err := strconv.ParseUint(ks, 10, 64)
		if err != nil {
			continue
		}
		if !seen || n > highest {
			highest = n
			seen = true
		}
	}

	if !seen {
		return 0, nil
	}
	return highest + 1, nil
}

func (s *BoltStore) Get(key string) ([]byte, error) {
	var out []byte

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRequests)
		v := b.Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) ByKey(key string) ([]byte, error) {
	return s.Get(key)
}

func (s *BoltStore) Latest() ([]byte, bool, error) {
	v, err := s.Get(KeyPostData)
	if err == ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *BoltStore) List() (map[string][]byte, error) {
	out := make(map[string][]byte)

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRequests)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			ks := string(k)
			if ks == KeyCounter || ks == KeyPostData {
				continue
			}
			out[ks] = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
