package store

import (
	"sort"
	"strings"

	bolt "go.etcd.io/bbolt"
)

// kvBucket is the single bucket every path is stored under; BoltStore's flat
// path namespace doesn't need bolt's own nested-bucket hierarchy (unlike the
// teacher's per-subsystem bucket layout in client/state/db_bolt.go) since
// PersistentStore is specified as one flat key/value space (spec.md Sec 1).
var kvBucket = []byte("kv")

// BoltStore is a bbolt-backed PersistentStore for single-node local and
// development deployments (spec.md Sec 4.13); a replicated external KV
// backend is a production deployment's job and out of scope here.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) a bbolt database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(kvBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

// Close releases the underlying database file.
func (b *BoltStore) Close() error {
	return b.db.Close()
}

func (b *BoltStore) Get(path string) ([]byte, error) {
	path = clean(path)
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(kvBucket).Get([]byte(path))
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

func (b *BoltStore) Set(path string, value []byte) error {
	path = clean(path)
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(kvBucket).Put([]byte(path), value)
	})
}

func (b *BoltStore) Delete(path string) error {
	path = clean(path)
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(kvBucket)
		if bkt.Get([]byte(path)) == nil {
			return ErrNotFound
		}
		return bkt.Delete([]byte(path))
	})
}

func (b *BoltStore) RecursiveDelete(path string) error {
	path = clean(path)
	prefix := []byte(path + "/")
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(kvBucket)
		c := bkt.Cursor()
		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if string(k) == path || strings.HasPrefix(string(k), string(prefix)) || path == "" {
				toDelete = append(toDelete, append([]byte(nil), k...))
			}
		}
		for _, k := range toDelete {
			if err := bkt.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BoltStore) List(path string) ([]string, error) {
	path = clean(path)
	prefix := path + "/"
	if path == "" {
		prefix = ""
	}
	seen := make(map[string]bool)
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(kvBucket).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			key := string(k)
			if !strings.HasPrefix(key, prefix) {
				continue
			}
			rest := strings.TrimPrefix(key, prefix)
			if rest == "" {
				continue
			}
			if idx := strings.Index(rest, "/"); idx >= 0 {
				rest = rest[:idx]
			}
			seen[rest] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}
