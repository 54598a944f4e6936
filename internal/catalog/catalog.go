// Package catalog implements the flist catalog store: a small
// embedded relational KV persisted to a single on-disk file, holding
// the archive's dirnode/ACL records and free-form metadata in two
// logical tables over a bbolt database.
package catalog

import (
	"errors"
	"fmt"

	"go.etcd.io/bbolt"
)

// Bucket names for the current schema. entries holds dirnode and ACL
// records keyed by their K_path/K_acl hex string; metadata holds
// free-form archive-level annotations.
var (
	bucketEntries  = []byte("entries")
	bucketMetadata = []byte("metadata")

	// bucketLegacy is the flat KV shape used by a prior generation of
	// the store. It is only ever read, never written by this
	// implementation.
	bucketLegacy = []byte("kv")
)

// DB is the open catalog store. Every logical mutation below is its
// own bbolt transaction.
type DB struct {
	bolt        *bbolt.DB
	hasLegacy   bool
	legacyNoted bool
}

// Open opens (creating if absent) the catalog file at path and
// ensures the current-schema buckets exist. Idempotent: opening an
// already-initialized catalog is a no-op beyond the handle.
func Open(path string) (*DB, error) {
	bolt, err := bbolt.Open(path, 0666, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}

	db := &DB{bolt: bolt}

	err = bolt.Update(func(tx *bbolt.Tx) error {
		if _, e := tx.CreateBucketIfNotExists(bucketEntries); e != nil {
			return e
		}
		if _, e := tx.CreateBucketIfNotExists(bucketMetadata); e != nil {
			return e
		}
		db.hasLegacy = tx.Bucket(bucketLegacy) != nil
		return nil
	})
	if err != nil {
		_ = bolt.Close()
		return nil, fmt.Errorf("catalog: init schema: %w", err)
	}

	return db, nil
}

// Close closes the catalog file. Idempotent.
func (db *DB) Close() error {
	if db.bolt == nil {
		return nil
	}
	err := db.bolt.Close()
	db.bolt = nil
	return err
}

// Sget reads an entries-table value by key. Returns (nil, false) if
// absent. Falls back to the legacy bucket on a current-schema miss, so
// archives written by either generation of the store read correctly.
func (db *DB) Sget(key string) ([]byte, bool, error) {
	var value []byte
	var found bool

	err := db.bolt.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketEntries).Get([]byte(key)); v != nil {
			value = append([]byte(nil), v...)
			found = true
			return nil
		}
		if db.hasLegacy {
			if legacy := tx.Bucket(bucketLegacy); legacy != nil {
				if v := legacy.Get([]byte(key)); v != nil {
					value = append([]byte(nil), v...)
					found = true
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("catalog: sget %s: %w", key, err)
	}
	return value, found, nil
}

// Sset writes an entries-table value. Idempotent by key.
func (db *DB) Sset(key string, value []byte) error {
	err := db.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEntries).Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("catalog: sset %s: %w", key, err)
	}
	return nil
}

// Sdel removes an entries-table value. Deleting an absent key is not
// an error.
func (db *DB) Sdel(key string) error {
	err := db.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEntries).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("catalog: sdel %s: %w", key, err)
	}
	return nil
}

// Exists reports whether key is present in the entries table (current
// schema or legacy fallback).
func (db *DB) Exists(key string) (bool, error) {
	_, found, err := db.Sget(key)
	return found, err
}

// Keys returns every key currently stored in the entries table. Used
// by callers that need to assert the catalog's reachable state is
// unchanged across a pair of mutations, not by normal archive
// operation.
func (db *DB) Keys() ([]string, error) {
	var keys []string
	err := db.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEntries).ForEach(func(k, v []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: keys: %w", err)
	}
	return keys, nil
}

// Mdget reads a metadata-table string value by name.
func (db *DB) Mdget(name string) (string, bool, error) {
	var value string
	var found bool

	err := db.bolt.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketMetadata).Get([]byte(name))
		if v != nil {
			value = string(v)
			found = true
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("catalog: mdget %s: %w", name, err)
	}
	return value, found, nil
}

// Mdset writes a metadata-table string value.
func (db *DB) Mdset(name, value string) error {
	err := db.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMetadata).Put([]byte(name), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("catalog: mdset %s: %w", name, err)
	}
	return nil
}

// Mddel removes a metadata-table value.
func (db *DB) Mddel(name string) error {
	err := db.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMetadata).Delete([]byte(name))
	})
	if err != nil {
		return fmt.Errorf("catalog: mddel %s: %w", name, err)
	}
	return nil
}

// ErrClosed names the error of using a DB whose Close has already
// run. The methods above do not check for it and do not return it:
// after Close they dereference a nil bbolt handle.
var ErrClosed = errors.New("catalog: db is closed")
