// Package kvstore provides the non-volatile key-value store used for device
// secrets. Each namespace maps to its own bucket.
package kvstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/ghalamif/QuakeFlow/internal/ports"
)

// ErrNotFound is returned by Get for absent keys.
var ErrNotFound = errors.New("quakeflow: key not found")

// BoltStore persists keys in a BoltDB file; writes are fsynced before Put returns.
type BoltStore struct {
	db        *bbolt.DB
	namespace []byte
}

// OpenBolt opens (or creates) the store at path scoped to namespace.
func OpenBolt(path, namespace string) (*BoltStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if strings.TrimSpace(namespace) == "" {
		return nil, fmt.Errorf("store namespace is required")
	}

	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}

	s := &BoltStore{db: db, namespace: []byte(namespace)}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.namespace)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create namespace bucket: %w", err)
	}
	return s, nil
}

func (s *BoltStore) Has(key string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(s.namespace)
		if bucket == nil {
			return fmt.Errorf("namespace %q is missing", s.namespace)
		}
		found = bucket.Get([]byte(key)) != nil
		return nil
	})
	return found, err
}

func (s *BoltStore) Get(key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(s.namespace)
		if bucket == nil {
			return fmt.Errorf("namespace %q is missing", s.namespace)
		}
		v := bucket.Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		// bolt values are only valid inside the transaction
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

func (s *BoltStore) Put(key string, value []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(s.namespace)
		if bucket == nil {
			return fmt.Errorf("namespace %q is missing", s.namespace)
		}
		return bucket.Put([]byte(key), value)
	})
}

func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ ports.KVStore = (*BoltStore)(nil)
