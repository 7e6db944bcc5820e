package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const boltFileName = "vimflowy.db"

// BoltBackend keeps one bucket per document in a bbolt file.
type BoltBackend struct {
	db *bbolt.DB
}

func NewBoltBackend(folder string) (*BoltBackend, error) {
	db, err := bbolt.Open(filepath.Join(folder, boltFileName), 0600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &BoltBackend{db: db}, nil
}

func (b *BoltBackend) Get(_ context.Context, doc, key string) (string, bool, error) {
	var (
		value string
		found bool
	)

	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(doc))
		if bucket == nil {
			return nil
		}
		if data := bucket.Get([]byte(key)); data != nil {
			value, found = string(data), true
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return value, found, nil
}

func (b *BoltBackend) Set(_ context.Context, doc, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(doc))
		if err != nil {
			return fmt.Errorf("failed to create bucket for %s: %w", doc, err)
		}
		return bucket.Put([]byte(key), []byte(value))
	})
}

func (b *BoltBackend) Close() error {
	return b.db.Close()
}
