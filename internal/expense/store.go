package expense

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/wenqian/expense-scanner/internal/record"
)

const bucketName = "records"

// Store defines the persistence contract for the record collection. Saves
// replace the whole collection; there is no incremental write.
type Store interface {
	// GetAll returns every stored record.
	GetAll() ([]record.Record, error)

	// SaveAll replaces the stored collection with records.
	SaveAll(records []record.Record) error

	// Clear removes every stored record.
	Clear() error

	// Close closes the store.
	Close() error
}

// BoltStore implements Store using BoltDB, keyed by the record time key so
// the uniqueness invariant holds at the storage layer too.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (creating if needed) a BoltDB record store.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// GetAll returns every stored record.
func (b *BoltStore) GetAll() ([]record.Record, error) {
	records := make([]record.Record, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var r record.Record
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("unmarshaling record %s: %w", k, err)
			}
			records = append(records, r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// SaveAll replaces the stored collection with records.
func (b *BoltStore) SaveAll(records []record.Record) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketName)); err != nil {
			return fmt.Errorf("clearing bucket: %w", err)
		}
		bucket, err := tx.CreateBucket([]byte(bucketName))
		if err != nil {
			return fmt.Errorf("recreating bucket: %w", err)
		}
		for _, r := range records {
			data, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("marshaling record: %w", err)
			}
			if err := bucket.Put([]byte(r.Time), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Clear removes every stored record.
func (b *BoltStore) Clear() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketName)); err != nil {
			return fmt.Errorf("clearing bucket: %w", err)
		}
		_, err := tx.CreateBucket([]byte(bucketName))
		return err
	})
}

// Close closes the underlying database.
func (b *BoltStore) Close() error {
	return b.db.Close()
}
