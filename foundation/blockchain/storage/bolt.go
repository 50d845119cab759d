package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// ledgerBucket is the single bucket holding the three collections.
var ledgerBucket = []byte("ledger")

// Bolt represents the storage implementation for keeping the ledger in a
// single bbolt file. All three collections are written inside one read
// write transaction. This implements the Store interface.
type Bolt struct {
	mu        sync.Mutex
	dbPath    string
	db        *bolt.DB
	evHandler EventHandler
}

// NewBolt constructs a Bolt value for use. The file is opened by Initialize.
func NewBolt(dbPath string, evHandler EventHandler) *Bolt {
	if evHandler == nil {
		evHandler = func(string, ...any) {}
	}

	return &Bolt{
		dbPath:    dbPath,
		evHandler: evHandler,
	}
}

// Initialize opens the database file, creating it and the ledger bucket
// when they don't exist.
func (b *Bolt) Initialize() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(b.dbPath), 0755); err != nil {
		return fmt.Errorf("%w: creating directory: %s", ErrStorage, err)
	}

	db, err := bolt.Open(b.dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("%w: opening bolt file: %s", ErrStorage, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(ledgerBucket)
		return err
	})
	if err != nil {
		db.Close()
		return fmt.Errorf("%w: creating bucket: %s", ErrStorage, err)
	}

	b.db = db
	b.evHandler("storage: Initialize: bolt file[%s] open", b.dbPath)

	return nil
}

// LoadState reads the three collections in one read only transaction.
func (b *Bolt) LoadState() (State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return State{}, fmt.Errorf("%w: bolt store not initialized", ErrStorage)
	}

	docs := make(map[string][]byte, 3)
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(ledgerBucket)
		if bucket == nil {
			return nil
		}

		for _, name := range []string{chainKey, walletsKey, pendingKey} {

			// Values are only valid for the life of the transaction.
			if v := bucket.Get([]byte(name)); v != nil {
				docs[name] = append([]byte(nil), v...)
			}
		}

		return nil
	})
	if err != nil {
		return State{}, fmt.Errorf("%w: reading bolt file: %s", ErrStorage, err)
	}

	return load(docs, b.evHandler), nil
}

// SaveState writes the three collections in one read write transaction.
func (b *Bolt) SaveState(state State) error {
	docs, err := encode(state)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return fmt.Errorf("%w: bolt store not initialized", ErrStorage)
	}

	err = b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(ledgerBucket)
		if err != nil {
			return err
		}

		for _, name := range []string{chainKey, walletsKey, pendingKey} {
			if err := bucket.Put([]byte(name), docs[name]); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: writing bolt file: %s", ErrStorage, err)
	}

	return nil
}

// Close releases the file lock held by bolt.
func (b *Bolt) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil
	}

	err := b.db.Close()
	b.db = nil
	if err != nil {
		return fmt.Errorf("%w: closing bolt file: %s", ErrStorage, err)
	}

	return nil
}
