package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
)

// LevelDB represents the storage implementation for keeping the ledger in a
// goleveldb directory. All three collections are written as one batch. This
// implements the Store interface.
type LevelDB struct {
	mu        sync.Mutex
	dbPath    string
	db        *leveldb.DB
	evHandler EventHandler
}

// NewLevelDB constructs a LevelDB value for use. The database is opened by
// Initialize.
func NewLevelDB(dbPath string, evHandler EventHandler) *LevelDB {
	if evHandler == nil {
		evHandler = func(string, ...any) {}
	}

	return &LevelDB{
		dbPath:    dbPath,
		evHandler: evHandler,
	}
}

// Initialize opens the database directory, creating it when it doesn't
// exist. A corrupted manifest is recovered instead of failing.
func (l *LevelDB) Initialize() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db != nil {
		return nil
	}

	db, err := leveldb.OpenFile(l.dbPath, nil)
	if lerrors.IsCorrupted(err) {
		l.evHandler("storage: Initialize: WARNING: leveldb[%s] corrupted, recovering: %s", l.dbPath, err)
		db, err = leveldb.RecoverFile(l.dbPath, nil)
	}
	if err != nil {
		return fmt.Errorf("%w: opening leveldb: %s", ErrStorage, err)
	}

	l.db = db
	l.evHandler("storage: Initialize: leveldb[%s] open", l.dbPath)

	return nil
}

// LoadState reads the three collections. A missing key is an empty
// collection.
func (l *LevelDB) LoadState() (State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return State{}, fmt.Errorf("%w: leveldb store not initialized", ErrStorage)
	}

	docs := make(map[string][]byte, 3)
	for _, name := range []string{chainKey, walletsKey, pendingKey} {
		data, err := l.db.Get([]byte(name), nil)
		switch {
		case errors.Is(err, leveldb.ErrNotFound):
			continue
		case err != nil:
			return State{}, fmt.Errorf("%w: reading %s: %s", ErrStorage, name, err)
		}
		docs[name] = data
	}

	return load(docs, l.evHandler), nil
}

// SaveState writes the three collections in a single batch.
func (l *LevelDB) SaveState(state State) error {
	docs, err := encode(state)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return fmt.Errorf("%w: leveldb store not initialized", ErrStorage)
	}

	batch := new(leveldb.Batch)
	for _, name := range []string{chainKey, walletsKey, pendingKey} {
		batch.Put([]byte(name), docs[name])
	}

	if err := l.db.Write(batch, nil); err != nil {
		return fmt.Errorf("%w: writing batch: %s", ErrStorage, err)
	}

	return nil
}

// Close releases the database.
func (l *LevelDB) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return nil
	}

	err := l.db.Close()
	l.db = nil
	if err != nil {
		return fmt.Errorf("%w: closing leveldb: %s", ErrStorage, err)
	}

	return nil
}
