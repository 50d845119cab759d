package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Disk represents the storage implementation for reading and storing the
// ledger as three human readable JSON files in a directory. This implements
// the Store interface.
type Disk struct {
	mu        sync.Mutex
	dbPath    string
	evHandler EventHandler
}

// NewDisk constructs a Disk value for use. Nothing is touched on disk until
// Initialize is called.
func NewDisk(dbPath string, evHandler EventHandler) *Disk {
	if evHandler == nil {
		evHandler = func(string, ...any) {}
	}

	return &Disk{
		dbPath:    dbPath,
		evHandler: evHandler,
	}
}

// Initialize makes sure the directory exists and creates any missing file
// with an empty collection. It is safe to call on every startup.
func (d *Disk) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(d.dbPath, 0755); err != nil {
		return fmt.Errorf("%w: creating directory: %s", ErrStorage, err)
	}

	defaults := map[string]string{
		chainKey:   "[]",
		walletsKey: "{}",
		pendingKey: "[]",
	}

	for name, empty := range defaults {
		_, err := os.Stat(d.getPath(name))
		switch {
		case err == nil:
			continue
		case !errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("%w: checking %s: %s", ErrStorage, name, err)
		}

		if err := d.writeFile(name, []byte(empty)); err != nil {
			return err
		}
		d.evHandler("storage: Initialize: created %s", name)
	}

	return nil
}

// LoadState reads the three files. A file that is missing, empty or fails
// to parse is replaced by an empty collection.
func (d *Disk) LoadState() (State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	docs := make(map[string][]byte, 3)
	for _, name := range []string{chainKey, walletsKey, pendingKey} {
		data, err := os.ReadFile(d.getPath(name))
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				d.evHandler("storage: LoadState: WARNING: %s: unable to read, using empty default: %s", name, err)
			}
			continue
		}
		docs[name] = data
	}

	return load(docs, d.evHandler), nil
}

// SaveState writes the three files. Each file is written to a temporary
// file in the same directory and renamed over the original, so a reader
// never observes a half written file.
func (d *Disk) SaveState(state State) error {
	docs, err := encode(state)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, name := range []string{chainKey, walletsKey, pendingKey} {
		if err := d.writeFile(name, docs[name]); err != nil {
			return err
		}
	}

	return nil
}

// Close in this implementation has nothing to do since every file is
// opened and closed on each write.
func (d *Disk) Close() error {
	return nil
}

// getPath forms the path to the specified collection file.
func (d *Disk) getPath(name string) string {
	return filepath.Join(d.dbPath, name+".json")
}

// writeFile atomically replaces the collection file with the data.
func (d *Disk) writeFile(name string, data []byte) error {
	f, err := os.CreateTemp(d.dbPath, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp file for %s: %s", ErrStorage, name, err)
	}
	tmpName := f.Name()

	// Make sure the temp file never survives a failure.
	defer os.Remove(tmpName)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("%w: writing %s: %s", ErrStorage, name, err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("%w: syncing %s: %s", ErrStorage, name, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %s", ErrStorage, name, err)
	}

	if err := os.Rename(tmpName, d.getPath(name)); err != nil {
		return fmt.Errorf("%w: replacing %s: %s", ErrStorage, name, err)
	}

	return nil
}
