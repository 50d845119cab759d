package storage

import (
	"fmt"
	"sync"
)

// Memory represents the storage implementation for keeping the ledger in
// memory. The state is kept in its serialized form so callers never share
// data with the store. This implements the Store interface.
type Memory struct {
	mu   sync.RWMutex
	docs map[string][]byte
	fail error
}

// NewMemory constructs a Memory value for use.
func NewMemory() *Memory {
	return &Memory{
		docs: make(map[string][]byte),
	}
}

// Initialize in this implementation has nothing to create.
func (m *Memory) Initialize() error {
	return nil
}

// LoadState returns a copy of the last saved state.
func (m *Memory) LoadState() (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return load(m.docs, func(string, ...any) {}), nil
}

// SaveState replaces the stored state.
func (m *Memory) SaveState(state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail != nil {
		return fmt.Errorf("%w: %s", ErrStorage, m.fail)
	}

	docs, err := encode(state)
	if err != nil {
		return err
	}
	m.docs = docs

	return nil
}

// Close in this implementation has nothing to do since everything
// is in memory.
func (m *Memory) Close() error {
	return nil
}

// FailSaves makes every following SaveState call return the error. Passing
// nil restores normal behavior. This exists to exercise save failures.
func (m *Memory) FailSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fail = err
}

// Corrupt replaces the stored document for the named collection with the
// raw data. This exists to exercise load fallbacks.
func (m *Memory) Corrupt(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.docs[name] = data
}
