package state

import (
	"bytes"
	"strings"
	"sync"

	"github.com/google/btree"
)

// MemoryBackend is an ordered in-memory Backend.
type MemoryBackend struct {
	mu     sync.RWMutex
	tree   *btree.BTreeG[entry]
	closed bool
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		tree: btree.NewG[entry](btreeDegree, entryLess),
	}
}

// Get retrieves a value.
func (m *MemoryBackend) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	e, ok := m.tree.Get(entry{key: string(key)})
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(e.value), nil
}

// Has checks if a key exists.
func (m *MemoryBackend) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, ErrClosed
	}
	return m.tree.Has(entry{key: string(key)}), nil
}

// Apply writes a batch.
func (m *MemoryBackend) Apply(b *Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return b.Each(func(key, value []byte, del bool) error {
		if del {
			m.tree.Delete(entry{key: string(key)})
			return nil
		}
		m.tree.ReplaceOrInsert(entry{key: string(key), value: bytes.Clone(value)})
		return nil
	})
}

// Iterate walks keys with the given prefix in ascending order.
func (m *MemoryBackend) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}

	p := string(prefix)
	var err error
	m.tree.AscendGreaterOrEqual(entry{key: p}, func(e entry) bool {
		if !strings.HasPrefix(e.key, p) {
			return false
		}
		err = fn([]byte(e.key), bytes.Clone(e.value))
		return err == nil
	})
	return err
}

// Len returns the number of stored keys.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.Len()
}

// Close marks the backend closed.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.closed = true
	return nil
}
