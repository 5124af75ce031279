// Package state implements the world state shared by every transaction.
//
// The world state is a flat, ordered key-value space persisted by a Backend.
// Programs never touch it directly: each transaction works through a Txn
// that buffers writes in memory, records every key it reads and writes, and
// either commits all buffered writes atomically or discards them.
//
// Key layout (first byte is the namespace):
//   - 0x01 program storage: 0x01 | program (32) | mapping name | key
//   - 0x02 native balances: 0x02 | address (32)
//   - 0x03 program deployments: 0x03 | address (32)
//
// Three backends are provided:
//   - MemoryBackend, an ordered in-memory tree (tests and dev nodes)
//   - BadgerBackend, an LSM store on disk
//   - LevelDBBackend, an alternative LSM store on disk
package state

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fortiblox/X1-Nimbus/internal/types"
	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned by a Backend when a key doesn't exist.
	ErrNotFound = errors.New("key not found")

	// ErrClosed is returned when operating on a closed backend or world.
	ErrClosed = errors.New("state closed")

	// ErrCorrupted is returned when stored data cannot be decoded.
	ErrCorrupted = errors.New("state data corrupted")

	// ErrTxnFinished is returned when using a committed or discarded Txn.
	ErrTxnFinished = errors.New("transaction already finished")

	// ErrUnknownBackend is returned for an unrecognized backend name.
	ErrUnknownBackend = errors.New("unknown state backend")
)

// Key namespaces.
var (
	PrefixStorage = []byte{0x01}
	PrefixBalance = []byte{0x02}
	PrefixProgram = []byte{0x03}
)

// BalanceKey returns the state key of an address's native balance.
func BalanceKey(addr types.Address) []byte {
	return prefixed(PrefixBalance, addr)
}

// ProgramKey returns the state key of a deployment record.
func ProgramKey(addr types.Address) []byte {
	return prefixed(PrefixProgram, addr)
}

func prefixed(prefix []byte, addr types.Address) []byte {
	key := make([]byte, 1+types.AddressSize)
	key[0] = prefix[0]
	copy(key[1:], addr[:])
	return key
}

// Backend is the persistent store beneath the world state.
// Implementations must be safe for concurrent readers alongside one writer.
type Backend interface {
	// Get returns the value of key, or ErrNotFound.
	Get(key []byte) ([]byte, error)

	// Has reports whether key exists.
	Has(key []byte) (bool, error)

	// Apply writes every operation of the batch atomically.
	Apply(b *Batch) error

	// Iterate calls fn for every key with the given prefix in ascending
	// byte order. Returning an error from fn stops iteration.
	Iterate(prefix []byte, fn func(key, value []byte) error) error

	// Close releases the backend.
	Close() error
}

// Batch is an ordered list of writes applied atomically by a Backend.
type Batch struct {
	ops []batchOp
}

type batchOp struct {
	key    []byte
	value  []byte
	delete bool
}

// Set stages key=value.
func (b *Batch) Set(key, value []byte) {
	b.ops = append(b.ops, batchOp{key: key, value: value})
}

// Delete stages the removal of key.
func (b *Batch) Delete(key []byte) {
	b.ops = append(b.ops, batchOp{key: key, delete: true})
}

// Len returns the number of staged operations.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Each calls fn for every staged operation in order.
func (b *Batch) Each(fn func(key, value []byte, delete bool) error) error {
	for _, op := range b.ops {
		if err := fn(op.key, op.value, op.delete); err != nil {
			return err
		}
	}
	return nil
}

// World is the world state: a backend plus the lock that serializes commits.
// A World is passed explicitly to everything that needs it; there is no
// package-level state.
type World struct {
	backend Backend
	logger  zerolog.Logger

	// mu serializes commits against snapshot and root reads.
	mu sync.RWMutex

	// commits counts applied transactions.
	commits atomic.Uint64

	closed atomic.Bool
}

// NewWorld wraps a backend.
func NewWorld(backend Backend, logger zerolog.Logger) *World {
	return &World{
		backend: backend,
		logger:  logger.With().Str("component", "state").Logger(),
	}
}

// Begin starts a transaction against the current committed state.
func (w *World) Begin() *Txn {
	return newTxn(w)
}

// Get reads a committed value outside any transaction.
func (w *World) Get(key []byte) ([]byte, bool, error) {
	if w.closed.Load() {
		return nil, false, ErrClosed
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.get(key)
}

func (w *World) get(key []byte) ([]byte, bool, error) {
	v, err := w.backend.Get(key)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("backend get: %w", err)
	}
	return v, true, nil
}

// apply writes a batch under the commit lock.
func (w *World) apply(b *Batch) error {
	if w.closed.Load() {
		return ErrClosed
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.backend.Apply(b); err != nil {
		return fmt.Errorf("backend apply: %w", err)
	}
	w.commits.Add(1)
	w.logger.Debug().Int("writes", b.Len()).Uint64("commits", w.commits.Load()).Msg("batch applied")
	return nil
}

// Commits returns the number of batches applied since the world was opened.
func (w *World) Commits() uint64 {
	return w.commits.Load()
}

// Iterate walks committed entries with the given prefix in key order.
func (w *World) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	if w.closed.Load() {
		return ErrClosed
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.backend.Iterate(prefix, fn)
}

var errStopIteration = errors.New("stop iteration")

// Empty reports whether the world holds no committed entries.
func (w *World) Empty() (bool, error) {
	empty := true
	err := w.Iterate(nil, func(_, _ []byte) error {
		empty = false
		return errStopIteration
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return false, err
	}
	return empty, nil
}

// Close closes the backend.
func (w *World) Close() error {
	if w.closed.Swap(true) {
		return ErrClosed
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.backend.Close()
}
