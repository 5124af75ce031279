package state

import (
	"bytes"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/fortiblox/X1-Nimbus/pkg/failure"
	"github.com/google/btree"
)

// btreeDegree is the branching factor of the write buffer.
const btreeDegree = 32

// entry is a buffered write.
type entry struct {
	key   string
	value []byte
}

func entryLess(a, b entry) bool {
	return a.key < b.key
}

// Txn is a transaction over the world state.
//
// Reads see the transaction's own buffered writes first, then committed
// state. Writes stay in an ordered in-memory buffer until Commit applies
// them as one atomic batch. Every key read or written is recorded so callers
// can detect conflicts between concurrently executed transactions.
//
// A Txn also latches the first failure raised while it runs. Once failed,
// every operation returns that failure and Commit refuses to apply.
type Txn struct {
	world  *World
	writes *btree.BTreeG[entry]
	reads  map[string]struct{}
	failed error
	done   bool
}

func newTxn(w *World) *Txn {
	return &Txn{
		world:  w,
		writes: btree.NewG[entry](btreeDegree, entryLess),
		reads:  make(map[string]struct{}),
	}
}

// Get returns the value of key. A missing key is not an error.
func (t *Txn) Get(key []byte) ([]byte, bool, error) {
	if err := t.check(); err != nil {
		return nil, false, err
	}
	k := string(key)
	t.reads[k] = struct{}{}

	if e, ok := t.writes.Get(entry{key: k}); ok {
		return bytes.Clone(e.value), true, nil
	}
	v, ok, err := t.world.Get(key)
	if err != nil {
		return nil, false, t.Fail(failure.Internal(err))
	}
	return v, ok, nil
}

// Set buffers key=value.
func (t *Txn) Set(key, value []byte) error {
	if err := t.check(); err != nil {
		return err
	}
	t.writes.ReplaceOrInsert(entry{key: string(key), value: bytes.Clone(value)})
	return nil
}

// Fail latches err as the transaction's failure and returns it. Only the
// first failure is kept; later calls return the latched one.
func (t *Txn) Fail(err error) error {
	if err == nil {
		return t.failed
	}
	if t.failed == nil {
		t.failed = err
	}
	return t.failed
}

// Err returns the latched failure, if any.
func (t *Txn) Err() error {
	return t.failed
}

func (t *Txn) check() error {
	if t.done {
		return ErrTxnFinished
	}
	return t.failed
}

// Dirty returns the number of buffered writes.
func (t *Txn) Dirty() int {
	return t.writes.Len()
}

// RWSet returns the keys read and written so far.
func (t *Txn) RWSet() RWSet {
	rw := RWSet{
		Reads:  make([]string, 0, len(t.reads)),
		Writes: make([]string, 0, t.writes.Len()),
	}
	for k := range t.reads {
		rw.Reads = append(rw.Reads, k)
	}
	sort.Strings(rw.Reads)
	t.writes.Ascend(func(e entry) bool {
		rw.Writes = append(rw.Writes, e.key)
		return true
	})
	return rw
}

// Commit applies the buffered writes atomically. A failed transaction is
// discarded instead and its failure returned.
func (t *Txn) Commit() error {
	if t.done {
		return ErrTxnFinished
	}
	if t.failed != nil {
		t.Discard()
		return t.failed
	}
	t.done = true

	if t.writes.Len() == 0 {
		return nil
	}
	var b Batch
	t.writes.Ascend(func(e entry) bool {
		b.Set([]byte(e.key), e.value)
		return true
	})
	t.writes.Clear(false)
	return t.world.apply(&b)
}

// Discard drops every buffered write.
func (t *Txn) Discard() {
	t.done = true
	t.writes.Clear(false)
}

// RWSet is the set of state keys a transaction touched, each sorted.
type RWSet struct {
	Reads  []string
	Writes []string
}

// Conflicts reports whether two transactions cannot be reordered: one
// writes a key the other reads or writes.
func (s RWSet) Conflicts(other RWSet) bool {
	return intersects(s.Writes, other.Writes) ||
		intersects(s.Writes, other.Reads) ||
		intersects(s.Reads, other.Writes)
}

func intersects(a, b []string) bool {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch c := strings.Compare(a[i], b[j]); {
		case c == 0:
			return true
		case c < 0:
			i++
		default:
			j++
		}
	}
	return false
}

// HexKeys returns the keys of a set as uppercase hex strings.
func HexKeys(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = strings.ToUpper(hex.EncodeToString([]byte(k)))
	}
	return out
}
