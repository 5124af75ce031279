// Package storage gives each program a private persistent key-value space.
//
// A Store is bound to one program address for the lifetime of one call
// frame; the runtime never hands a program a Store bound to another address,
// which is what isolates programs from each other. Keys and values are
// abi.Values serialized with abi.Marshal, so content-equal keys always hit
// the same slot.
//
// Mapping[K, V] layers a named, typed container over a Store. A program may
// declare several mappings; their slots never collide.
package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/fortiblox/X1-Nimbus/internal/types"
	"github.com/fortiblox/X1-Nimbus/pkg/abi"
	"github.com/fortiblox/X1-Nimbus/pkg/failure"
	"github.com/fortiblox/X1-Nimbus/pkg/state"
	"github.com/fortiblox/X1-Nimbus/pkg/watts"
)

// KV is the transactional key-value view a Store reads and writes through.
// *state.Txn implements it.
type KV interface {
	Get(key []byte) ([]byte, bool, error)
	Set(key, value []byte) error
	Fail(err error) error
}

// Meter charges watts. *watts.Meter implements it.
type Meter interface {
	Consume(cost uint64) error
}

var _ KV = (*state.Txn)(nil)

// Store is a program's storage, bound to one address.
type Store struct {
	kv      KV
	meter   Meter
	costs   watts.Schedule
	program types.Address
}

// New binds a store to program.
func New(kv KV, meter Meter, costs watts.Schedule, program types.Address) *Store {
	return &Store{kv: kv, meter: meter, costs: costs, program: program}
}

// Program returns the address the store is bound to.
func (s *Store) Program() types.Address {
	return s.program
}

// Get returns the value stored under key, or a KeyNotFound failure.
func (s *Store) Get(key abi.Value) (abi.Value, error) {
	return s.get("", key)
}

// GetOrDefault returns the value under key, or def when absent. Absence is
// never a failure; the error only reports an exhausted meter or an already
// failed transaction.
func (s *Store) GetOrDefault(key, def abi.Value) (abi.Value, error) {
	return s.getOrDefault("", key, def)
}

// ContainsKey reports whether key has a value.
func (s *Store) ContainsKey(key abi.Value) (bool, error) {
	_, ok, err := s.read("", abi.Marshal(key))
	return ok, err
}

// Put stores value under key, replacing any previous value.
func (s *Store) Put(key, value abi.Value) error {
	return s.write("", abi.Marshal(key), abi.Marshal(value))
}

func (s *Store) get(name string, key abi.Value) (abi.Value, error) {
	data, ok, err := s.read(name, abi.Marshal(key))
	if err != nil {
		return abi.Value{}, err
	}
	if !ok {
		if name == "" {
			return abi.Value{}, s.kv.Fail(failure.KeyNotFound("key %s not found", key))
		}
		return abi.Value{}, s.kv.Fail(failure.KeyNotFound("key %s not found in %s", key, name))
	}
	return s.decode(data)
}

func (s *Store) getOrDefault(name string, key, def abi.Value) (abi.Value, error) {
	data, ok, err := s.read(name, abi.Marshal(key))
	if err != nil {
		return abi.Value{}, err
	}
	if !ok {
		return def, nil
	}
	return s.decode(data)
}

func (s *Store) decode(data []byte) (abi.Value, error) {
	v, err := abi.Unmarshal(data)
	if err != nil {
		return abi.Value{}, s.kv.Fail(failure.Internal(fmt.Errorf("%w: %v", state.ErrCorrupted, err)))
	}
	return v, nil
}

func (s *Store) read(name string, key []byte) ([]byte, bool, error) {
	slot := s.slot(name, key)
	if err := s.meter.Consume(s.costs.StorageReadCost(len(slot))); err != nil {
		return nil, false, s.kv.Fail(err)
	}
	return s.kv.Get(slot)
}

func (s *Store) write(name string, key, value []byte) error {
	slot := s.slot(name, key)
	if err := s.meter.Consume(s.costs.StorageWriteCost(len(slot), len(value))); err != nil {
		return s.kv.Fail(err)
	}
	return s.kv.Set(slot, value)
}

// slot returns the state key: 0x01 | program | uvarint(len(name)) | name | key.
func (s *Store) slot(name string, key []byte) []byte {
	out := make([]byte, 0, 1+types.AddressSize+binary.MaxVarintLen64+len(name)+len(key))
	out = append(out, state.PrefixStorage...)
	out = append(out, s.program[:]...)
	out = binary.AppendUvarint(out, uint64(len(name)))
	out = append(out, name...)
	return append(out, key...)
}

// Mapping is a named, typed container in a program's storage.
type Mapping[K, V any] struct {
	store  *Store
	name   string
	keys   abi.Codec[K]
	values abi.Codec[V]
}

// NewMapping declares a mapping. The name must be non-empty and unique
// within the program.
func NewMapping[K, V any](s *Store, name string, keys abi.Codec[K], values abi.Codec[V]) *Mapping[K, V] {
	if name == "" {
		panic("storage: mapping name must not be empty")
	}
	return &Mapping[K, V]{store: s, name: name, keys: keys, values: values}
}

// Name returns the mapping name.
func (m *Mapping[K, V]) Name() string {
	return m.name
}

// Get returns the value under key, or a KeyNotFound failure.
func (m *Mapping[K, V]) Get(key K) (V, error) {
	v, err := m.store.get(m.name, m.keys.ToValue(key))
	if err != nil {
		var zero V
		return zero, err
	}
	return m.decode(v)
}

// GetOrDefault returns the value under key, or def when absent.
func (m *Mapping[K, V]) GetOrDefault(key K, def V) (V, error) {
	v, err := m.store.getOrDefault(m.name, m.keys.ToValue(key), m.values.ToValue(def))
	if err != nil {
		return def, err
	}
	return m.decode(v)
}

// ContainsKey reports whether key has a value.
func (m *Mapping[K, V]) ContainsKey(key K) (bool, error) {
	_, ok, err := m.store.read(m.name, abi.EncodeKey(m.keys, key))
	return ok, err
}

// Put stores value under key.
func (m *Mapping[K, V]) Put(key K, value V) error {
	return m.store.write(m.name, abi.EncodeKey(m.keys, key), abi.EncodeKey(m.values, value))
}

func (m *Mapping[K, V]) decode(v abi.Value) (V, error) {
	out, err := m.values.FromValue(v)
	if err != nil {
		return out, m.store.kv.Fail(failure.Validation("mapping %s: stored value %s does not match its type: %v", m.name, v, err))
	}
	return out, nil
}
