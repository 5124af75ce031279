package state

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBConfig contains configuration for LevelDBBackend.
type LevelDBConfig struct {
	// Path is the directory path for the database.
	Path string

	// InMemory keeps the database in memory (for testing).
	InMemory bool

	// CacheSizeMB is the block cache size.
	CacheSizeMB int

	// WriteBufferMB is the memtable size.
	WriteBufferMB int

	// SyncWrites fsyncs every batch.
	SyncWrites bool
}

// DefaultLevelDBConfig returns default configuration.
func DefaultLevelDBConfig(path string) LevelDBConfig {
	return LevelDBConfig{
		Path:          path,
		CacheSizeMB:   64,
		WriteBufferMB: 32,
		SyncWrites:    true,
	}
}

// LevelDBBackend is a goleveldb-backed Backend.
type LevelDBBackend struct {
	db     *leveldb.DB
	wopts  *opt.WriteOptions
	closed atomic.Bool
}

var _ Backend = (*LevelDBBackend)(nil)

// NewLevelDBBackend opens a leveldb database.
func NewLevelDBBackend(cfg LevelDBConfig) (*LevelDBBackend, error) {
	o := &opt.Options{
		BlockCacheCapacity: cfg.CacheSizeMB * opt.MiB,
		WriteBuffer:        cfg.WriteBufferMB * opt.MiB,
	}

	var (
		db  *leveldb.DB
		err error
	)
	if cfg.InMemory {
		db, err = leveldb.Open(storage.NewMemStorage(), o)
	} else {
		db, err = leveldb.OpenFile(cfg.Path, o)
	}
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &LevelDBBackend{
		db:    db,
		wopts: &opt.WriteOptions{Sync: cfg.SyncWrites},
	}, nil
}

// Get retrieves a value.
func (l *LevelDBBackend) Get(key []byte) ([]byte, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	v, err := l.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return v, err
}

// Has checks if a key exists.
func (l *LevelDBBackend) Has(key []byte) (bool, error) {
	if l.closed.Load() {
		return false, ErrClosed
	}
	return l.db.Has(key, nil)
}

// Apply writes a batch atomically.
func (l *LevelDBBackend) Apply(b *Batch) error {
	if l.closed.Load() {
		return ErrClosed
	}
	batch := new(leveldb.Batch)
	_ = b.Each(func(key, value []byte, del bool) error {
		if del {
			batch.Delete(key)
		} else {
			batch.Put(key, value)
		}
		return nil
	})
	return l.db.Write(batch, l.wopts)
}

// Iterate walks keys with the given prefix in ascending order.
func (l *LevelDBBackend) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	if l.closed.Load() {
		return ErrClosed
	}
	it := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()

	for it.Next() {
		key := append([]byte(nil), it.Key()...)
		value := append([]byte(nil), it.Value()...)
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return it.Error()
}

// Close closes the database.
func (l *LevelDBBackend) Close() error {
	if l.closed.Swap(true) {
		return ErrClosed
	}
	return l.db.Close()
}
