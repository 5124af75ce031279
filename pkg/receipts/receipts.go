// Package receipts provides persistent storage for transaction receipts.
//
// Receipts are kept in BoltDB:
//   - receipts: TxID -> zstd(gob(Record))
//   - by_height: height(8, big-endian) | TxID -> empty, for listing a block
//   - metadata: counters, the latest height and sequence number seen, and
//     the last block the node produced
//
// Old heights can be pruned in the background.
package receipts

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fortiblox/X1-Nimbus/internal/types"
	"github.com/fortiblox/X1-Nimbus/pkg/runtime"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"
)

var (
	// ErrNotFound is returned when a receipt doesn't exist.
	ErrNotFound = errors.New("receipt not found")

	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("receipt store closed")
)

var (
	bucketReceipts = []byte("receipts")
	bucketByHeight = []byte("by_height")
	bucketMetadata = []byte("metadata")

	keyCount        = []byte("count")
	keyLatestHeight = []byte("latest_height")
	keyLatestSeq    = []byte("latest_seq")
	keyLatestBlock  = []byte("latest_block")
)

// Config holds receipt store configuration.
type Config struct {
	// Path is the database file path.
	Path string

	// NoSync disables fsync after each write.
	NoSync bool

	// PruneEnabled enables background pruning of old heights.
	PruneEnabled bool

	// PruneInterval is how often pruning runs.
	PruneInterval time.Duration

	// RetainHeights is how many recent heights survive pruning.
	RetainHeights uint64

	// Logger receives background errors.
	Logger zerolog.Logger
}

// DefaultConfig returns the default configuration for a database at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:          path,
		PruneEnabled:  false,
		PruneInterval: time.Hour,
		RetainHeights: 100_000,
		Logger:        zerolog.Nop(),
	}
}

// BoltStore stores receipts in BoltDB.
type BoltStore struct {
	db     *bolt.DB
	config Config
	logger zerolog.Logger

	enc *zstd.Encoder
	dec *zstd.Decoder

	mu           sync.RWMutex
	count        uint64
	latestHeight uint64
	latestSeq    uint64
	closed       bool

	pruneStop chan struct{}
	pruneWG   sync.WaitGroup
}

var _ runtime.ReceiptSink = (*BoltStore)(nil)

// Open creates or opens a receipt store.
func Open(config Config) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	db, err := bolt.Open(config.Path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
		NoSync:  config.NoSync,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	s := &BoltStore{
		db:        db,
		config:    config,
		logger:    config.Logger.With().Str("component", "receipts").Logger(),
		enc:       enc,
		dec:       dec,
		pruneStop: make(chan struct{}),
	}

	if err := s.initBuckets(); err != nil {
		s.closeCodecs()
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}
	if err := s.loadMetadata(); err != nil {
		s.closeCodecs()
		db.Close()
		return nil, fmt.Errorf("load metadata: %w", err)
	}

	if config.PruneEnabled && config.PruneInterval > 0 {
		s.startPruning()
	}
	return s, nil
}

func (s *BoltStore) initBuckets() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketReceipts, bucketByHeight, bucketMetadata} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

func (s *BoltStore) loadMetadata() error {
	return s.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMetadata)
		if v := meta.Get(keyCount); v != nil {
			s.count = binary.BigEndian.Uint64(v)
		}
		if v := meta.Get(keyLatestHeight); v != nil {
			s.latestHeight = binary.BigEndian.Uint64(v)
		}
		if v := meta.Get(keyLatestSeq); v != nil {
			s.latestSeq = binary.BigEndian.Uint64(v)
		}
		return nil
	})
}

func (s *BoltStore) startPruning() {
	s.pruneWG.Add(1)
	go func() {
		defer s.pruneWG.Done()
		ticker := time.NewTicker(s.config.PruneInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				n, err := s.Prune(s.config.RetainHeights)
				if err != nil {
					s.logger.Error().Err(err).Msg("prune failed")
					continue
				}
				if n > 0 {
					s.logger.Info().Uint64("receipts", n).Msg("pruned receipts")
				}
			case <-s.pruneStop:
				return
			}
		}
	}()
}

func (s *BoltStore) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// PutReceipt stores a runtime receipt. Storing the same TxID twice replaces
// the record.
func (s *BoltStore) PutReceipt(r *runtime.Receipt) error {
	return s.Put(FromReceipt(r))
}

// Put stores a record.
func (s *BoltStore) Put(rec *Record) error {
	if s.isClosed() {
		return ErrClosed
	}
	id, err := types.HashFromHex(rec.TxID)
	if err != nil {
		return fmt.Errorf("receipt id: %w", err)
	}

	data, err := s.encode(rec)
	if err != nil {
		return err
	}

	var added bool
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReceipts)
		added = b.Get(id[:]) == nil
		if err := b.Put(id[:], data); err != nil {
			return err
		}
		if err := tx.Bucket(bucketByHeight).Put(heightKey(rec.Height, id), nil); err != nil {
			return err
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		count, latest, seq := s.count, s.latestHeight, s.latestSeq
		if added {
			count++
		}
		latest = max(latest, rec.Height)
		seq = max(seq, rec.Seq)

		meta := tx.Bucket(bucketMetadata)
		if err := meta.Put(keyCount, encodeUint64(count)); err != nil {
			return err
		}
		if err := meta.Put(keyLatestHeight, encodeUint64(latest)); err != nil {
			return err
		}
		if err := meta.Put(keyLatestSeq, encodeUint64(seq)); err != nil {
			return err
		}
		s.count, s.latestHeight, s.latestSeq = count, latest, seq
		return nil
	})
	if err != nil {
		return fmt.Errorf("store receipt %s: %w", rec.TxID, err)
	}
	return nil
}

// Get returns the record of a transaction.
func (s *BoltStore) Get(id types.Hash) (*Record, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketReceipts).Get(id[:])
		if v == nil {
			return ErrNotFound
		}
		data = bytes.Clone(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.decode(data)
}

// ListByHeight returns the records stored at a height, ordered by TxID.
func (s *BoltStore) ListByHeight(height uint64) ([]*Record, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	var blobs [][]byte
	err := s.db.View(func(tx *bolt.Tx) error {
		receipts := tx.Bucket(bucketReceipts)
		prefix := encodeUint64(height)
		c := tx.Bucket(bucketByHeight).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			if v := receipts.Get(k[8:]); v != nil {
				blobs = append(blobs, bytes.Clone(v))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]*Record, 0, len(blobs))
	for _, b := range blobs {
		rec, err := s.decode(b)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Prune deletes receipts more than keep heights below the latest height and
// returns how many were removed.
func (s *BoltStore) Prune(keep uint64) (uint64, error) {
	if s.isClosed() {
		return 0, ErrClosed
	}
	s.mu.RLock()
	latest := s.latestHeight
	s.mu.RUnlock()
	if latest < keep {
		return 0, nil
	}
	cutoff := latest - keep

	var removed uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		receipts := tx.Bucket(bucketReceipts)
		byHeight := tx.Bucket(bucketByHeight)

		var stale [][]byte
		c := byHeight.Cursor()
		for k, _ := c.First(); k != nil && binary.BigEndian.Uint64(k[:8]) < cutoff; k, _ = c.Next() {
			stale = append(stale, bytes.Clone(k))
		}
		for _, k := range stale {
			if err := byHeight.Delete(k); err != nil {
				return err
			}
			if receipts.Get(k[8:]) != nil {
				if err := receipts.Delete(k[8:]); err != nil {
					return err
				}
				removed++
			}
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		count := s.count - min(removed, s.count)
		if err := tx.Bucket(bucketMetadata).Put(keyCount, encodeUint64(count)); err != nil {
			return err
		}
		s.count = count
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("prune receipts: %w", err)
	}
	return removed, nil
}

// Count returns the number of stored receipts.
func (s *BoltStore) Count() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// LatestHeight returns the highest height a receipt was stored at.
func (s *BoltStore) LatestHeight() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestHeight
}

// LatestSeq returns the highest runtime sequence number a receipt was
// stored with.
func (s *BoltStore) LatestSeq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestSeq
}

// PutBlock records b as the last block produced.
func (s *BoltStore) PutBlock(b runtime.BlockInfo) error {
	if s.isClosed() {
		return ErrClosed
	}
	hash := b.Hash.Raw()
	v := make([]byte, 16+len(hash))
	binary.BigEndian.PutUint64(v, b.Height)
	binary.BigEndian.PutUint64(v[8:], uint64(b.Time))
	copy(v[16:], hash)

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMetadata).Put(keyLatestBlock, v)
	})
	if err != nil {
		return fmt.Errorf("store block %d: %w", b.Height, err)
	}
	return nil
}

// LastBlock returns the block recorded by the last PutBlock. ok is false if
// none was recorded.
func (s *BoltStore) LastBlock() (b runtime.BlockInfo, ok bool, err error) {
	if s.isClosed() {
		return b, false, ErrClosed
	}
	err = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketMetadata).Get(keyLatestBlock)
		if v == nil {
			return nil
		}
		if len(v) < 16 {
			return fmt.Errorf("corrupt block record: %d bytes", len(v))
		}
		b = runtime.BlockInfo{
			Height: binary.BigEndian.Uint64(v),
			Time:   int64(binary.BigEndian.Uint64(v[8:])),
			Hash:   types.NewBytes(v[16:]...),
		}
		ok = true
		return nil
	})
	return b, ok, err
}

// Close stops pruning and closes the database.
func (s *BoltStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	s.mu.Unlock()

	close(s.pruneStop)
	s.pruneWG.Wait()
	s.closeCodecs()
	return s.db.Close()
}

func (s *BoltStore) closeCodecs() {
	s.enc.Close()
	s.dec.Close()
}

func (s *BoltStore) encode(rec *Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, fmt.Errorf("encode receipt: %w", err)
	}
	return s.enc.EncodeAll(buf.Bytes(), nil), nil
}

func (s *BoltStore) decode(data []byte) (*Record, error) {
	raw, err := s.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress receipt: %w", err)
	}
	var rec Record
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}
	return &rec, nil
}

func heightKey(height uint64, id types.Hash) []byte {
	k := make([]byte, 8+len(id))
	binary.BigEndian.PutUint64(k, height)
	copy(k[8:], id[:])
	return k
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
