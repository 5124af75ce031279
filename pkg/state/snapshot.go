package state

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fortiblox/X1-Nimbus/internal/types"
	"github.com/klauspost/compress/zstd"
)

// Snapshot file format version.
const snapshotVersion uint32 = 1

// Snapshot file magic bytes for format validation.
var snapshotMagic = []byte{'N', 'M', 'S', 'N'}

// maxSnapshotField bounds key and value lengths read from a snapshot.
const maxSnapshotField = 64 << 20

var (
	// ErrBadSnapshot is returned for a malformed or truncated snapshot.
	ErrBadSnapshot = errors.New("invalid snapshot")

	// ErrSnapshotRootMismatch is returned when the entries don't hash to the
	// root recorded in the header.
	ErrSnapshotRootMismatch = errors.New("snapshot root mismatch")

	// ErrNotEmpty is returned when importing into a non-empty state.
	ErrNotEmpty = errors.New("state is not empty")
)

// SnapshotHeader contains metadata about a snapshot.
type SnapshotHeader struct {
	// Version is the snapshot format version.
	Version uint32

	// Entries is the number of key-value entries.
	Entries uint64

	// Root is the state root of the entries.
	Root types.Hash
}

// Snapshot format:
//   - Magic (4 bytes): "NMSN"
//   - Version (4 bytes, little-endian)
//   - Entries (8 bytes, little-endian)
//   - Root (32 bytes)
//   - Entries (zstd compressed), in key order:
//   - uvarint key length, key
//   - uvarint value length, value

// WriteSnapshot streams every committed entry of w into out. Commits are
// blocked for the duration so the snapshot is consistent.
func WriteSnapshot(out io.Writer, w *World) (SnapshotHeader, error) {
	if w.closed.Load() {
		return SnapshotHeader{}, ErrClosed
	}
	w.mu.RLock()
	defer w.mu.RUnlock()

	hdr := SnapshotHeader{Version: snapshotVersion}
	var leaves []types.Hash
	err := w.backend.Iterate(nil, func(key, value []byte) error {
		leaves = append(leaves, EntryHash(key, value))
		return nil
	})
	if err != nil {
		return hdr, fmt.Errorf("hash entries: %w", err)
	}
	hdr.Entries = uint64(len(leaves))
	hdr.Root = MerkleRoot(leaves)

	if err := writeHeader(out, hdr); err != nil {
		return hdr, err
	}

	enc, err := zstd.NewWriter(out)
	if err != nil {
		return hdr, fmt.Errorf("create zstd writer: %w", err)
	}
	bw := bufio.NewWriter(enc)
	var lenBuf [binary.MaxVarintLen64]byte

	err = w.backend.Iterate(nil, func(key, value []byte) error {
		n := binary.PutUvarint(lenBuf[:], uint64(len(key)))
		if _, err := bw.Write(lenBuf[:n]); err != nil {
			return err
		}
		if _, err := bw.Write(key); err != nil {
			return err
		}
		n = binary.PutUvarint(lenBuf[:], uint64(len(value)))
		if _, err := bw.Write(lenBuf[:n]); err != nil {
			return err
		}
		_, err := bw.Write(value)
		return err
	})
	if err != nil {
		enc.Close()
		return hdr, fmt.Errorf("write entries: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return hdr, fmt.Errorf("flush entries: %w", err)
	}
	if err := enc.Close(); err != nil {
		return hdr, fmt.Errorf("close zstd writer: %w", err)
	}
	return hdr, nil
}

// ReadSnapshot loads a snapshot into an empty world. The entries are
// verified against the header's root before anything is written.
func ReadSnapshot(in io.Reader, w *World) (SnapshotHeader, error) {
	hdr, err := readHeader(in)
	if err != nil {
		return hdr, err
	}

	empty, err := w.Empty()
	if err != nil {
		return hdr, err
	}
	if !empty {
		return hdr, ErrNotEmpty
	}

	dec, err := zstd.NewReader(in)
	if err != nil {
		return hdr, fmt.Errorf("create zstd reader: %w", err)
	}
	defer dec.Close()
	br := bufio.NewReader(dec)

	var (
		batch  Batch
		leaves []types.Hash
		prev   []byte
	)
	for i := uint64(0); i < hdr.Entries; i++ {
		key, err := readField(br)
		if err != nil {
			return hdr, fmt.Errorf("%w: entry %d key: %v", ErrBadSnapshot, i, err)
		}
		value, err := readField(br)
		if err != nil {
			return hdr, fmt.Errorf("%w: entry %d value: %v", ErrBadSnapshot, i, err)
		}
		if prev != nil && bytes.Compare(prev, key) >= 0 {
			return hdr, fmt.Errorf("%w: entries out of order at %d", ErrBadSnapshot, i)
		}
		prev = key
		leaves = append(leaves, EntryHash(key, value))
		batch.Set(key, value)
	}
	if _, err := br.ReadByte(); !errors.Is(err, io.EOF) {
		return hdr, fmt.Errorf("%w: trailing data", ErrBadSnapshot)
	}

	if root := MerkleRoot(leaves); root != hdr.Root {
		return hdr, fmt.Errorf("%w: header %s, computed %s", ErrSnapshotRootMismatch, hdr.Root, root)
	}
	if batch.Len() == 0 {
		return hdr, nil
	}
	return hdr, w.apply(&batch)
}

// ExportSnapshot writes a snapshot file.
func ExportSnapshot(path string, w *World) (SnapshotHeader, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return SnapshotHeader{}, fmt.Errorf("create snapshot directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return SnapshotHeader{}, fmt.Errorf("create snapshot file: %w", err)
	}
	hdr, err := WriteSnapshot(f, w)
	if err != nil {
		f.Close()
		return hdr, err
	}
	return hdr, f.Close()
}

// ImportSnapshot loads a snapshot file into an empty world.
func ImportSnapshot(path string, w *World) (SnapshotHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return SnapshotHeader{}, fmt.Errorf("open snapshot file: %w", err)
	}
	defer f.Close()
	return ReadSnapshot(bufio.NewReader(f), w)
}

func writeHeader(out io.Writer, hdr SnapshotHeader) error {
	buf := make([]byte, 4+4+8+types.HashSize)
	copy(buf, snapshotMagic)
	binary.LittleEndian.PutUint32(buf[4:], hdr.Version)
	binary.LittleEndian.PutUint64(buf[8:], hdr.Entries)
	copy(buf[16:], hdr.Root[:])
	if _, err := out.Write(buf); err != nil {
		return fmt.Errorf("write snapshot header: %w", err)
	}
	return nil
}

func readHeader(in io.Reader) (SnapshotHeader, error) {
	var hdr SnapshotHeader
	buf := make([]byte, 4+4+8+types.HashSize)
	if _, err := io.ReadFull(in, buf); err != nil {
		return hdr, fmt.Errorf("%w: header: %v", ErrBadSnapshot, err)
	}
	if !bytes.Equal(buf[:4], snapshotMagic) {
		return hdr, fmt.Errorf("%w: bad magic", ErrBadSnapshot)
	}
	hdr.Version = binary.LittleEndian.Uint32(buf[4:])
	if hdr.Version != snapshotVersion {
		return hdr, fmt.Errorf("%w: unsupported version %d", ErrBadSnapshot, hdr.Version)
	}
	hdr.Entries = binary.LittleEndian.Uint64(buf[8:])
	copy(hdr.Root[:], buf[16:])
	return hdr, nil
}

func readField(r *bufio.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	if n > maxSnapshotField {
		return nil, fmt.Errorf("field length %d too large", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
