package state

import (
	"encoding/binary"

	"github.com/fortiblox/X1-Nimbus/internal/types"
	"github.com/zeebo/blake3"
)

// Root computes the state root: the binary Merkle root over every committed
// entry in key order.
//
// Leaf: BLAKE3(0x00 || uvarint(len(key)) || key || value)
// Node: BLAKE3(0x01 || left || right), a missing right child is the zero hash.
//
// An empty state has the zero root.
func (w *World) Root() (types.Hash, error) {
	var leaves []types.Hash
	err := w.Iterate(nil, func(key, value []byte) error {
		leaves = append(leaves, EntryHash(key, value))
		return nil
	})
	if err != nil {
		return types.Hash{}, err
	}
	return MerkleRoot(leaves), nil
}

// EntryHash returns the leaf hash of one key-value entry.
func EntryHash(key, value []byte) types.Hash {
	h := blake3.New()
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(key)))
	h.Write([]byte{0x00})
	h.Write(lenBuf[:n])
	h.Write(key)
	h.Write(value)

	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// MerkleRoot folds leaf hashes into a binary Merkle root.
func MerkleRoot(leaves []types.Hash) types.Hash {
	if len(leaves) == 0 {
		return types.Hash{}
	}

	level := make([]types.Hash, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		next := make([]types.Hash, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			var right types.Hash
			if i+1 < len(level) {
				right = level[i+1]
			}
			next[i/2] = nodeHash(level[i], right)
		}
		level = next
	}
	return level[0]
}

func nodeHash(left, right types.Hash) types.Hash {
	buf := make([]byte, 1+2*types.HashSize)
	buf[0] = 0x01
	copy(buf[1:], left[:])
	copy(buf[1+types.HashSize:], right[:])
	return types.Hash(blake3.Sum256(buf))
}
