// Package crypto provides the deterministic primitives programs may call.
//
// Hashing:
//   - RIPEMD160 (default host hash, 20-byte digest)
//   - SHA256
//   - Keccak256 (legacy Keccak padding, as used by Ethereum)
//   - BLAKE3 (32-byte digest)
//
// Signatures are Ed25519. Verification never panics; malformed keys or
// signatures simply fail to verify.
package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/fortiblox/X1-Nimbus/internal/types"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // part of the platform's ABI
	"golang.org/x/crypto/sha3"
)

// Algorithm names a hash function.
type Algorithm uint8

const (
	RIPEMD160 Algorithm = iota
	SHA256
	Keccak256
	BLAKE3
)

// DefaultAlgorithm is the hash exposed to programs unless configured
// otherwise.
const DefaultAlgorithm = RIPEMD160

// Ed25519 sizes.
const (
	PublicKeySize = ed25519.PublicKeySize
	SignatureSize = ed25519.SignatureSize
)

var algorithmNames = map[Algorithm]string{
	RIPEMD160: "ripemd160",
	SHA256:    "sha256",
	Keccak256: "keccak256",
	BLAKE3:    "blake3",
}

// String returns the configuration name of the algorithm.
func (a Algorithm) String() string {
	if name, ok := algorithmNames[a]; ok {
		return name
	}
	return fmt.Sprintf("algorithm(%d)", uint8(a))
}

// ParseAlgorithm resolves a configuration name (case-insensitive).
func ParseAlgorithm(name string) (Algorithm, error) {
	for a, n := range algorithmNames {
		if strings.EqualFold(n, name) {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown hash algorithm %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (a Algorithm) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Algorithm) UnmarshalText(text []byte) error {
	v, err := ParseAlgorithm(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Size returns the digest length in bytes.
func (a Algorithm) Size() int {
	if a == RIPEMD160 {
		return ripemd160.Size
	}
	return 32
}

// Sum hashes data with the given algorithm.
func Sum(a Algorithm, data []byte) []byte {
	switch a {
	case SHA256:
		h := sha256.Sum256(data)
		return h[:]
	case Keccak256:
		h := sha3.NewLegacyKeccak256()
		h.Write(data)
		return h.Sum(nil)
	case BLAKE3:
		h := blake3.Sum256(data)
		return h[:]
	default:
		h := ripemd160.New()
		h.Write(data)
		return h.Sum(nil)
	}
}

// Hash hashes a byte string with the given algorithm.
func Hash(a Algorithm, b types.Bytes) types.Bytes {
	return types.NewBytes(Sum(a, b.Raw())...)
}

// Blake3Hash returns the 32-byte BLAKE3 digest of the concatenated parts.
func Blake3Hash(parts ...[]byte) types.Hash {
	h := blake3.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// VerifyEd25519 reports whether sig is a valid Ed25519 signature of msg by
// pub. Wrong key or signature lengths verify false.
func VerifyEd25519(pub, msg, sig types.Bytes) bool {
	if pub.Len() != PublicKeySize || sig.Len() != SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub.Raw()), msg.Raw(), sig.Raw())
}
