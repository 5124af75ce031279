// Package types defines the value types shared by every layer of the runtime.
//
// These are:
//   - Bytes, the immutable byte string programs manipulate
//   - Address, the 32-byte identity of accounts and programs
//   - Hash, a 32-byte digest used for transaction ids and state roots
package types

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// Size constants for core types.
const (
	AddressSize = 32
	HashSize    = 32
)

var (
	// ErrInvalidAddress is returned when an address has invalid length.
	ErrInvalidAddress = errors.New("invalid address: must be 32 bytes")

	// ErrInvalidHash is returned when a hash has invalid length.
	ErrInvalidHash = errors.New("invalid hash: must be 32 bytes")
)

// Address identifies an account or a deployed program.
type Address [AddressSize]byte

// AddressFromBytes converts a 32-byte string into an Address.
func AddressFromBytes(b Bytes) (Address, error) {
	var a Address
	if b.Len() != AddressSize {
		return a, ErrInvalidAddress
	}
	copy(a[:], b.s)
	return a, nil
}

// AddressFromSlice creates an Address from a byte slice.
func AddressFromSlice(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressSize {
		return a, ErrInvalidAddress
	}
	copy(a[:], b)
	return a, nil
}

// AddressFromHex parses a hex-encoded address. Dashes are ignored.
func AddressFromHex(s string) (Address, error) {
	var a Address
	data, err := hex.DecodeString(strings.ReplaceAll(s, "-", ""))
	if err != nil {
		return a, fmt.Errorf("hex decode: %w", err)
	}
	return AddressFromSlice(data)
}

// AddressFromBase58 parses a base58-encoded address.
func AddressFromBase58(s string) (Address, error) {
	var a Address
	data, err := base58.Decode(s)
	if err != nil {
		return a, fmt.Errorf("base58 decode: %w", err)
	}
	return AddressFromSlice(data)
}

// ParseAddress accepts either the hex or the base58 form.
func ParseAddress(s string) (Address, error) {
	if len(s) == 2*AddressSize {
		return AddressFromHex(s)
	}
	return AddressFromBase58(s)
}

// MustAddressFromHex is AddressFromHex that panics on malformed input.
func MustAddressFromHex(s string) Address {
	a, err := AddressFromHex(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Bytes returns the address as a byte string.
func (a Address) Bytes() Bytes {
	return Bytes{s: string(a[:])}
}

// Hex returns the uppercase hex encoding.
func (a Address) Hex() string {
	return strings.ToUpper(hex.EncodeToString(a[:]))
}

// Base58 returns the base58 encoding.
func (a Address) Base58() string {
	return base58.Encode(a[:])
}

// String returns the uppercase hex encoding.
func (a Address) String() string {
	return a.Hex()
}

// IsVoid reports whether a is the all-zero address.
func (a Address) IsVoid() bool {
	return a == VoidAddress
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	v, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Hash is a 32-byte digest.
type Hash [HashSize]byte

// HashFromHex parses a hex-encoded hash.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	data, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("hex decode: %w", err)
	}
	if len(data) != HashSize {
		return h, ErrInvalidHash
	}
	copy(h[:], data)
	return h, nil
}

// Hex returns the uppercase hex encoding.
func (h Hash) Hex() string {
	return strings.ToUpper(hex.EncodeToString(h[:]))
}

// String returns the uppercase hex encoding.
func (h Hash) String() string {
	return h.Hex()
}

// IsZero returns true if the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Bytes returns the hash as a byte string.
func (h Hash) Bytes() Bytes {
	return Bytes{s: string(h[:])}
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	v, err := HashFromHex(string(text))
	if err != nil {
		return err
	}
	*h = v
	return nil
}
