package types

import (
	"encoding/hex"
	"strings"

	"github.com/fortiblox/X1-Nimbus/pkg/failure"
)

// Bytes is an immutable byte string.
//
// It is backed by a Go string, so two values with the same content compare
// equal with == and hash identically as map keys. The zero value is the
// empty byte string. No method mutates its receiver.
type Bytes struct {
	s string
}

// Empty is the zero-length byte string.
var Empty = Bytes{}

// NewBytes copies b into a new byte string.
func NewBytes(b ...byte) Bytes {
	return Bytes{s: string(b)}
}

// BytesFromString returns the UTF-8 encoding of s as a byte string.
func BytesFromString(s string) Bytes {
	return Bytes{s: s}
}

// BytesFromHex decodes a hex string (either case) into a byte string.
// Odd length or a non-hex digit is a validation failure.
func BytesFromHex(h string) (Bytes, error) {
	if len(h)%2 != 0 {
		return Empty, failure.Validation("hex string has odd length %d", len(h))
	}
	b, err := hex.DecodeString(h)
	if err != nil {
		return Empty, failure.Validation("invalid hex: %v", err)
	}
	return Bytes{s: string(b)}, nil
}

// MustBytesFromHex is BytesFromHex that panics on malformed input.
// Only use it for constants.
func MustBytesFromHex(h string) Bytes {
	b, err := BytesFromHex(h)
	if err != nil {
		panic(err)
	}
	return b
}

// Len returns the number of bytes.
func (b Bytes) Len() int {
	return len(b.s)
}

// IsEmpty reports whether the byte string has zero length.
func (b Bytes) IsEmpty() bool {
	return len(b.s) == 0
}

// At returns the byte at index i.
func (b Bytes) At(i int) (byte, error) {
	if i < 0 || i >= len(b.s) {
		return 0, failure.Index("index %d out of range [0,%d)", i, len(b.s))
	}
	return b.s[i], nil
}

// Slice returns length bytes starting at start.
// It requires 0 <= start, 0 <= length and start+length <= Len().
func (b Bytes) Slice(start, length int) (Bytes, error) {
	if start < 0 || length < 0 || start > len(b.s) || length > len(b.s)-start {
		return Empty, failure.Index("slice [%d:+%d] out of range for length %d", start, length, len(b.s))
	}
	return Bytes{s: b.s[start : start+length]}, nil
}

// Concat returns b followed by other.
func (b Bytes) Concat(other Bytes) Bytes {
	return Bytes{s: b.s + other.s}
}

// Equal reports whether b and other hold the same bytes.
func (b Bytes) Equal(other Bytes) bool {
	return b.s == other.s
}

// Compare orders byte strings lexicographically.
func (b Bytes) Compare(other Bytes) int {
	return strings.Compare(b.s, other.s)
}

// Raw returns a copy of the underlying bytes.
func (b Bytes) Raw() []byte {
	return []byte(b.s)
}

// Hex returns the uppercase hex encoding.
func (b Bytes) Hex() string {
	return HexEncode(b)
}

// String returns the uppercase hex encoding.
func (b Bytes) String() string {
	return b.Hex()
}

// MarshalText encodes the byte string as uppercase hex.
func (b Bytes) MarshalText() ([]byte, error) {
	return []byte(b.Hex()), nil
}

// UnmarshalText decodes a hex string.
func (b *Bytes) UnmarshalText(text []byte) error {
	v, err := BytesFromHex(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// HexEncode returns the uppercase, even-length hex encoding of b.
func HexEncode(b Bytes) string {
	return strings.ToUpper(hex.EncodeToString([]byte(b.s)))
}

// HexDecode is BytesFromHex.
func HexDecode(h string) (Bytes, error) {
	return BytesFromHex(h)
}
