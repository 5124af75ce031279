// Package abi defines the values that cross the program boundary and their
// two encodings.
//
// Text encoding (the gateway wire form) is a tag, a dot and a body:
//
//	int8.-5  int16.300  int32.7  int64.-9  uint8.255  uint16.1  uint32.4
//	bool.true  utf8.hello  bytes.010AFF  null
//
// Binary encoding (the canonical form used for storage keys and values) is a
// kind byte followed by a fixed-width big-endian integer, a single bool byte,
// or a uvarint length and raw bytes. Two values are equal exactly when their
// binary encodings are equal.
package abi

import (
	"fmt"

	"github.com/fortiblox/X1-Nimbus/internal/types"
	"github.com/fortiblox/X1-Nimbus/pkg/failure"
)

// Kind is the type tag of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindBool
	KindUtf8
	KindBytes
)

var kindTags = [...]string{
	KindNull:   "null",
	KindInt8:   "int8",
	KindInt16:  "int16",
	KindInt32:  "int32",
	KindInt64:  "int64",
	KindUint8:  "uint8",
	KindUint16: "uint16",
	KindUint32: "uint32",
	KindBool:   "bool",
	KindUtf8:   "utf8",
	KindBytes:  "bytes",
}

// String returns the text tag of the kind.
func (k Kind) String() string {
	if int(k) < len(kindTags) {
		return kindTags[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k Kind) valid() bool {
	return int(k) < len(kindTags)
}

// Value is a tagged scalar. Values are comparable with ==.
type Value struct {
	kind Kind
	num  int64
	str  string
	raw  types.Bytes
}

// Null is the null value. It is also the zero Value.
func Null() Value { return Value{} }

func Int8(v int8) Value { return Value{kind: KindInt8, num: int64(v)} }
func Int16(v int16) Value { return Value{kind: KindInt16, num: int64(v)} }
func Int32(v int32) Value { return Value{kind: KindInt32, num: int64(v)} }
func Int64(v int64) Value { return Value{kind: KindInt64, num: v} }
func Uint8(v uint8) Value { return Value{kind: KindUint8, num: int64(v)} }
func Uint16(v uint16) Value { return Value{kind: KindUint16, num: int64(v)} }
func Uint32(v uint32) Value { return Value{kind: KindUint32, num: int64(v)} }
func Utf8(v string) Value { return Value{kind: KindUtf8, str: v} }

// Bool returns a bool value.
func Bool(v bool) Value {
	if v {
		return Value{kind: KindBool, num: 1}
	}
	return Value{kind: KindBool}
}

// BytesOf wraps a byte string.
func BytesOf(b types.Bytes) Value { return Value{kind: KindBytes, raw: b} }

// AddressOf wraps an address as a 32-byte byte string.
func AddressOf(a types.Address) Value { return BytesOf(a.Bytes()) }

// Kind returns the tag of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) expect(k Kind) error {
	if v.kind != k {
		return failure.Validation("expected %s, got %s", k, v.kind)
	}
	return nil
}

// AsInt8 returns the payload of an int8 value.
func (v Value) AsInt8() (int8, error) { return int8(v.num), v.expect(KindInt8) }

// AsInt16 returns the payload of an int16 value.
func (v Value) AsInt16() (int16, error) { return int16(v.num), v.expect(KindInt16) }

// AsInt32 returns the payload of an int32 value.
func (v Value) AsInt32() (int32, error) { return int32(v.num), v.expect(KindInt32) }

// AsInt64 returns the payload of an int64 value.
func (v Value) AsInt64() (int64, error) { return v.num, v.expect(KindInt64) }

// AsUint8 returns the payload of a uint8 value.
func (v Value) AsUint8() (uint8, error) { return uint8(v.num), v.expect(KindUint8) }

// AsUint16 returns the payload of a uint16 value.
func (v Value) AsUint16() (uint16, error) { return uint16(v.num), v.expect(KindUint16) }

// AsUint32 returns the payload of a uint32 value.
func (v Value) AsUint32() (uint32, error) { return uint32(v.num), v.expect(KindUint32) }

// AsBool returns the payload of a bool value.
func (v Value) AsBool() (bool, error) { return v.num != 0, v.expect(KindBool) }

// AsUtf8 returns the payload of a utf8 value.
func (v Value) AsUtf8() (string, error) { return v.str, v.expect(KindUtf8) }

// AsBytes returns the payload of a bytes value.
func (v Value) AsBytes() (types.Bytes, error) { return v.raw, v.expect(KindBytes) }

// AsAddress returns the payload of a 32-byte bytes value.
func (v Value) AsAddress() (types.Address, error) {
	if err := v.expect(KindBytes); err != nil {
		return types.Address{}, err
	}
	a, err := types.AddressFromBytes(v.raw)
	if err != nil {
		return a, failure.Validation("expected 32-byte address, got %d bytes", v.raw.Len())
	}
	return a, nil
}

// AsInteger widens any integer kind to int64.
func (v Value) AsInteger() (int64, error) {
	switch v.kind {
	case KindInt8, KindInt16, KindInt32, KindInt64, KindUint8, KindUint16, KindUint32:
		return v.num, nil
	}
	return 0, failure.Validation("expected integer, got %s", v.kind)
}

// String returns the text encoding.
func (v Value) String() string {
	return Format(v)
}
