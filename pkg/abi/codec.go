package abi

import (
	"github.com/fortiblox/X1-Nimbus/internal/types"
)

// Codec maps a Go type onto Value. Storage mappings use it to serialize
// keys and values through Marshal, so every typed container shares one
// canonical byte form.
type Codec[T any] interface {
	ToValue(T) Value
	FromValue(Value) (T, error)
}

type funcCodec[T any] struct {
	to   func(T) Value
	from func(Value) (T, error)
}

func (c funcCodec[T]) ToValue(v T) Value { return c.to(v) }
func (c funcCodec[T]) FromValue(v Value) (T, error) { return c.from(v) }

// NewCodec builds a Codec from a pair of functions.
func NewCodec[T any](to func(T) Value, from func(Value) (T, error)) Codec[T] {
	return funcCodec[T]{to: to, from: from}
}

// Built-in codecs.
var (
	Int8Codec    = NewCodec(Int8, Value.AsInt8)
	Int16Codec   = NewCodec(Int16, Value.AsInt16)
	Int32Codec   = NewCodec(Int32, Value.AsInt32)
	Int64Codec   = NewCodec(Int64, Value.AsInt64)
	Uint8Codec   = NewCodec(Uint8, Value.AsUint8)
	Uint16Codec  = NewCodec(Uint16, Value.AsUint16)
	Uint32Codec  = NewCodec(Uint32, Value.AsUint32)
	BoolCodec    = NewCodec(Bool, Value.AsBool)
	StringCodec  = NewCodec(Utf8, Value.AsUtf8)
	BytesCodec   = NewCodec(BytesOf, Value.AsBytes)
	AddressCodec = NewCodec(AddressOf, Value.AsAddress)
	ValueCodec   = NewCodec(func(v Value) Value { return v }, func(v Value) (Value, error) { return v, nil })
)

// EncodeKey returns the canonical bytes of a typed key.
func EncodeKey[T any](c Codec[T], v T) []byte {
	return Marshal(c.ToValue(v))
}

// DecodeValue decodes canonical bytes into a typed value.
func DecodeValue[T any](c Codec[T], data []byte) (T, error) {
	v, err := Unmarshal(data)
	if err != nil {
		var zero T
		return zero, err
	}
	return c.FromValue(v)
}

// Pair concatenates two byte strings into one composite key. The first
// component is length-prefixed so (a, b) pairs never collide.
func Pair(a, b types.Bytes) types.Bytes {
	prefix := AppendMarshal(nil, BytesOf(a))
	return types.NewBytes(prefix...).Concat(b)
}
