package abi

import (
	"encoding/binary"
	"unicode/utf8"

	"github.com/fortiblox/X1-Nimbus/internal/types"
	"github.com/fortiblox/X1-Nimbus/pkg/failure"
)

// widths holds the payload size of fixed-width kinds.
var widths = [...]int{
	KindInt8:   1,
	KindInt16:  2,
	KindInt32:  4,
	KindInt64:  8,
	KindUint8:  1,
	KindUint16: 2,
	KindUint32: 4,
	KindBool:   1,
}

// Marshal returns the canonical binary encoding of v.
func Marshal(v Value) []byte {
	return AppendMarshal(nil, v)
}

// AppendMarshal appends the canonical binary encoding of v to dst.
func AppendMarshal(dst []byte, v Value) []byte {
	dst = append(dst, byte(v.kind))
	switch v.kind {
	case KindNull:
	case KindUtf8:
		dst = binary.AppendUvarint(dst, uint64(len(v.str)))
		dst = append(dst, v.str...)
	case KindBytes:
		raw := v.raw.Raw()
		dst = binary.AppendUvarint(dst, uint64(len(raw)))
		dst = append(dst, raw...)
	default:
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(v.num))
		dst = append(dst, buf[8-widths[v.kind]:]...)
	}
	return dst
}

// Unmarshal decodes a value produced by Marshal. Trailing bytes are rejected.
func Unmarshal(data []byte) (Value, error) {
	v, n, err := decode(data)
	if err != nil {
		return Value{}, err
	}
	if n != len(data) {
		return Value{}, failure.Validation("%d trailing bytes after value", len(data)-n)
	}
	return v, nil
}

func decode(data []byte) (Value, int, error) {
	if len(data) == 0 {
		return Value{}, 0, failure.Validation("empty value encoding")
	}
	kind := Kind(data[0])
	if !kind.valid() {
		return Value{}, 0, failure.Validation("unknown kind byte %d", data[0])
	}
	body := data[1:]

	switch kind {
	case KindNull:
		return Null(), 1, nil
	case KindUtf8, KindBytes:
		size, n := binary.Uvarint(body)
		if n <= 0 || size > uint64(len(body)-n) {
			return Value{}, 0, failure.Validation("truncated %s payload", kind)
		}
		payload := body[n : n+int(size)]
		used := 1 + n + int(size)
		if kind == KindUtf8 {
			if !utf8.Valid(payload) {
				return Value{}, 0, failure.Validation("utf8 payload is not valid UTF-8")
			}
			return Utf8(string(payload)), used, nil
		}
		return BytesOf(types.NewBytes(payload...)), used, nil
	}

	w := widths[kind]
	if len(body) < w {
		return Value{}, 0, failure.Validation("truncated %s payload", kind)
	}
	var buf [8]byte
	copy(buf[8-w:], body[:w])
	u := binary.BigEndian.Uint64(buf[:])

	var v Value
	switch kind {
	case KindInt8:
		v = Int8(int8(u))
	case KindInt16:
		v = Int16(int16(u))
	case KindInt32:
		v = Int32(int32(u))
	case KindInt64:
		v = Int64(int64(u))
	case KindUint8:
		v = Uint8(uint8(u))
	case KindUint16:
		v = Uint16(uint16(u))
	case KindUint32:
		v = Uint32(uint32(u))
	case KindBool:
		if u > 1 {
			return Value{}, 0, failure.Validation("bool byte must be 0 or 1, got %d", u)
		}
		v = Bool(u == 1)
	}
	return v, 1 + w, nil
}
