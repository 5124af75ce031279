package abi

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/fortiblox/X1-Nimbus/internal/types"
	"github.com/fortiblox/X1-Nimbus/pkg/failure"
)

const nullTag = "null"

// Format returns the tagged text encoding of v.
func Format(v Value) string {
	switch v.kind {
	case KindNull:
		return nullTag
	case KindBool:
		if v.num != 0 {
			return "bool.true"
		}
		return "bool.false"
	case KindUtf8:
		return "utf8." + v.str
	case KindBytes:
		return "bytes." + v.raw.Hex()
	default:
		return v.kind.String() + "." + strconv.FormatInt(v.num, 10)
	}
}

// FormatAll formats each value.
func FormatAll(vs []Value) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = Format(v)
	}
	return out
}

// Parse decodes a tagged text value. Only the canonical form produced by
// Format is accepted, so Format(Parse(s)) == s for every valid s.
func Parse(s string) (Value, error) {
	if s == nullTag {
		return Null(), nil
	}
	tag, body, ok := strings.Cut(s, ".")
	if !ok {
		return Value{}, failure.Validation("value %q has no tag", s)
	}

	switch tag {
	case "int8":
		n, err := parseInt(tag, body, 8)
		return Int8(int8(n)), err
	case "int16":
		n, err := parseInt(tag, body, 16)
		return Int16(int16(n)), err
	case "int32":
		n, err := parseInt(tag, body, 32)
		return Int32(int32(n)), err
	case "int64":
		n, err := parseInt(tag, body, 64)
		return Int64(n), err
	case "uint8":
		n, err := parseUint(tag, body, 8)
		return Uint8(uint8(n)), err
	case "uint16":
		n, err := parseUint(tag, body, 16)
		return Uint16(uint16(n)), err
	case "uint32":
		n, err := parseUint(tag, body, 32)
		return Uint32(uint32(n)), err
	case "bool":
		switch body {
		case "true":
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		}
		return Value{}, failure.Validation("bool body must be true or false, got %q", body)
	case "utf8":
		if !utf8.ValidString(body) {
			return Value{}, failure.Validation("utf8 body is not valid UTF-8")
		}
		return Utf8(body), nil
	case "bytes":
		if strings.ToUpper(body) != body {
			return Value{}, failure.Validation("bytes body must be uppercase hex")
		}
		b, err := types.BytesFromHex(body)
		if err != nil {
			return Value{}, err
		}
		return BytesOf(b), nil
	}
	return Value{}, failure.Validation("unknown tag %q", tag)
}

// ParseAll decodes every argument, failing on the first malformed one.
func ParseAll(ss []string) ([]Value, error) {
	out := make([]Value, len(ss))
	for i, s := range ss {
		v, err := Parse(s)
		if err != nil {
			if sig, ok := failure.As(err); ok {
				sig.Message = "argument " + strconv.Itoa(i) + ": " + sig.Message
			}
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func parseInt(tag, body string, bits int) (int64, error) {
	n, err := strconv.ParseInt(body, 10, bits)
	if err != nil {
		return 0, failure.Validation("invalid %s body %q", tag, body)
	}
	if strconv.FormatInt(n, 10) != body {
		return 0, failure.Validation("non-canonical %s body %q", tag, body)
	}
	return n, nil
}

func parseUint(tag, body string, bits int) (uint64, error) {
	n, err := strconv.ParseUint(body, 10, bits)
	if err != nil {
		return 0, failure.Validation("invalid %s body %q", tag, body)
	}
	if strconv.FormatUint(n, 10) != body {
		return 0, failure.Validation("non-canonical %s body %q", tag, body)
	}
	return n, nil
}
