package abi

import (
	"github.com/fortiblox/X1-Nimbus/internal/types"
	"github.com/fortiblox/X1-Nimbus/pkg/failure"
)

// Args is a method's argument list with typed, arity-checked accessors.
type Args []Value

// Expect fails unless exactly n arguments were supplied.
func (a Args) Expect(n int) error {
	if len(a) != n {
		return failure.Validation("expected %d arguments, got %d", n, len(a))
	}
	return nil
}

func (a Args) at(i int) (Value, error) {
	if i < 0 || i >= len(a) {
		return Value{}, failure.Validation("missing argument %d", i)
	}
	return a[i], nil
}

// Int32 returns argument i as int32.
func (a Args) Int32(i int) (int32, error) {
	v, err := a.at(i)
	if err != nil {
		return 0, err
	}
	return v.AsInt32()
}

// Int64 returns argument i as int64. Narrower integer kinds are widened.
func (a Args) Int64(i int) (int64, error) {
	v, err := a.at(i)
	if err != nil {
		return 0, err
	}
	return v.AsInteger()
}

// Bool returns argument i as bool.
func (a Args) Bool(i int) (bool, error) {
	v, err := a.at(i)
	if err != nil {
		return false, err
	}
	return v.AsBool()
}

// String returns argument i as a utf8 string.
func (a Args) String(i int) (string, error) {
	v, err := a.at(i)
	if err != nil {
		return "", err
	}
	return v.AsUtf8()
}

// Bytes returns argument i as a byte string.
func (a Args) Bytes(i int) (types.Bytes, error) {
	v, err := a.at(i)
	if err != nil {
		return types.Empty, err
	}
	return v.AsBytes()
}

// Address returns argument i as a 32-byte address.
func (a Args) Address(i int) (types.Address, error) {
	v, err := a.at(i)
	if err != nil {
		return types.Address{}, err
	}
	return v.AsAddress()
}
