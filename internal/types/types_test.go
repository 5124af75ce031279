package types

import (
	"encoding/json"
	"testing"

	"github.com/fortiblox/X1-Nimbus/pkg/failure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHexVector(t *testing.T) {
	b, err := BytesFromHex("010A1FFF")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 10, 31, 255}, b.Raw())
	assert.Equal(t, "010A1FFF", HexEncode(NewBytes(1, 10, 31, 255)))
}

func TestHexRoundTrip(t *testing.T) {
	inputs := [][]byte{
		nil,
		{0x00},
		{0xde, 0xad, 0xbe, 0xef},
		make([]byte, 64),
	}
	for _, in := range inputs {
		b := NewBytes(in...)
		h := HexEncode(b)
		assert.Equal(t, 2*len(in), len(h))

		back, err := HexDecode(h)
		require.NoError(t, err)
		assert.True(t, back.Equal(b))
	}

	// Lowercase input decodes and re-encodes uppercase.
	b, err := HexDecode("abcdef")
	require.NoError(t, err)
	assert.Equal(t, "ABCDEF", b.Hex())
}

func TestHexMalformed(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"odd length", "ABC"},
		{"bad digit", "ZZ"},
		{"bad second digit", "0G"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BytesFromHex(tt.in)
			require.Error(t, err)
			assert.Equal(t, failure.KindValidation, failure.KindOf(err))
		})
	}
}

func TestConcatAndSlice(t *testing.T) {
	a := NewBytes(1, 2, 3)
	b := NewBytes(4, 5)

	c := a.Concat(b)
	assert.Equal(t, a.Len()+b.Len(), c.Len())

	head, err := c.Slice(0, a.Len())
	require.NoError(t, err)
	assert.True(t, head.Equal(a))

	tail, err := c.Slice(a.Len(), b.Len())
	require.NoError(t, err)
	assert.True(t, tail.Equal(b))

	// Operands are untouched.
	assert.Equal(t, []byte{1, 2, 3}, a.Raw())
	assert.Equal(t, []byte{4, 5}, b.Raw())

	empty, err := c.Slice(c.Len(), 0)
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())
	assert.True(t, empty == Empty)
}

func TestSliceOutOfRange(t *testing.T) {
	b := NewBytes(1, 2, 3)
	cases := [][2]int{{-1, 1}, {0, -1}, {2, 2}, {4, 0}, {0, 4}}
	for _, c := range cases {
		_, err := b.Slice(c[0], c[1])
		require.Error(t, err, "slice %v", c)
		assert.Equal(t, failure.KindIndex, failure.KindOf(err))
	}

	_, err := b.At(3)
	assert.Equal(t, failure.KindIndex, failure.KindOf(err))
	v, err := b.At(2)
	require.NoError(t, err)
	assert.Equal(t, byte(3), v)
}

func TestBytesStructuralEquality(t *testing.T) {
	m := map[Bytes]int{}
	m[NewBytes(1, 2)] = 7
	assert.Equal(t, 7, m[MustBytesFromHex("0102")])
	assert.True(t, NewBytes(1, 2) == NewBytes(1, 2))
	assert.Equal(t, -1, NewBytes(1).Compare(NewBytes(2)))
}

func TestVoidAddress(t *testing.T) {
	assert.Equal(t, AddressSize, VoidBytes.Len())
	assert.True(t, VoidAddress.IsVoid())
	assert.True(t, VoidAddress.Bytes() == VoidBytes)
	assert.NotEqual(t, Empty, VoidBytes)
}

func TestAddressEncodings(t *testing.T) {
	var a Address
	for i := range a {
		a[i] = byte(i)
	}

	fromHex, err := AddressFromHex(a.Hex())
	require.NoError(t, err)
	assert.Equal(t, a, fromHex)

	fromB58, err := AddressFromBase58(a.Base58())
	require.NoError(t, err)
	assert.Equal(t, a, fromB58)

	parsed, err := ParseAddress(a.Base58())
	require.NoError(t, err)
	assert.Equal(t, a, parsed)

	fromBytes, err := AddressFromBytes(a.Bytes())
	require.NoError(t, err)
	assert.Equal(t, a, fromBytes)

	_, err = AddressFromBytes(NewBytes(1, 2))
	assert.ErrorIs(t, err, ErrInvalidAddress)

	out, err := json.Marshal(a)
	require.NoError(t, err)
	var back Address
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, a, back)
}

func TestHashText(t *testing.T) {
	var h Hash
	assert.True(t, h.IsZero())
	h[31] = 0xAB
	back, err := HashFromHex(h.Hex())
	require.NoError(t, err)
	assert.Equal(t, h, back)
	_, err = HashFromHex("00")
	assert.ErrorIs(t, err, ErrInvalidHash)
}
