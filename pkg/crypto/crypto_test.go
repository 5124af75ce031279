package crypto

import (
	"crypto/ed25519"
	"encoding/hex"
	"testing"

	"github.com/fortiblox/X1-Nimbus/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashVectors(t *testing.T) {
	tests := []struct {
		alg  Algorithm
		in   string
		want string
	}{
		{RIPEMD160, "", "9c1185a5c5e9fc54612808977ee8f548b2258d31"},
		{RIPEMD160, "abc", "8eb208f7e05d987a9b044a8e98c6b087f15a0bfc"},
		{SHA256, "abc", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{Keccak256, "", "c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"},
		{BLAKE3, "", "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"},
	}

	for _, tt := range tests {
		t.Run(tt.alg.String()+"/"+tt.in, func(t *testing.T) {
			got := Sum(tt.alg, []byte(tt.in))
			assert.Equal(t, tt.want, hex.EncodeToString(got))
			assert.Len(t, got, tt.alg.Size())
		})
	}
}

func TestHashDeterministic(t *testing.T) {
	b := types.BytesFromString("the same input")
	assert.Equal(t, Hash(DefaultAlgorithm, b), Hash(DefaultAlgorithm, b))
	assert.NotEqual(t, Hash(DefaultAlgorithm, b), Hash(DefaultAlgorithm, b.Concat(types.NewBytes(0))))
	assert.Equal(t, 20, Hash(RIPEMD160, b).Len())
}

func TestParseAlgorithm(t *testing.T) {
	for a, name := range algorithmNames {
		got, err := ParseAlgorithm(name)
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}
	got, err := ParseAlgorithm("SHA256")
	require.NoError(t, err)
	assert.Equal(t, SHA256, got)

	_, err = ParseAlgorithm("md5")
	assert.Error(t, err)
}

func TestVerifyEd25519(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := types.NewBytes(priv.Public().(ed25519.PublicKey)...)
	msg := types.BytesFromString("transfer 40")
	sig := types.NewBytes(ed25519.Sign(priv, msg.Raw())...)

	assert.True(t, VerifyEd25519(pub, msg, sig))
	assert.False(t, VerifyEd25519(pub, types.BytesFromString("transfer 41"), sig))

	tampered := sig.Raw()
	tampered[0] ^= 0xFF
	assert.False(t, VerifyEd25519(pub, msg, types.NewBytes(tampered...)))

	// Malformed inputs never panic.
	assert.False(t, VerifyEd25519(types.Empty, msg, sig))
	assert.False(t, VerifyEd25519(pub, msg, types.NewBytes(1, 2, 3)))
	assert.False(t, VerifyEd25519(types.NewBytes(make([]byte, 31)...), msg, sig))
}

func TestBlake3Hash(t *testing.T) {
	a := Blake3Hash([]byte("ab"), []byte("c"))
	b := Blake3Hash([]byte("abc"))
	assert.Equal(t, a, b)
	assert.False(t, a.IsZero())
}
