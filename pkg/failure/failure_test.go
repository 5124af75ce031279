package failure

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindNames(t *testing.T) {
	tests := []struct {
		kind Kind
		name string
	}{
		{KindValidation, "ValidationError"},
		{KindInsufficientFunds, "InsufficientFunds"},
		{KindIndex, "IndexError"},
		{KindKeyNotFound, "KeyNotFound"},
		{KindUserRaised, "UserRaised"},
		{KindCallDepthExceeded, "CallDepthExceeded"},
		{KindOutOfResources, "OutOfResources"},
		{KindCrossCall, "CrossCallFailure"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.kind.String())
			k, ok := ParseKind(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.kind, k)
		})
	}

	_, ok := ParseKind("NoSuchKind")
	assert.False(t, ok)
	assert.Equal(t, "Kind(200)", Kind(200).String())
}

func TestSignalThroughWrapping(t *testing.T) {
	sig := InsufficientFunds("AB", "balance %d below %d", 1, 2)
	wrapped := fmt.Errorf("transfer: %w", sig)

	got, ok := As(wrapped)
	require.True(t, ok)
	assert.Same(t, sig, got)
	assert.Equal(t, KindInsufficientFunds, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindInsufficientFunds))
	assert.Equal(t, "InsufficientFunds: balance 1 below 2 (AB)", sig.Error())
}

func TestFrom(t *testing.T) {
	assert.Nil(t, From(nil))

	sig := From(errors.New("boom"))
	assert.Equal(t, KindUserRaised, sig.Kind)
	assert.Equal(t, "boom", sig.Message)

	orig := Validation("bad hex")
	assert.Same(t, orig, From(fmt.Errorf("decode: %w", orig)))
	assert.Equal(t, KindNone, KindOf(errors.New("plain")))
	assert.False(t, Is(nil, KindNone))
}

func TestCrossCall(t *testing.T) {
	sig := Raise("nope")
	assert.False(t, sig.CrossCall())
	sig.Depth = 2
	assert.True(t, sig.CrossCall())
}
