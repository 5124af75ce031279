package node

import (
	"context"
	"testing"
	"time"

	"github.com/fortiblox/X1-Nimbus/internal/types"
	"github.com/fortiblox/X1-Nimbus/pkg/abi"
	"github.com/fortiblox/X1-Nimbus/pkg/programs/token"
	"github.com/fortiblox/X1-Nimbus/pkg/programs/vault"
	"github.com/fortiblox/X1-Nimbus/pkg/runtime"
	"github.com/fortiblox/X1-Nimbus/pkg/state"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice     = types.Address{0xA1}
	vaultAddr = types.Address{0x71}
)

func testConfig(t *testing.T, backend string) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Backend = state.BackendConfig{Kind: backend}
	cfg.GatewayEnabled = false
	cfg.BlockInterval = 5 * time.Millisecond
	cfg.Genesis = map[types.Address]*uint256.Int{alice: uint256.NewInt(100)}
	cfg.Deployments = map[types.Address]string{vaultAddr: vault.Kind}
	return &cfg
}

func deposit(t *testing.T, n *Node, amount int64) *runtime.Receipt {
	t.Helper()
	rcpt, err := n.Runtime().Execute(&runtime.Tx{
		Sender:  alice,
		Program: vaultAddr,
		Method:  "Deposit",
		Args:    []abi.Value{abi.Int64(amount)},
	})
	require.NoError(t, err)
	require.True(t, rcpt.Success, "deposit failed: %v", rcpt.Failure)
	return rcpt
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"missing data dir", func(c *Config) { c.DataDir = "" }, true},
		{"memory without receipts", func(c *Config) {
			c.DataDir = ""
			c.Backend.Kind = state.BackendMemory
			c.ReceiptsEnabled = false
		}, false},
		{"zero interval", func(c *Config) { c.BlockInterval = 0 }, true},
		{"void deployment", func(c *Config) {
			c.Deployments = map[types.Address]string{{}: vault.Kind}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrConfigInvalid)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNextBlock(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	first := NextBlock(runtime.BlockInfo{}, now)
	assert.Equal(t, uint64(1), first.Height)
	assert.Equal(t, now.UnixMilli(), first.Time)
	assert.Equal(t, 32, first.Hash.Len())

	again := NextBlock(runtime.BlockInfo{}, now.Add(time.Hour))
	assert.Equal(t, first.Hash, again.Hash)

	second := NextBlock(first, now)
	assert.Equal(t, uint64(2), second.Height)
	assert.NotEqual(t, first.Hash, second.Hash)
}

func TestAdvance(t *testing.T) {
	cfg := testConfig(t, state.BackendMemory)
	fixed := time.UnixMilli(42_000)
	cfg.Clock = func() time.Time { return fixed }

	var seen []uint64
	cfg.OnBlock = func(b runtime.BlockInfo) { seen = append(seen, b.Height) }

	n, err := New(cfg)
	require.NoError(t, err)
	defer n.Stop()

	b := n.Advance()
	assert.Equal(t, uint64(1), b.Height)
	assert.Equal(t, int64(42_000), b.Time)
	assert.Equal(t, b, n.Runtime().Block())
	n.Advance()
	assert.Equal(t, []uint64{1, 2}, seen)
	assert.Equal(t, uint64(2), n.Status().BlocksProduced)
}

func TestNodeLifecycle(t *testing.T) {
	n, err := New(testConfig(t, state.BackendMemory))
	require.NoError(t, err)

	bal, err := n.Runtime().BalanceOf(alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), bal.Uint64())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, n.Start(ctx))
	assert.ErrorIs(t, n.Start(ctx), ErrAlreadyRunning)

	require.Eventually(t, func() bool {
		return n.Runtime().Block().Height >= 2
	}, 2*time.Second, 5*time.Millisecond)

	rcpt := deposit(t, n, 10)
	assert.GreaterOrEqual(t, rcpt.Height, uint64(2))

	st := n.Status()
	assert.True(t, st.IsRunning)
	assert.Equal(t, uint64(1), st.Receipts)
	assert.NotEqual(t, types.Hash{}, st.Root)
	assert.Empty(t, st.GatewayAddr)
	assert.NoError(t, st.LastError)

	require.NoError(t, n.Stop())
	assert.ErrorIs(t, n.Stop(), ErrClosed)
	assert.ErrorIs(t, n.Start(ctx), ErrClosed)
	assert.False(t, n.Status().IsRunning)
}

func TestNodeReopen(t *testing.T) {
	cfg := testConfig(t, state.BackendLevelDB)

	n, err := New(cfg)
	require.NoError(t, err)
	n.Advance()
	n.Advance()
	n.Advance()
	first := deposit(t, n, 30)
	root, err := n.World().Root()
	require.NoError(t, err)
	block := n.Runtime().Block()
	require.NoError(t, n.Stop())

	n, err = New(cfg)
	require.NoError(t, err)
	defer n.Stop()

	// Genesis is not applied twice.
	bal, err := n.Runtime().BalanceOf(alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(70), bal.Uint64())

	reopened, err := n.World().Root()
	require.NoError(t, err)
	assert.Equal(t, root, reopened)

	// The block and its hash chain resume where they stopped.
	assert.Equal(t, block, n.Runtime().Block())
	assert.Equal(t, uint64(3), n.Runtime().Block().Height)
	assert.Equal(t, uint64(1), n.Receipts().Count())

	// The same deposit in the same block gets a new id.
	second := deposit(t, n, 30)
	assert.Equal(t, first.Height, second.Height)
	assert.NotEqual(t, first.TxID, second.TxID)
	assert.Equal(t, uint64(2), n.Receipts().Count())

	next := n.Advance()
	assert.Equal(t, NextBlock(block, time.UnixMilli(next.Time)).Hash, next.Hash)
}

func TestDeploymentConflict(t *testing.T) {
	cfg := testConfig(t, state.BackendLevelDB)
	n, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, n.Stop())

	cfg.Deployments = map[types.Address]string{vaultAddr: token.Kind}
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrDeploymentConflict)
}
