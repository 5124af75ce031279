package runtime

import (
	"errors"
	"testing"

	"github.com/fortiblox/X1-Nimbus/internal/types"
	"github.com/fortiblox/X1-Nimbus/pkg/abi"
	"github.com/fortiblox/X1-Nimbus/pkg/failure"
	"github.com/fortiblox/X1-Nimbus/pkg/state"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = types.Address{0xA1}
	bob   = types.Address{0xB0}

	progA = types.Address{0x0A}
	progB = types.Address{0x0B}
	progC = types.Address{0x0C}
	loop  = types.Address{0x1F}
)

// chain is a test program: "Run" records its arguments in storage and then
// invokes the next program in the chain, if any.
func chain(next types.Address, hasNext bool) Program {
	return Methods{
		"Run": func(h Host, args abi.Args) (abi.Value, error) {
			if err := h.Storage().Put(abi.Utf8("touched"), abi.Bool(true)); err != nil {
				return abi.Value{}, err
			}
			if !hasNext {
				return abi.Int32(int32(h.Context().Depth())), nil
			}
			return h.Invoke(next, "Run")
		},
		"Fail": func(h Host, args abi.Args) (abi.Value, error) {
			if err := h.Storage().Put(abi.Utf8("touched"), abi.Bool(true)); err != nil {
				return abi.Value{}, err
			}
			if !hasNext {
				return abi.Value{}, h.Raise("boom")
			}
			return h.Invoke(next, "Fail")
		},
		"Swallow": func(h Host, args abi.Args) (abi.Value, error) {
			_, _ = h.Invoke(next, "Fail")
			return abi.Utf8("fine"), nil
		},
		"Callers": func(h Host, args abi.Args) (abi.Value, error) {
			if hasNext {
				return h.Invoke(next, "Callers")
			}
			var out types.Bytes
			for _, c := range h.Context().Callers() {
				out = out.Concat(c.Bytes())
			}
			return abi.BytesOf(out), nil
		},
		"Panic": func(h Host, args abi.Args) (abi.Value, error) {
			panic("kaboom")
		},
		"Error": func(h Host, args abi.Args) (abi.Value, error) {
			return abi.Value{}, errors.New("plain error")
		},
	}
}

var payments = Methods{
	"Pay": func(h Host, args abi.Args) (abi.Value, error) {
		if err := args.Expect(2); err != nil {
			return abi.Value{}, err
		}
		to, err := args.Address(0)
		if err != nil {
			return abi.Value{}, err
		}
		amount, err := args.Int64(1)
		if err != nil {
			return abi.Value{}, err
		}
		if err := h.Transfer(to, amount); err != nil {
			return abi.Value{}, err
		}
		if err := h.Emit("Paid", abi.Int64(amount)); err != nil {
			return abi.Value{}, err
		}
		return abi.Null(), nil
	},
	"PayThenFail": func(h Host, args abi.Args) (abi.Value, error) {
		if err := h.Transfer(bob, 10); err != nil {
			return abi.Value{}, err
		}
		if err := h.Emit("Paid", abi.Int64(10)); err != nil {
			return abi.Value{}, err
		}
		return abi.Value{}, h.Raise("changed my mind")
	},
	"Balance": func(h Host, args abi.Args) (abi.Value, error) {
		bal, err := h.BalanceOf(h.Context().Sender())
		if err != nil {
			return abi.Value{}, err
		}
		return abi.Int64(int64(bal.Uint64())), nil
	},
	"Hash": func(h Host, args abi.Args) (abi.Value, error) {
		b, err := args.Bytes(0)
		if err != nil {
			return abi.Value{}, err
		}
		d, err := h.Hash(b)
		if err != nil {
			return abi.Value{}, err
		}
		return abi.BytesOf(d), nil
	},
}

var recursive = Methods{
	"Recurse": func(h Host, args abi.Args) (abi.Value, error) {
		return h.Invoke(h.Context().Program(), "Recurse")
	},
}

func newTestRuntime(t *testing.T, cfg Config) *Runtime {
	t.Helper()

	reg := NewRegistry()
	reg.MustRegister("a", chain(progB, true))
	reg.MustRegister("b", chain(progC, true))
	reg.MustRegister("c", chain(types.Address{}, false))
	reg.MustRegister("pay", payments)
	reg.MustRegister("loop", recursive)

	world := state.NewWorld(state.NewMemoryBackend(), zerolog.Nop())
	t.Cleanup(func() { world.Close() })

	rt := New(world, reg, cfg)
	require.NoError(t, rt.Deploy(progA, "a"))
	require.NoError(t, rt.Deploy(progB, "b"))
	require.NoError(t, rt.Deploy(progC, "c"))
	require.NoError(t, rt.Deploy(bob, "pay"))
	require.NoError(t, rt.Deploy(loop, "loop"))
	require.NoError(t, rt.Genesis(map[types.Address]*uint256.Int{
		alice: uint256.NewInt(100),
	}))
	rt.SetBlock(BlockInfo{Height: 7, Hash: types.MustBytesFromHex("AB"), Time: 1_700_000_000_000})
	return rt
}

func balance(t *testing.T, rt *Runtime, addr types.Address) uint64 {
	t.Helper()
	bal, err := rt.BalanceOf(addr)
	require.NoError(t, err)
	return bal.Uint64()
}

func stored(t *testing.T, rt *Runtime, prog types.Address) bool {
	t.Helper()
	var found bool
	err := rt.World().Iterate(state.PrefixStorage, func(key, value []byte) error {
		if len(key) > 33 && types.Address(key[1:33]) == prog {
			found = true
		}
		return nil
	})
	require.NoError(t, err)
	return found
}

func payTx(to types.Address, amount int64) *Tx {
	return &Tx{
		Sender:  alice,
		Program: bob,
		Method:  "Pay",
		Args:    []abi.Value{abi.AddressOf(to), abi.Int64(amount)},
	}
}

func TestTransfer(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())
	carol := types.Address{0xC0}

	rcpt, err := rt.Execute(payTx(carol, 40))
	require.NoError(t, err)
	require.True(t, rcpt.Success, "failure: %v", rcpt.Failure)

	assert.Equal(t, uint64(60), balance(t, rt, alice))
	assert.Equal(t, uint64(40), balance(t, rt, carol))
	assert.Equal(t, []abi.Value{abi.Null()}, rcpt.Result)
	require.Len(t, rcpt.Events, 1)
	assert.Equal(t, "Paid", rcpt.Events[0].Name)
	assert.Equal(t, bob, rcpt.Events[0].Program)
	assert.Equal(t, uint64(7), rcpt.Height)
	assert.Greater(t, rcpt.Watts.Spent, uint64(0))
	assert.Equal(t, rcpt.Watts.Total, rcpt.Watts.Spent+rcpt.Watts.Refund)
}

func TestTransferInsufficientFunds(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())
	carol := types.Address{0xC0}

	rcpt, err := rt.Execute(payTx(carol, 150))
	require.NoError(t, err)
	require.False(t, rcpt.Success)
	require.NotNil(t, rcpt.Failure)

	assert.Equal(t, failure.KindInsufficientFunds, rcpt.Failure.Kind)
	assert.Equal(t, alice.Hex(), rcpt.Failure.Subject)
	assert.Equal(t, uint64(100), balance(t, rt, alice))
	assert.Equal(t, uint64(0), balance(t, rt, carol))
	assert.Empty(t, rcpt.Result)
	assert.Empty(t, rcpt.Events)
}

func TestTransferNegativeAmount(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	rcpt, err := rt.Execute(payTx(types.Address{0xC0}, -1))
	require.NoError(t, err)
	require.False(t, rcpt.Success)
	assert.Equal(t, failure.KindValidation, rcpt.Failure.Kind)
	assert.Equal(t, uint64(100), balance(t, rt, alice))
}

func TestFailureDiscardsTransfersAndEvents(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	rcpt, err := rt.Execute(&Tx{Sender: alice, Program: bob, Method: "PayThenFail"})
	require.NoError(t, err)
	require.False(t, rcpt.Success)

	assert.Equal(t, failure.KindUserRaised, rcpt.Failure.Kind)
	assert.Equal(t, "changed my mind", rcpt.Failure.Message)
	assert.Empty(t, rcpt.Events)
	assert.Equal(t, uint64(100), balance(t, rt, alice))
	assert.Equal(t, uint64(0), balance(t, rt, bob))
}

func TestCrossCallSuccess(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	rcpt, err := rt.Execute(&Tx{Sender: alice, Program: progA, Method: "Run"})
	require.NoError(t, err)
	require.True(t, rcpt.Success, "failure: %v", rcpt.Failure)

	// C runs two frames below the root.
	assert.Equal(t, []abi.Value{abi.Int32(2)}, rcpt.Result)
	assert.True(t, stored(t, rt, progA))
	assert.True(t, stored(t, rt, progB))
	assert.True(t, stored(t, rt, progC))
}

func TestCrossCallRollback(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())
	root, err := rt.World().Root()
	require.NoError(t, err)

	rcpt, err := rt.Execute(&Tx{Sender: alice, Program: progA, Method: "Fail"})
	require.NoError(t, err)
	require.False(t, rcpt.Success)

	assert.Equal(t, failure.KindUserRaised, rcpt.Failure.Kind)
	assert.Equal(t, "boom", rcpt.Failure.Message)
	assert.Equal(t, 2, rcpt.Failure.Depth)
	assert.True(t, rcpt.Failure.CrossCall())

	assert.False(t, stored(t, rt, progA))
	assert.False(t, stored(t, rt, progB))
	assert.False(t, stored(t, rt, progC))

	after, err := rt.World().Root()
	require.NoError(t, err)
	assert.Equal(t, root, after)
}

func TestSwallowedFailureStillFails(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	rcpt, err := rt.Execute(&Tx{Sender: alice, Program: progA, Method: "Swallow"})
	require.NoError(t, err)
	require.False(t, rcpt.Success)
	assert.Equal(t, failure.KindUserRaised, rcpt.Failure.Kind)
	assert.Equal(t, "boom", rcpt.Failure.Message)
	assert.Empty(t, rcpt.Result)
}

func TestCallers(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	rcpt, err := rt.Execute(&Tx{Sender: alice, Program: progA, Method: "Callers"})
	require.NoError(t, err)
	require.True(t, rcpt.Success, "failure: %v", rcpt.Failure)

	want := progA.Bytes().Concat(progB.Bytes())
	assert.Equal(t, []abi.Value{abi.BytesOf(want)}, rcpt.Result)

	rcpt, err = rt.Execute(&Tx{Sender: alice, Program: progC, Method: "Callers"})
	require.NoError(t, err)
	assert.Equal(t, []abi.Value{abi.BytesOf(types.Empty)}, rcpt.Result)
}

func TestCallDepthExceeded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCallDepth = 4
	rt := newTestRuntime(t, cfg)

	rcpt, err := rt.Execute(&Tx{Sender: alice, Program: loop, Method: "Recurse"})
	require.NoError(t, err)
	require.False(t, rcpt.Success)
	assert.Equal(t, failure.KindCallDepthExceeded, rcpt.Failure.Kind)
	assert.Equal(t, 4, rcpt.Failure.Depth)
}

func TestCallDepthWithinLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCallDepth = 3
	rt := newTestRuntime(t, cfg)

	// A -> B -> C is exactly three frames.
	rcpt, err := rt.Execute(&Tx{Sender: alice, Program: progA, Method: "Run"})
	require.NoError(t, err)
	assert.True(t, rcpt.Success)

	cfg.MaxCallDepth = 2
	rt = newTestRuntime(t, cfg)
	rcpt, err = rt.Execute(&Tx{Sender: alice, Program: progA, Method: "Run"})
	require.NoError(t, err)
	require.False(t, rcpt.Success)
	assert.Equal(t, failure.KindCallDepthExceeded, rcpt.Failure.Kind)
}

func TestOutOfWatts(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	tx := payTx(types.Address{0xC0}, 10)
	tx.WattsLimit = 1_100
	rcpt, err := rt.Execute(tx)
	require.NoError(t, err)
	require.False(t, rcpt.Success)

	assert.Equal(t, failure.KindOutOfResources, rcpt.Failure.Kind)
	assert.Equal(t, uint64(1_100), rcpt.Watts.Spent)
	assert.Equal(t, uint64(0), rcpt.Watts.Refund)
	assert.Equal(t, uint64(100), balance(t, rt, alice))
}

func TestNoSuchProgram(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())
	ghost := types.Address{0xEE}

	rcpt, err := rt.Execute(&Tx{Sender: alice, Program: ghost, Method: "Run"})
	require.NoError(t, err)
	require.False(t, rcpt.Success)
	assert.Equal(t, failure.KindNoSuchProgram, rcpt.Failure.Kind)
	assert.Equal(t, ghost.Hex(), rcpt.Failure.Subject)
}

func TestNoSuchMethod(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	rcpt, err := rt.Execute(&Tx{Sender: alice, Program: progA, Method: "Nope"})
	require.NoError(t, err)
	require.False(t, rcpt.Success)
	assert.Equal(t, failure.KindNoSuchMethod, rcpt.Failure.Kind)
}

func TestVoidProgram(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	rcpt, err := rt.Execute(&Tx{Sender: alice, Method: "Run"})
	require.NoError(t, err)
	require.False(t, rcpt.Success)
	assert.Equal(t, failure.KindValidation, rcpt.Failure.Kind)
}

func TestPanicAndPlainErrors(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	rcpt, err := rt.Execute(&Tx{Sender: alice, Program: progC, Method: "Panic"})
	require.NoError(t, err)
	require.False(t, rcpt.Success)
	assert.Equal(t, failure.KindUserRaised, rcpt.Failure.Kind)
	assert.Contains(t, rcpt.Failure.Message, "kaboom")

	rcpt, err = rt.Execute(&Tx{Sender: alice, Program: progC, Method: "Error"})
	require.NoError(t, err)
	require.False(t, rcpt.Success)
	assert.Equal(t, failure.KindUserRaised, rcpt.Failure.Kind)
	assert.Equal(t, "plain error", rcpt.Failure.Message)
}

func TestSimulateDoesNotCommit(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())
	carol := types.Address{0xC0}

	rcpt, err := rt.Simulate(payTx(carol, 40))
	require.NoError(t, err)
	assert.True(t, rcpt.Success)
	assert.True(t, rcpt.DryRun)
	assert.Len(t, rcpt.Events, 1)

	assert.Equal(t, uint64(100), balance(t, rt, alice))
	assert.Equal(t, uint64(0), balance(t, rt, carol))
}

func TestHostHash(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	rcpt, err := rt.Execute(&Tx{
		Sender:  alice,
		Program: bob,
		Method:  "Hash",
		Args:    []abi.Value{abi.BytesOf(types.BytesFromString("abc"))},
	})
	require.NoError(t, err)
	require.True(t, rcpt.Success)
	assert.Equal(t,
		[]abi.Value{abi.BytesOf(types.MustBytesFromHex("8EB208F7E05D987A9B044A8E98C6B087F15A0BFC"))},
		rcpt.Result)
}

func TestRWSet(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())
	carol := types.Address{0xC0}

	rcpt, err := rt.Execute(payTx(carol, 1))
	require.NoError(t, err)
	require.True(t, rcpt.Success)

	assert.Contains(t, rcpt.RWSet.Writes, string(state.BalanceKey(alice)))
	assert.Contains(t, rcpt.RWSet.Writes, string(state.BalanceKey(carol)))
	assert.Contains(t, rcpt.RWSet.Reads, string(state.ProgramKey(bob)))

	other, err := rt.Simulate(payTx(types.Address{0xD0}, 1))
	require.NoError(t, err)
	assert.True(t, rcpt.RWSet.Conflicts(other.RWSet))
}

func TestDeployErrors(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	assert.ErrorIs(t, rt.Deploy(progA, "a"), ErrAlreadyDeployed)
	assert.ErrorIs(t, rt.Deploy(types.Address{0x99}, "missing"), ErrUnknownKind)
	assert.ErrorIs(t, rt.Deploy(types.Address{}, "a"), ErrVoidAddress)

	kind, ok, err := rt.Deployment(progB)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "b", kind)
}

type sinkFunc func(*Receipt) error

func (f sinkFunc) PutReceipt(r *Receipt) error { return f(r) }

func TestReceiptSink(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())

	var got []*Receipt
	rt.SetReceiptSink(sinkFunc(func(r *Receipt) error {
		got = append(got, r)
		return nil
	}))

	_, err := rt.Execute(payTx(types.Address{0xC0}, 1))
	require.NoError(t, err)
	_, err = rt.Execute(payTx(types.Address{0xC0}, 1_000))
	require.NoError(t, err)
	_, err = rt.Simulate(payTx(types.Address{0xC0}, 1))
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.True(t, got[0].Success)
	assert.False(t, got[1].Success)
}

func TestTxID(t *testing.T) {
	a := payTx(bob, 1)
	b := payTx(bob, 1)
	assert.Equal(t, a.ID(1, 1), b.ID(1, 1))
	assert.NotEqual(t, a.ID(1, 1), a.ID(2, 1))
	assert.NotEqual(t, a.ID(1, 1), a.ID(1, 2))

	b.Nonce = 1
	assert.NotEqual(t, a.ID(1, 1), b.ID(1, 1))
}

func TestExecuteSameTxTwice(t *testing.T) {
	rt := newTestRuntime(t, DefaultConfig())
	rt.SetSequence(41)
	carol := types.Address{0xC0}

	ids := make(map[types.Hash]bool)
	rt.SetReceiptSink(sinkFunc(func(r *Receipt) error {
		ids[r.TxID] = true
		return nil
	}))

	sim, err := rt.Simulate(payTx(carol, 1))
	require.NoError(t, err)

	first, err := rt.Execute(payTx(carol, 1))
	require.NoError(t, err)
	second, err := rt.Execute(payTx(carol, 1))
	require.NoError(t, err)

	require.True(t, first.Success)
	require.True(t, second.Success)
	assert.Equal(t, first.Height, second.Height)
	assert.NotEqual(t, first.TxID, second.TxID)
	assert.Equal(t, uint64(42), first.Seq)
	assert.Equal(t, uint64(43), second.Seq)
	assert.Equal(t, uint64(43), rt.Sequence())
	assert.Len(t, ids, 2)

	// A simulation previews the next id without consuming it.
	assert.Equal(t, first.TxID, sim.TxID)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("x", recursive))
	assert.ErrorIs(t, reg.Register("x", recursive), ErrDuplicateKind)
	require.NoError(t, reg.Register("a", recursive))
	assert.Equal(t, []string{"a", "x"}, reg.Kinds())
}

func TestExecutionContextAccessors(t *testing.T) {
	block := BlockInfo{Height: 3, Hash: types.MustBytesFromHex("0102"), Time: 42}
	ctx := NewExecutionContext(alice, progA, block)
	assert.Equal(t, alice, ctx.Sender())
	assert.Equal(t, progA, ctx.Program())
	assert.Empty(t, ctx.Callers())
	_, ok := ctx.Caller()
	assert.False(t, ok)

	inner := ctx.enter(progB)
	assert.Equal(t, alice, inner.Sender())
	assert.Equal(t, progB, inner.Program())
	assert.Equal(t, []types.Address{progA}, inner.Callers())
	caller, ok := inner.Caller()
	assert.True(t, ok)
	assert.Equal(t, progA, caller)
	assert.Equal(t, uint64(3), inner.Height())
	assert.Equal(t, block.Hash, inner.LastBlockHash())
	assert.Equal(t, int64(42), inner.LastBlockTime())
}
