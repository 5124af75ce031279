// Package token implements a fungible token program.
//
// The token keeps balances and allowances in program storage. The holder
// acting in a call is the calling program when invoked from another
// program, otherwise the transaction sender, so programs can hold and move
// tokens of their own.
//
// Methods:
//   - Init(supply int64): mints supply to the holder, once
//   - BalanceOf(owner bytes) int64
//   - Allowance(owner, spender bytes) int64
//   - Transfer(to bytes, amount int64)
//   - Approve(spender bytes, amount int64)
//   - TransferFrom(from, to bytes, amount int64)
//   - TotalSupply() int64
package token

import (
	"github.com/fortiblox/X1-Nimbus/internal/types"
	"github.com/fortiblox/X1-Nimbus/pkg/abi"
	"github.com/fortiblox/X1-Nimbus/pkg/runtime"
	"github.com/fortiblox/X1-Nimbus/pkg/storage"
)

// Kind is the registry name of the token program.
const Kind = "token"

// Program returns the token program.
func Program() runtime.Program {
	return runtime.Methods{
		"Init":         initialize,
		"BalanceOf":    balanceOf,
		"Allowance":    allowance,
		"Transfer":     transfer,
		"Approve":      approve,
		"TransferFrom": transferFrom,
		"TotalSupply":  totalSupply,
	}
}

type ledger struct {
	meta       *storage.Mapping[string, int64]
	balances   *storage.Mapping[types.Address, int64]
	allowances *storage.Mapping[types.Bytes, int64]
}

func open(h runtime.Host) *ledger {
	s := h.Storage()
	return &ledger{
		meta:       storage.NewMapping(s, "meta", abi.StringCodec, abi.Int64Codec),
		balances:   storage.NewMapping(s, "balances", abi.AddressCodec, abi.Int64Codec),
		allowances: storage.NewMapping(s, "allowances", abi.BytesCodec, abi.Int64Codec),
	}
}

func allowanceKey(owner, spender types.Address) types.Bytes {
	return abi.Pair(owner.Bytes(), spender.Bytes())
}

// holder returns the account acting in this call.
func holder(h runtime.Host) types.Address {
	ctx := h.Context()
	if caller, ok := ctx.Caller(); ok {
		return caller
	}
	return ctx.Sender()
}

func initialize(h runtime.Host, args abi.Args) (abi.Value, error) {
	if err := args.Expect(1); err != nil {
		return abi.Value{}, err
	}
	supply, err := args.Int64(0)
	if err != nil {
		return abi.Value{}, err
	}
	if supply < 0 {
		return abi.Value{}, h.Raise("supply must not be negative")
	}

	l := open(h)
	done, err := l.meta.ContainsKey("supply")
	if err != nil {
		return abi.Value{}, err
	}
	if done {
		return abi.Value{}, h.Raise("token already initialized")
	}

	owner := holder(h)
	if err := l.meta.Put("supply", supply); err != nil {
		return abi.Value{}, err
	}
	if err := l.balances.Put(owner, supply); err != nil {
		return abi.Value{}, err
	}
	return abi.Null(), h.Emit("Init", abi.Int64(supply))
}

func balanceOf(h runtime.Host, args abi.Args) (abi.Value, error) {
	if err := args.Expect(1); err != nil {
		return abi.Value{}, err
	}
	owner, err := args.Address(0)
	if err != nil {
		return abi.Value{}, err
	}
	bal, err := open(h).balances.GetOrDefault(owner, 0)
	if err != nil {
		return abi.Value{}, err
	}
	return abi.Int64(bal), nil
}

func allowance(h runtime.Host, args abi.Args) (abi.Value, error) {
	if err := args.Expect(2); err != nil {
		return abi.Value{}, err
	}
	owner, err := args.Address(0)
	if err != nil {
		return abi.Value{}, err
	}
	spender, err := args.Address(1)
	if err != nil {
		return abi.Value{}, err
	}
	v, err := open(h).allowances.GetOrDefault(allowanceKey(owner, spender), 0)
	if err != nil {
		return abi.Value{}, err
	}
	return abi.Int64(v), nil
}

func transfer(h runtime.Host, args abi.Args) (abi.Value, error) {
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
	if err := open(h).move(h, holder(h), to, amount); err != nil {
		return abi.Value{}, err
	}
	return abi.Null(), nil
}

func approve(h runtime.Host, args abi.Args) (abi.Value, error) {
	if err := args.Expect(2); err != nil {
		return abi.Value{}, err
	}
	spender, err := args.Address(0)
	if err != nil {
		return abi.Value{}, err
	}
	amount, err := args.Int64(1)
	if err != nil {
		return abi.Value{}, err
	}
	if amount < 0 {
		return abi.Value{}, h.Raise("allowance must not be negative")
	}
	owner := holder(h)
	if err := open(h).allowances.Put(allowanceKey(owner, spender), amount); err != nil {
		return abi.Value{}, err
	}
	payload := abi.BytesOf(owner.Bytes().Concat(spender.Bytes()))
	return abi.Null(), h.Emit("Approval", payload)
}

func transferFrom(h runtime.Host, args abi.Args) (abi.Value, error) {
	if err := args.Expect(3); err != nil {
		return abi.Value{}, err
	}
	from, err := args.Address(0)
	if err != nil {
		return abi.Value{}, err
	}
	to, err := args.Address(1)
	if err != nil {
		return abi.Value{}, err
	}
	amount, err := args.Int64(2)
	if err != nil {
		return abi.Value{}, err
	}

	l := open(h)
	key := allowanceKey(from, holder(h))
	allowed, err := l.allowances.GetOrDefault(key, 0)
	if err != nil {
		return abi.Value{}, err
	}
	if allowed < amount {
		return abi.Value{}, h.Raise("allowance exceeded")
	}
	if err := l.move(h, from, to, amount); err != nil {
		return abi.Value{}, err
	}
	if err := l.allowances.Put(key, allowed-amount); err != nil {
		return abi.Value{}, err
	}
	return abi.Null(), nil
}

func totalSupply(h runtime.Host, args abi.Args) (abi.Value, error) {
	supply, err := open(h).meta.GetOrDefault("supply", 0)
	if err != nil {
		return abi.Value{}, err
	}
	return abi.Int64(supply), nil
}

func (l *ledger) move(h runtime.Host, from, to types.Address, amount int64) error {
	if amount <= 0 {
		return h.Raise("amount must be positive")
	}
	fromBal, err := l.balances.GetOrDefault(from, 0)
	if err != nil {
		return err
	}
	if fromBal < amount {
		return h.Raise("insufficient token balance")
	}
	if from == to {
		return nil
	}
	toBal, err := l.balances.GetOrDefault(to, 0)
	if err != nil {
		return err
	}
	if err := l.balances.Put(from, fromBal-amount); err != nil {
		return err
	}
	if err := l.balances.Put(to, toBal+amount); err != nil {
		return err
	}
	payload := abi.BytesOf(from.Bytes().Concat(to.Bytes()))
	return h.Emit("Transfer", payload)
}
