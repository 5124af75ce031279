// Package vault implements a native-currency escrow program.
//
// Depositors move coins from their own balance into the vault's account and
// can withdraw up to what they deposited. A vault may be configured with a
// reward token; every deposit then pays the depositor the same amount of
// that token out of the vault's token holdings, through a cross-call. If the
// vault cannot pay the reward, the deposit fails with it.
package vault

import (
	"math"

	"github.com/fortiblox/X1-Nimbus/internal/types"
	"github.com/fortiblox/X1-Nimbus/pkg/abi"
	"github.com/fortiblox/X1-Nimbus/pkg/runtime"
	"github.com/fortiblox/X1-Nimbus/pkg/storage"
)

// Kind is the registry name of the vault program.
const Kind = "vault"

// Program returns the vault program.
func Program() runtime.Program {
	return runtime.Methods{
		"SetRewardToken": setRewardToken,
		"Deposit":        deposit,
		"Withdraw":       withdraw,
		"DepositOf":      depositOf,
		"Balance":        balance,
	}
}

type vault struct {
	config   *storage.Mapping[string, types.Address]
	deposits *storage.Mapping[types.Address, int64]
}

func open(h runtime.Host) *vault {
	s := h.Storage()
	return &vault{
		config:   storage.NewMapping(s, "config", abi.StringCodec, abi.AddressCodec),
		deposits: storage.NewMapping(s, "deposits", abi.AddressCodec, abi.Int64Codec),
	}
}

// setRewardToken configures the reward token. Only the first caller may set
// it; that caller becomes the admin.
func setRewardToken(h runtime.Host, args abi.Args) (abi.Value, error) {
	if err := args.Expect(1); err != nil {
		return abi.Value{}, err
	}
	tok, err := args.Address(0)
	if err != nil {
		return abi.Value{}, err
	}

	v := open(h)
	sender := h.Context().Sender()
	admin, err := v.config.GetOrDefault("admin", sender)
	if err != nil {
		return abi.Value{}, err
	}
	if admin != sender {
		return abi.Value{}, h.Raise("only the admin may set the reward token")
	}
	if err := v.config.Put("admin", sender); err != nil {
		return abi.Value{}, err
	}
	if err := v.config.Put("token", tok); err != nil {
		return abi.Value{}, err
	}
	return abi.Null(), nil
}

func deposit(h runtime.Host, args abi.Args) (abi.Value, error) {
	if err := args.Expect(1); err != nil {
		return abi.Value{}, err
	}
	amount, err := args.Int64(0)
	if err != nil {
		return abi.Value{}, err
	}
	if amount <= 0 {
		return abi.Value{}, h.Raise("deposit must be positive")
	}

	ctx := h.Context()
	if err := h.Transfer(ctx.Program(), amount); err != nil {
		return abi.Value{}, err
	}

	v := open(h)
	held, err := v.deposits.GetOrDefault(ctx.Sender(), 0)
	if err != nil {
		return abi.Value{}, err
	}
	if amount > math.MaxInt64-held {
		return abi.Value{}, h.Raise("deposit overflows the recorded total")
	}
	if err := v.deposits.Put(ctx.Sender(), held+amount); err != nil {
		return abi.Value{}, err
	}

	rewarded, err := v.config.ContainsKey("token")
	if err != nil {
		return abi.Value{}, err
	}
	if rewarded {
		tok, err := v.config.Get("token")
		if err != nil {
			return abi.Value{}, err
		}
		if _, err := h.Invoke(tok, "Transfer", abi.AddressOf(ctx.Sender()), abi.Int64(amount)); err != nil {
			return abi.Value{}, err
		}
	}

	if err := h.Emit("Deposit", abi.Int64(amount)); err != nil {
		return abi.Value{}, err
	}
	return abi.Int64(held + amount), nil
}

func withdraw(h runtime.Host, args abi.Args) (abi.Value, error) {
	if err := args.Expect(1); err != nil {
		return abi.Value{}, err
	}
	amount, err := args.Int64(0)
	if err != nil {
		return abi.Value{}, err
	}
	if amount <= 0 {
		return abi.Value{}, h.Raise("withdrawal must be positive")
	}

	sender := h.Context().Sender()
	v := open(h)
	held, err := v.deposits.GetOrDefault(sender, 0)
	if err != nil {
		return abi.Value{}, err
	}
	if held < amount {
		return abi.Value{}, h.Raise("withdrawal exceeds deposit")
	}
	if err := v.deposits.Put(sender, held-amount); err != nil {
		return abi.Value{}, err
	}
	if err := h.TransferFromProgram(sender, amount); err != nil {
		return abi.Value{}, err
	}
	if err := h.Emit("Withdraw", abi.Int64(amount)); err != nil {
		return abi.Value{}, err
	}
	return abi.Int64(held - amount), nil
}

func depositOf(h runtime.Host, args abi.Args) (abi.Value, error) {
	if err := args.Expect(1); err != nil {
		return abi.Value{}, err
	}
	owner, err := args.Address(0)
	if err != nil {
		return abi.Value{}, err
	}
	held, err := open(h).deposits.GetOrDefault(owner, 0)
	if err != nil {
		return abi.Value{}, err
	}
	return abi.Int64(held), nil
}

// balance returns the vault's own native balance.
func balance(h runtime.Host, args abi.Args) (abi.Value, error) {
	bal, err := h.BalanceOf(h.Context().Program())
	if err != nil {
		return abi.Value{}, err
	}
	if !bal.IsUint64() || bal.Uint64() > 1<<63-1 {
		return abi.Value{}, h.Raise("balance exceeds int64")
	}
	return abi.Int64(int64(bal.Uint64())), nil
}
