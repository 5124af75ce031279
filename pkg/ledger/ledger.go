// Package ledger implements native currency balances.
//
// Balances are non-negative 256-bit integers keyed by address, stored in the
// world state as 32-byte big-endian values. An address that was never
// credited has balance zero. Transfers conserve total supply: the debit and
// the credit are staged in the same transaction buffer and become visible
// together on commit, or not at all.
package ledger

import (
	"errors"
	"fmt"

	"github.com/fortiblox/X1-Nimbus/internal/types"
	"github.com/fortiblox/X1-Nimbus/pkg/failure"
	"github.com/fortiblox/X1-Nimbus/pkg/state"
	"github.com/fortiblox/X1-Nimbus/pkg/watts"
	"github.com/holiman/uint256"
)

var (
	// ErrBalanceOverflow is returned when a credit would exceed 2^256-1.
	ErrBalanceOverflow = errors.New("balance overflow")

	// ErrBadBalance is returned when a stored balance is not 32 bytes.
	ErrBadBalance = errors.New("malformed stored balance")
)

// KV is the transactional view balances are read and written through.
type KV interface {
	Get(key []byte) ([]byte, bool, error)
	Set(key, value []byte) error
	Fail(err error) error
}

// Meter charges watts.
type Meter interface {
	Consume(cost uint64) error
}

var _ KV = (*state.Txn)(nil)

// Ledger reads and moves native balances within one transaction.
type Ledger struct {
	kv    KV
	meter Meter
	costs watts.Schedule
}

// New creates a ledger over a transaction.
func New(kv KV, meter Meter, costs watts.Schedule) *Ledger {
	return &Ledger{kv: kv, meter: meter, costs: costs}
}

// BalanceOf returns the balance of addr; zero for unknown addresses.
func (l *Ledger) BalanceOf(addr types.Address) (*uint256.Int, error) {
	if err := l.meter.Consume(l.costs.BalanceRead); err != nil {
		return nil, l.kv.Fail(err)
	}
	return l.load(addr)
}

// Transfer moves amount from one address to another.
//
// A negative amount is a validation failure. If from holds less than
// amount, an InsufficientFunds failure naming from is returned and no
// balance changes. A self-transfer succeeds without changing anything once
// the funds check passes.
func (l *Ledger) Transfer(from, to types.Address, amount int64) error {
	if amount < 0 {
		return l.kv.Fail(failure.Validation("negative transfer amount %d", amount))
	}
	if err := l.meter.Consume(l.costs.Transfer); err != nil {
		return l.kv.Fail(err)
	}
	return l.move(from, to, uint256.NewInt(uint64(amount)))
}

func (l *Ledger) move(from, to types.Address, amount *uint256.Int) error {
	fromBal, err := l.load(from)
	if err != nil {
		return err
	}
	if fromBal.Lt(amount) {
		return l.kv.Fail(failure.InsufficientFunds(from.Hex(),
			"balance %s is less than %s", fromBal.Dec(), amount.Dec()))
	}
	if from == to {
		return nil
	}

	toBal, err := l.load(to)
	if err != nil {
		return err
	}
	credited, overflow := new(uint256.Int).AddOverflow(toBal, amount)
	if overflow {
		return l.kv.Fail(failure.Internal(fmt.Errorf("%w: credit to %s", ErrBalanceOverflow, to.Hex())))
	}
	debited := new(uint256.Int).Sub(fromBal, amount)

	if err := l.store(from, debited); err != nil {
		return err
	}
	return l.store(to, credited)
}

// Mint credits amount to addr out of thin air. It exists for genesis
// allocation by the block collaborator and is not reachable from programs.
func Mint(kv KV, addr types.Address, amount *uint256.Int) error {
	l := &Ledger{kv: kv, meter: watts.NewMeterDisabled()}
	bal, err := l.load(addr)
	if err != nil {
		return err
	}
	sum, overflow := new(uint256.Int).AddOverflow(bal, amount)
	if overflow {
		return fmt.Errorf("%w: mint to %s", ErrBalanceOverflow, addr.Hex())
	}
	return l.store(addr, sum)
}

func (l *Ledger) load(addr types.Address) (*uint256.Int, error) {
	data, ok, err := l.kv.Get(state.BalanceKey(addr))
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	bal, err := Decode(data)
	if err != nil {
		return nil, l.kv.Fail(failure.Internal(err))
	}
	return bal, nil
}

func (l *Ledger) store(addr types.Address, bal *uint256.Int) error {
	return l.kv.Set(state.BalanceKey(addr), Encode(bal))
}

// Encode returns the stored form of a balance.
func Encode(bal *uint256.Int) []byte {
	b := bal.Bytes32()
	return b[:]
}

// Decode parses the stored form of a balance.
func Decode(data []byte) (*uint256.Int, error) {
	if len(data) != 32 {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadBalance, len(data))
	}
	return new(uint256.Int).SetBytes32(data), nil
}
