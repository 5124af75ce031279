package runtime

import (
	"github.com/fortiblox/X1-Nimbus/internal/types"
	"github.com/fortiblox/X1-Nimbus/pkg/abi"
	"github.com/fortiblox/X1-Nimbus/pkg/crypto"
	"github.com/fortiblox/X1-Nimbus/pkg/events"
	"github.com/fortiblox/X1-Nimbus/pkg/failure"
	"github.com/fortiblox/X1-Nimbus/pkg/storage"
	"github.com/holiman/uint256"
)

// Host is the surface a running program sees. Each call frame gets its own
// Host; everything it touches is bound to that frame's program and to the
// enclosing transaction.
//
// Every method that returns an error returns a *failure.Signal. Once any
// signal has been raised the transaction is failed: later calls return the
// same signal and nothing the transaction did survives.
type Host interface {
	// Context returns the frame's execution context.
	Context() ExecutionContext

	// Storage returns the executing program's storage.
	Storage() *storage.Store

	// BalanceOf returns the native balance of addr.
	BalanceOf(addr types.Address) (*uint256.Int, error)

	// Transfer moves amount from the transaction sender to to.
	Transfer(to types.Address, amount int64) error

	// TransferFromProgram moves amount from the executing program to to.
	TransferFromProgram(to types.Address, amount int64) error

	// Emit appends an event to the transaction's log.
	Emit(name string, payload abi.Value) error

	// Hash digests data with the configured algorithm.
	Hash(data types.Bytes) (types.Bytes, error)

	// VerifySignature checks an Ed25519 signature.
	VerifySignature(pub, msg, sig types.Bytes) (bool, error)

	// Invoke calls method on the program deployed at target and returns
	// its result.
	Invoke(target types.Address, method string, args ...abi.Value) (abi.Value, error)

	// Raise fails the transaction with a program-defined message.
	Raise(message string) error
}

// InvokeAs invokes a method and decodes its result with codec. A result the
// codec rejects fails the transaction.
func InvokeAs[T any](h Host, codec abi.Codec[T], target types.Address, method string, args ...abi.Value) (T, error) {
	var zero T
	v, err := h.Invoke(target, method, args...)
	if err != nil {
		return zero, err
	}
	out, err := codec.FromValue(v)
	if err != nil {
		return zero, h.Raise(err.Error())
	}
	return out, nil
}

// frameHost is the Host of one frame.
type frameHost struct {
	x *execution
	f *frame
}

var _ Host = (*frameHost)(nil)

func (h *frameHost) Context() ExecutionContext {
	// A metering failure here is latched and surfaces at the next host call
	// or when the frame returns.
	_ = h.x.charge(h.x.cfg.Schedule.Context)
	return h.f.ctx
}

func (h *frameHost) Storage() *storage.Store {
	return h.f.store
}

func (h *frameHost) BalanceOf(addr types.Address) (*uint256.Int, error) {
	if err := h.x.txn.Err(); err != nil {
		return nil, err
	}
	return h.x.ledger.BalanceOf(addr)
}

func (h *frameHost) Transfer(to types.Address, amount int64) error {
	if err := h.x.txn.Err(); err != nil {
		return err
	}
	return h.x.ledger.Transfer(h.f.ctx.Sender(), to, amount)
}

func (h *frameHost) TransferFromProgram(to types.Address, amount int64) error {
	if err := h.x.txn.Err(); err != nil {
		return err
	}
	return h.x.ledger.Transfer(h.f.ctx.Program(), to, amount)
}

func (h *frameHost) Emit(name string, payload abi.Value) error {
	if err := h.x.txn.Err(); err != nil {
		return err
	}
	e := events.Event{Program: h.f.ctx.Program(), Name: name, Payload: payload}
	if err := h.x.charge(h.x.cfg.Schedule.EventCost(e.Size())); err != nil {
		return err
	}
	h.x.log.Append(e)
	return nil
}

func (h *frameHost) Hash(data types.Bytes) (types.Bytes, error) {
	if err := h.x.charge(h.x.cfg.Schedule.HashCost(data.Len())); err != nil {
		return types.Empty, err
	}
	return crypto.Hash(h.x.cfg.HashAlgorithm, data), nil
}

func (h *frameHost) VerifySignature(pub, msg, sig types.Bytes) (bool, error) {
	if err := h.x.charge(h.x.cfg.Schedule.SignatureVerify); err != nil {
		return false, err
	}
	return crypto.VerifyEd25519(pub, msg, sig), nil
}

func (h *frameHost) Invoke(target types.Address, method string, args ...abi.Value) (abi.Value, error) {
	if err := h.x.charge(h.x.cfg.Schedule.Invoke); err != nil {
		return abi.Value{}, err
	}
	return h.x.call(h.f, target, method, args)
}

func (h *frameHost) Raise(message string) error {
	return h.x.txn.Fail(failure.Raise(message))
}
