package runtime

import (
	"encoding/binary"

	"github.com/fortiblox/X1-Nimbus/internal/types"
	"github.com/fortiblox/X1-Nimbus/pkg/abi"
	"github.com/fortiblox/X1-Nimbus/pkg/events"
	"github.com/fortiblox/X1-Nimbus/pkg/failure"
	"github.com/fortiblox/X1-Nimbus/pkg/state"
	"github.com/fortiblox/X1-Nimbus/pkg/watts"
	"github.com/zeebo/blake3"
)

// Tx is a request to call one program method.
type Tx struct {
	// Sender is the address the transaction is executed on behalf of.
	Sender types.Address

	// Program is the target program.
	Program types.Address

	// Method is the method name.
	Method string

	// Args are the method arguments.
	Args []abi.Value

	// WattsLimit is the metering budget; zero selects the runtime default.
	WattsLimit uint64

	// Nonce distinguishes otherwise identical transactions.
	Nonce uint64
}

// ID returns the id the transaction gets when it is the seq-th transaction
// executed by a runtime, in the block at height: the BLAKE3 hash of the
// height, the sequence number and every field of the transaction.
func (tx *Tx) ID(height, seq uint64) types.Hash {
	h := blake3.New()
	var buf [binary.MaxVarintLen64]byte

	putUvarint := func(v uint64) {
		n := binary.PutUvarint(buf[:], v)
		h.Write(buf[:n])
	}

	putUvarint(height)
	putUvarint(seq)
	h.Write(tx.Sender[:])
	h.Write(tx.Program[:])
	putUvarint(uint64(len(tx.Method)))
	h.Write([]byte(tx.Method))
	putUvarint(uint64(len(tx.Args)))
	for _, a := range tx.Args {
		b := abi.Marshal(a)
		putUvarint(uint64(len(b)))
		h.Write(b)
	}
	putUvarint(tx.WattsLimit)
	putUvarint(tx.Nonce)

	var id types.Hash
	copy(id[:], h.Sum(nil))
	return id
}

// Receipt is the outcome of one transaction.
type Receipt struct {
	TxID   types.Hash
	Height uint64

	// Seq is the runtime sequence number the transaction executed under.
	Seq uint64

	Sender  types.Address
	Program types.Address
	Method  string

	// Success is true when the transaction committed (or, for a dry run,
	// would have).
	Success bool

	// Failure is set when Success is false.
	Failure *failure.Signal

	// Result holds the method's return value on success and is empty on
	// failure.
	Result []abi.Value

	// Events are the emitted events, in order. Empty on failure.
	Events []events.Event

	// Watts is the metering summary.
	Watts watts.Report

	// RWSet lists the state keys the transaction read and wrote.
	RWSet state.RWSet

	// DryRun marks simulated transactions that were never committed.
	DryRun bool
}

// ReceiptSink receives the receipt of every executed transaction.
type ReceiptSink interface {
	PutReceipt(r *Receipt) error
}
