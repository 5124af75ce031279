// Package runtime implements the host side of program execution.
//
// A Runtime executes transactions against a state.World. Each transaction
// gets:
//   - a buffered view of the world (state.Txn) that is committed only if the
//     whole call chain succeeds
//   - a watts meter charged by every host primitive
//   - an event log drained into the receipt on success
//   - an explicit, bounded call stack of frames, each with its own
//     ExecutionContext and program-bound storage
//
// Any failure.Signal raised anywhere in the chain fails the transaction: the
// buffered writes and events are dropped and the receipt carries the signal.
package runtime

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fortiblox/X1-Nimbus/internal/types"
	"github.com/fortiblox/X1-Nimbus/pkg/abi"
	"github.com/fortiblox/X1-Nimbus/pkg/failure"
	"github.com/fortiblox/X1-Nimbus/pkg/ledger"
	"github.com/fortiblox/X1-Nimbus/pkg/state"
	"github.com/fortiblox/X1-Nimbus/pkg/watts"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
)

var (
	// ErrAlreadyDeployed is returned when deploying over an existing program.
	ErrAlreadyDeployed = errors.New("program already deployed")

	// ErrVoidAddress is returned when deploying at the void address.
	ErrVoidAddress = errors.New("void address")
)

// Runtime executes transactions against a world state.
type Runtime struct {
	world    *state.World
	registry *Registry
	cfg      Config
	logger   zerolog.Logger

	// mu serializes committing transactions; simulations share it.
	mu sync.RWMutex

	// seq counts executed transactions. Guarded by mu.
	seq uint64

	blockMu sync.RWMutex
	block   BlockInfo

	sink ReceiptSink
}

// New creates a runtime. Zero config fields fall back to DefaultConfig.
func New(world *state.World, registry *Registry, cfg Config) *Runtime {
	def := DefaultConfig()
	if cfg.MaxCallDepth <= 0 {
		cfg.MaxCallDepth = def.MaxCallDepth
	}
	if cfg.DefaultWattsLimit == 0 {
		cfg.DefaultWattsLimit = def.DefaultWattsLimit
	}
	if cfg.Schedule == (watts.Schedule{}) {
		cfg.Schedule = def.Schedule
	}
	return &Runtime{
		world:    world,
		registry: registry,
		cfg:      cfg,
		logger:   cfg.Logger.With().Str("component", "runtime").Logger(),
	}
}

// SetReceiptSink registers where receipts of executed transactions go.
func (r *Runtime) SetReceiptSink(sink ReceiptSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = sink
}

// SetSequence sets the number of transactions already executed, so that
// ids stay unique when a runtime resumes over existing receipts.
func (r *Runtime) SetSequence(seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq = seq
}

// Sequence returns the number of transactions executed so far.
func (r *Runtime) Sequence() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.seq
}

// SetBlock sets the block subsequent transactions execute in.
func (r *Runtime) SetBlock(b BlockInfo) {
	r.blockMu.Lock()
	defer r.blockMu.Unlock()
	r.block = b
}

// Block returns the current block.
func (r *Runtime) Block() BlockInfo {
	r.blockMu.RLock()
	defer r.blockMu.RUnlock()
	return r.block
}

// World returns the world state.
func (r *Runtime) World() *state.World {
	return r.world
}

// Registry returns the program registry.
func (r *Runtime) Registry() *Registry {
	return r.registry
}

// Deploy records that the program at addr runs code of the given kind.
func (r *Runtime) Deploy(addr types.Address, kind string) error {
	if addr.IsVoid() {
		return ErrVoidAddress
	}
	if _, ok := r.registry.Lookup(kind); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	txn := r.world.Begin()
	_, exists, err := txn.Get(state.ProgramKey(addr))
	if err != nil {
		txn.Discard()
		return fmt.Errorf("read deployment: %w", err)
	}
	if exists {
		txn.Discard()
		return fmt.Errorf("%w: %s", ErrAlreadyDeployed, addr.Hex())
	}
	if err := txn.Set(state.ProgramKey(addr), []byte(kind)); err != nil {
		txn.Discard()
		return err
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("commit deployment: %w", err)
	}

	r.logger.Info().Str("address", addr.Hex()).Str("kind", kind).Msg("program deployed")
	return nil
}

// Deployment returns the kind of the program deployed at addr.
func (r *Runtime) Deployment(addr types.Address) (string, bool, error) {
	data, ok, err := r.world.Get(state.ProgramKey(addr))
	if err != nil || !ok {
		return "", false, err
	}
	return string(data), true, nil
}

// Genesis credits initial balances in one committed transaction.
func (r *Runtime) Genesis(alloc map[types.Address]*uint256.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	txn := r.world.Begin()
	for addr, amount := range alloc {
		if err := ledger.Mint(txn, addr, amount); err != nil {
			txn.Discard()
			return fmt.Errorf("mint %s: %w", addr.Hex(), err)
		}
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("commit genesis: %w", err)
	}

	r.logger.Info().Int("accounts", len(alloc)).Msg("genesis applied")
	return nil
}

// BalanceOf returns the committed balance of addr.
func (r *Runtime) BalanceOf(addr types.Address) (*uint256.Int, error) {
	data, ok, err := r.world.Get(state.BalanceKey(addr))
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	return ledger.Decode(data)
}

// Execute runs a transaction and commits it if it succeeds. Every call
// takes the next sequence number, so executing the same Tx twice yields two
// receipts with distinct ids.
//
// The returned receipt describes the outcome, failed transactions included.
// A non-nil error is returned only for host faults (failure.KindInternal),
// for which no deterministic receipt exists.
func (r *Runtime) Execute(tx *Tx) (*Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	rcpt, err := r.run(tx, r.seq, false)
	if r.sink != nil && rcpt != nil {
		if serr := r.sink.PutReceipt(rcpt); serr != nil {
			r.logger.Error().Err(serr).Str("tx", rcpt.TxID.Hex()).Msg("failed to store receipt")
		}
	}
	return rcpt, err
}

// Simulate runs a transaction without committing it. The receipt carries
// the id the transaction would get if it were executed next.
func (r *Runtime) Simulate(tx *Tx) (*Receipt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.run(tx, r.seq+1, true)
}

func (r *Runtime) run(tx *Tx, seq uint64, dryRun bool) (*Receipt, error) {
	block := r.Block()
	limit := tx.WattsLimit
	if limit == 0 {
		limit = r.cfg.DefaultWattsLimit
	}

	txn := r.world.Begin()
	meter := watts.NewMeter(limit)
	x := newExecution(&r.cfg, r.registry, txn, meter, tx.Sender, block)

	rcpt := &Receipt{
		TxID:    tx.ID(block.Height, seq),
		Height:  block.Height,
		Seq:     seq,
		Sender:  tx.Sender,
		Program: tx.Program,
		Method:  tx.Method,
		DryRun:  dryRun,
	}

	if tx.Program.IsVoid() {
		x.fail(failure.Validation("transaction has no target program"), 0)
	} else if err := x.charge(r.cfg.Schedule.Transaction); err == nil {
		v, err := x.call(nil, tx.Program, tx.Method, tx.Args)
		if err == nil {
			rcpt.Result = []abi.Value{v}
		}
	}

	rcpt.Watts = meter.Report()
	rcpt.RWSet = txn.RWSet()

	if sig := x.signal(); sig != nil {
		txn.Discard()
		x.log.Discard()
		rcpt.Result = nil
		rcpt.Failure = sig

		ev := r.logger.Debug()
		if sig.Kind == failure.KindInternal {
			ev = r.logger.Error()
		}
		ev.Str("tx", rcpt.TxID.Hex()).
			Str("program", tx.Program.Hex()).
			Str("method", tx.Method).
			Str("kind", sig.Kind.String()).
			Str("message", sig.Message).
			Int("depth", sig.Depth).
			Msg("transaction failed")

		if sig.Kind == failure.KindInternal {
			return rcpt, fmt.Errorf("execute %s: %w", rcpt.TxID.Hex(), sig)
		}
		return rcpt, nil
	}

	rcpt.Success = true
	rcpt.Events = x.log.Drain()

	if dryRun {
		txn.Discard()
		return rcpt, nil
	}
	if err := txn.Commit(); err != nil {
		rcpt.Success = false
		rcpt.Result = nil
		rcpt.Events = nil
		rcpt.Failure = failure.Internal(err)
		return rcpt, fmt.Errorf("commit %s: %w", rcpt.TxID.Hex(), err)
	}

	r.logger.Debug().
		Str("tx", rcpt.TxID.Hex()).
		Str("program", tx.Program.Hex()).
		Str("method", tx.Method).
		Uint64("watts", rcpt.Watts.Spent).
		Int("events", len(rcpt.Events)).
		Msg("transaction committed")
	return rcpt, nil
}
