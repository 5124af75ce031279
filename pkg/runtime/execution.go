package runtime

import (
	"fmt"

	"github.com/fortiblox/X1-Nimbus/internal/types"
	"github.com/fortiblox/X1-Nimbus/pkg/abi"
	"github.com/fortiblox/X1-Nimbus/pkg/events"
	"github.com/fortiblox/X1-Nimbus/pkg/failure"
	"github.com/fortiblox/X1-Nimbus/pkg/ledger"
	"github.com/fortiblox/X1-Nimbus/pkg/state"
	"github.com/fortiblox/X1-Nimbus/pkg/storage"
	"github.com/fortiblox/X1-Nimbus/pkg/watts"
)

// execution is the state of one transaction while it runs: the buffered
// world view, the meter, the event log and the call stack.
type execution struct {
	cfg      *Config
	registry *Registry
	txn      *state.Txn
	meter    *watts.Meter
	log      *events.Log
	ledger   *ledger.Ledger
	stack    *callStack
	sender   types.Address
	block    BlockInfo

	// failDepth is the depth of the innermost frame that observed the
	// failure, -1 while the transaction is healthy.
	failDepth int
}

func newExecution(cfg *Config, registry *Registry, txn *state.Txn, meter *watts.Meter, sender types.Address, block BlockInfo) *execution {
	return &execution{
		cfg:       cfg,
		registry:  registry,
		txn:       txn,
		meter:     meter,
		log:       events.NewLog(),
		ledger:    ledger.New(txn, meter, cfg.Schedule),
		stack:     newCallStack(cfg.MaxCallDepth),
		sender:    sender,
		block:     block,
		failDepth: -1,
	}
}

// charge consumes watts, latching exhaustion on the transaction.
func (x *execution) charge(cost uint64) error {
	if err := x.txn.Err(); err != nil {
		return err
	}
	if err := x.meter.Consume(cost); err != nil {
		return x.txn.Fail(err)
	}
	return nil
}

// fail latches err, recording depth if this is the first frame to see a
// failure.
func (x *execution) fail(err error, depth int) error {
	if x.failDepth < 0 {
		x.failDepth = depth
	}
	return x.txn.Fail(failure.From(err))
}

// call runs method on target in a new frame. caller is nil for the root
// frame.
func (x *execution) call(caller *frame, target types.Address, method string, args []abi.Value) (abi.Value, error) {
	if err := x.txn.Err(); err != nil {
		return abi.Value{}, err
	}

	var ctx ExecutionContext
	if caller == nil {
		ctx = NewExecutionContext(x.sender, target, x.block)
	} else {
		ctx = caller.ctx.enter(target)
	}
	f := &frame{
		ctx:   ctx,
		store: storage.New(x.txn, x.meter, x.cfg.Schedule, target),
	}
	if err := x.stack.push(f); err != nil {
		return abi.Value{}, x.fail(err, ctx.Depth())
	}
	defer x.stack.pop()

	prog, err := x.resolve(target)
	if err != nil {
		return abi.Value{}, x.fail(err, ctx.Depth())
	}

	v, err := x.run(prog, f, method, abi.Args(args))
	if err == nil {
		// A program may swallow a failure and return normally; the
		// transaction is failed all the same.
		err = x.txn.Err()
	}
	if err != nil {
		return abi.Value{}, x.fail(err, ctx.Depth())
	}
	return v, nil
}

// run executes the method, turning a panic into a raised failure.
func (x *execution) run(prog Program, f *frame, method string, args abi.Args) (v abi.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = abi.Value{}, failure.Raise(fmt.Sprintf("panic: %v", r))
		}
	}()
	return prog.Call(&frameHost{x: x, f: f}, method, args)
}

// resolve finds the code deployed at target.
func (x *execution) resolve(target types.Address) (Program, error) {
	data, ok, err := x.txn.Get(state.ProgramKey(target))
	if err != nil {
		return nil, err
	}
	if !ok {
		s := failure.New(failure.KindNoSuchProgram, "no program deployed at %s", target.Hex())
		s.Subject = target.Hex()
		return nil, s
	}
	prog, ok := x.registry.Lookup(string(data))
	if !ok {
		return nil, failure.Internal(fmt.Errorf("%w: %q deployed at %s", ErrUnknownKind, string(data), target.Hex()))
	}
	return prog, nil
}

// signal returns the transaction's failure as reported in a receipt, or nil.
func (x *execution) signal() *failure.Signal {
	err := x.txn.Err()
	if err == nil {
		return nil
	}
	s := *failure.From(err)
	if x.failDepth > 0 {
		s.Depth = x.failDepth
	}
	return &s
}
