package runtime

import (
	"github.com/fortiblox/X1-Nimbus/internal/types"
)

// BlockInfo describes the block a transaction executes in. It is supplied
// by the block producer; the runtime never reads a clock.
type BlockInfo struct {
	// Height is the block height.
	Height uint64 `json:"height"`

	// Hash is the hash of the previous block.
	Hash types.Bytes `json:"hash"`

	// Time is the previous block's timestamp in milliseconds since the
	// Unix epoch.
	Time int64 `json:"time"`
}

// ExecutionContext is the read-only identity of one call frame.
type ExecutionContext struct {
	sender  types.Address
	program types.Address
	callers []types.Address
	block   BlockInfo
}

// NewExecutionContext creates the context of a root frame.
func NewExecutionContext(sender, program types.Address, block BlockInfo) ExecutionContext {
	return ExecutionContext{sender: sender, program: program, block: block}
}

// enter returns the context of a frame invoked from c.
func (c ExecutionContext) enter(target types.Address) ExecutionContext {
	callers := make([]types.Address, len(c.callers), len(c.callers)+1)
	copy(callers, c.callers)
	return ExecutionContext{
		sender:  c.sender,
		program: target,
		callers: append(callers, c.program),
		block:   c.block,
	}
}

// Sender returns the address that signed the transaction. It is the same
// in every frame of the call chain.
func (c ExecutionContext) Sender() types.Address { return c.sender }

// Program returns the address of the executing program.
func (c ExecutionContext) Program() types.Address { return c.program }

// Callers returns the programs that invoked this frame, outermost first.
// It is empty in the root frame.
func (c ExecutionContext) Callers() []types.Address {
	out := make([]types.Address, len(c.callers))
	copy(out, c.callers)
	return out
}

// Caller returns the immediate calling program, if any.
func (c ExecutionContext) Caller() (types.Address, bool) {
	if len(c.callers) == 0 {
		return types.Address{}, false
	}
	return c.callers[len(c.callers)-1], true
}

// Depth returns the frame's position in the call chain; the root is 0.
func (c ExecutionContext) Depth() int { return len(c.callers) }

// Height returns the current block height.
func (c ExecutionContext) Height() uint64 { return c.block.Height }

// LastBlockHash returns the hash of the previous block.
func (c ExecutionContext) LastBlockHash() types.Bytes { return c.block.Hash }

// LastBlockTime returns the previous block's time in milliseconds.
func (c ExecutionContext) LastBlockTime() int64 { return c.block.Time }
