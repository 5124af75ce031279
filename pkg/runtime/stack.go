package runtime

import (
	"github.com/fortiblox/X1-Nimbus/pkg/failure"
	"github.com/fortiblox/X1-Nimbus/pkg/storage"
)

// frame is one activation on the call stack.
type frame struct {
	ctx   ExecutionContext
	store *storage.Store
}

// callStack is the explicit, bounded stack of active frames. Depth is
// enforced here rather than by the Go stack, so every node rejects exactly
// the same call.
type callStack struct {
	frames []*frame
	max    int
}

func newCallStack(max int) *callStack {
	return &callStack{frames: make([]*frame, 0, 8), max: max}
}

// push adds a frame, failing with CallDepthExceeded when the stack is full.
func (s *callStack) push(f *frame) error {
	if len(s.frames) >= s.max {
		return failure.New(failure.KindCallDepthExceeded, "call depth %d exceeds limit %d", len(s.frames)+1, s.max)
	}
	s.frames = append(s.frames, f)
	return nil
}

// pop removes the top frame.
func (s *callStack) pop() {
	s.frames[len(s.frames)-1] = nil
	s.frames = s.frames[:len(s.frames)-1]
}

// depth returns the number of active frames.
func (s *callStack) depth() int {
	return len(s.frames)
}
