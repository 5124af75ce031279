// Package events implements the per-transaction event log.
//
// Events are appended in emission order and never removed or reordered. The
// log lives for exactly one transaction: the executor drains it into the
// receipt when the transaction commits and drops it when it fails.
package events

import (
	"github.com/fortiblox/X1-Nimbus/internal/types"
	"github.com/fortiblox/X1-Nimbus/pkg/abi"
)

// Event is one emitted notification.
type Event struct {
	// Program is the address of the emitting program.
	Program types.Address

	// Name is the program-chosen event name.
	Name string

	// Payload is the event data.
	Payload abi.Value
}

// Size returns the number of bytes the event occupies when encoded; it is
// what emission is metered on.
func (e Event) Size() int {
	return len(e.Name) + len(abi.Marshal(e.Payload))
}

// Log is an append-only list of events.
type Log struct {
	events []Event
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{}
}

// Append adds an event at the end of the log.
func (l *Log) Append(e Event) {
	l.events = append(l.events, e)
}

// Len returns the number of events.
func (l *Log) Len() int {
	return len(l.events)
}

// Events returns a copy of the events in emission order.
func (l *Log) Events() []Event {
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Drain returns the events and empties the log.
func (l *Log) Drain() []Event {
	out := l.events
	l.events = nil
	return out
}

// Discard drops every event.
func (l *Log) Discard() {
	l.events = nil
}
