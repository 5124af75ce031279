// Package watts implements resource metering for program execution.
//
// Every host primitive charges a deterministic number of watts before it
// runs. The charge depends only on the operation and the sizes of its inputs,
// so every node spends exactly the same amount for the same transaction.
package watts

import (
	"sync/atomic"

	"github.com/fortiblox/X1-Nimbus/pkg/failure"
)

// Budget limits.
const (
	LimitDefault = uint64(200_000)   // Default watts limit per transaction
	LimitMax     = uint64(1_400_000) // Hard ceiling per transaction
)

// Meter tracks watts consumption for one transaction.
type Meter struct {
	remaining uint64
	consumed  uint64
	limit     uint64
	disabled  bool
}

// NewMeter creates a meter with the given limit, capped at LimitMax.
func NewMeter(limit uint64) *Meter {
	if limit > LimitMax {
		limit = LimitMax
	}
	return &Meter{
		remaining: limit,
		limit:     limit,
	}
}

// NewMeterDisabled creates a meter that never runs out (for testing and
// collaborator bookkeeping such as genesis).
func NewMeterDisabled() *Meter {
	return &Meter{
		remaining: LimitMax,
		limit:     LimitMax,
		disabled:  true,
	}
}

// Consume charges cost watts. When fewer remain, the meter is drained and an
// OutOfResources signal is returned.
func (m *Meter) Consume(cost uint64) error {
	if m.disabled {
		return nil
	}

	for {
		remaining := atomic.LoadUint64(&m.remaining)
		if remaining < cost {
			if atomic.CompareAndSwapUint64(&m.remaining, remaining, 0) {
				atomic.AddUint64(&m.consumed, remaining)
				return failure.OutOfResources("need %d watts, %d remaining of %d", cost, remaining, m.limit)
			}
			continue
		}
		if atomic.CompareAndSwapUint64(&m.remaining, remaining, remaining-cost) {
			atomic.AddUint64(&m.consumed, cost)
			return nil
		}
	}
}

// Remaining returns the unspent watts.
func (m *Meter) Remaining() uint64 {
	return atomic.LoadUint64(&m.remaining)
}

// Consumed returns the watts spent so far.
func (m *Meter) Consumed() uint64 {
	return atomic.LoadUint64(&m.consumed)
}

// Limit returns the budget.
func (m *Meter) Limit() uint64 {
	return m.limit
}

// IsExhausted returns true when nothing remains.
func (m *Meter) IsExhausted() bool {
	return atomic.LoadUint64(&m.remaining) == 0
}

// Report summarizes a meter for a receipt.
type Report struct {
	Spent  uint64
	Refund uint64
	Total  uint64
}

// Report returns spent, refunded and total watts. Unspent watts are
// refunded.
func (m *Meter) Report() Report {
	if m.disabled {
		return Report{Spent: m.Consumed(), Total: m.Consumed()}
	}
	return Report{
		Spent:  m.Consumed(),
		Refund: m.Remaining(),
		Total:  m.limit,
	}
}
