package receipts

import (
	"github.com/fortiblox/X1-Nimbus/pkg/abi"
	"github.com/fortiblox/X1-Nimbus/pkg/runtime"
	"github.com/fortiblox/X1-Nimbus/pkg/state"
)

// Record is the stored form of a receipt. Addresses, hashes and keys are
// uppercase hex and values use the tagged text encoding, so a record can be
// served to clients as is.
type Record struct {
	TxID    string `json:"txId"`
	Height  uint64 `json:"height"`
	Seq     uint64 `json:"seq"`
	Sender  string `json:"sender"`
	Program string `json:"program"`
	Method  string `json:"method"`
	Success bool   `json:"success"`

	// ErrorCode is the failure kind name; empty on success.
	ErrorCode string `json:"errorCode,omitempty"`
	Error     string `json:"error,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Depth     int    `json:"depth,omitempty"`

	Result []string      `json:"result"`
	Events []EventRecord `json:"events"`

	SpentWatts  uint64 `json:"spentWatts"`
	RefundWatts uint64 `json:"refundWatts"`
	TotalWatts  uint64 `json:"totalWatts"`

	Reads  []string `json:"reads,omitempty"`
	Writes []string `json:"writes,omitempty"`
}

// EventRecord is the stored form of an event.
type EventRecord struct {
	Program string `json:"program"`
	Name    string `json:"name"`
	Payload string `json:"payload"`
}

// FromReceipt converts a runtime receipt into a record.
func FromReceipt(r *runtime.Receipt) *Record {
	rec := &Record{
		TxID:        r.TxID.Hex(),
		Height:      r.Height,
		Seq:         r.Seq,
		Sender:      r.Sender.Hex(),
		Program:     r.Program.Hex(),
		Method:      r.Method,
		Success:     r.Success,
		Result:      abi.FormatAll(r.Result),
		Events:      make([]EventRecord, 0, len(r.Events)),
		SpentWatts:  r.Watts.Spent,
		RefundWatts: r.Watts.Refund,
		TotalWatts:  r.Watts.Total,
		Reads:       state.HexKeys(r.RWSet.Reads),
		Writes:      state.HexKeys(r.RWSet.Writes),
	}
	if r.Failure != nil {
		rec.ErrorCode = r.Failure.Kind.String()
		rec.Error = r.Failure.Message
		rec.Subject = r.Failure.Subject
		rec.Depth = r.Failure.Depth
	}
	for _, e := range r.Events {
		rec.Events = append(rec.Events, EventRecord{
			Program: e.Program.Hex(),
			Name:    e.Name,
			Payload: abi.Format(e.Payload),
		})
	}
	return rec
}
