package gateway

import (
	"github.com/fortiblox/X1-Nimbus/pkg/receipts"
)

// CallRequest invokes a program method.
type CallRequest struct {
	// Address is the program address, hex or base58.
	Address string `json:"address"`

	// Method is the method name.
	Method string `json:"method"`

	// Args are tagged text values, e.g. "int32.5" or "bytes.0A".
	Args []string `json:"args"`

	// Sender is the calling account, hex or base58. Defaults to the void
	// address.
	Sender string `json:"sender,omitempty"`

	// WattsLimit is the metering budget; zero selects the default.
	WattsLimit uint64 `json:"wattsLimit,omitempty"`

	// Test executes without committing.
	Test bool `json:"test,omitempty"`

	// Nonce distinguishes otherwise identical calls.
	Nonce uint64 `json:"nonce,omitempty"`
}

// CallResponse is the result of a call. Error and ErrorCode are empty on
// success.
type CallResponse struct {
	Error     string   `json:"error"`
	ErrorCode string   `json:"errorCode"`
	Data      CallData `json:"data"`
}

// CallData carries the execution outcome.
type CallData struct {
	TxID       string                 `json:"txId,omitempty"`
	Height     uint64                 `json:"height"`
	FinalState FinalState             `json:"finalState"`
	Events     []receipts.EventRecord `json:"events"`
}

// FinalState is the machine state after the call. Stack holds the method's
// result on success and is empty on failure.
type FinalState struct {
	SpentWatts  uint64   `json:"spentWatts"`
	RefundWatts uint64   `json:"refundWatts"`
	TotalWatts  uint64   `json:"totalWatts"`
	Stack       []string `json:"stack"`
}

// BalanceResponse is returned by the balance endpoint.
type BalanceResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Height uint64 `json:"height"`
	Root   string `json:"root,omitempty"`
}

// ErrorResponse is returned for requests that never reach execution.
type ErrorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
}
