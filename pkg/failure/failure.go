// Package failure defines the signals that abort a transaction.
//
// A Signal is an ordinary Go error carrying a Kind. Any host primitive that
// cannot complete returns one; the executor treats the first Signal raised in
// a transaction as terminal:
//   - every buffered storage and ledger mutation is discarded
//   - the event log is discarded
//   - the receipt carries the kind and message
//
// There is no recover primitive. A caller that ignores a callee's Signal still
// fails, because the transaction latches the first Signal it observes.
package failure

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind uint8

const (
	// KindNone is the zero kind; it never appears on a raised Signal.
	KindNone Kind = iota

	// KindValidation reports malformed input (bad hex, bad tag, bad args).
	KindValidation

	// KindInsufficientFunds reports a debit larger than the balance.
	KindInsufficientFunds

	// KindIndex reports an out-of-range byte string access.
	KindIndex

	// KindKeyNotFound reports a strict storage read of an absent key.
	KindKeyNotFound

	// KindUserRaised reports a failure raised by program code.
	KindUserRaised

	// KindCallDepthExceeded reports a cross-call beyond the frame limit.
	KindCallDepthExceeded

	// KindOutOfResources reports an exhausted watts budget.
	KindOutOfResources

	// KindCrossCall wraps a failure whose origin the caller cannot see.
	KindCrossCall

	// KindNoSuchProgram reports a call to an address with no deployment.
	KindNoSuchProgram

	// KindNoSuchMethod reports a call to a method the program does not export.
	KindNoSuchMethod

	// KindInternal reports a host fault such as a storage backend error.
	KindInternal
)

var kindNames = map[Kind]string{
	KindNone:              "None",
	KindValidation:        "ValidationError",
	KindInsufficientFunds: "InsufficientFunds",
	KindIndex:             "IndexError",
	KindKeyNotFound:       "KeyNotFound",
	KindUserRaised:        "UserRaised",
	KindCallDepthExceeded: "CallDepthExceeded",
	KindOutOfResources:    "OutOfResources",
	KindCrossCall:         "CrossCallFailure",
	KindNoSuchProgram:     "NoSuchProgram",
	KindNoSuchMethod:      "NoSuchMethod",
	KindInternal:          "Internal",
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return KindNone, false
}

// Signal is a transaction-aborting failure.
type Signal struct {
	// Kind classifies the failure.
	Kind Kind

	// Message is a human readable description. For KindUserRaised it is the
	// program's message verbatim.
	Message string

	// Subject identifies the entity the failure is about, when there is one
	// (the debited address for KindInsufficientFunds, the target for
	// KindNoSuchProgram). Uppercase hex.
	Subject string

	// Depth is the call depth at which the signal was first raised. Zero
	// means the root frame.
	Depth int
}

// Error implements error.
func (s *Signal) Error() string {
	if s.Subject != "" {
		return fmt.Sprintf("%s: %s (%s)", s.Kind, s.Message, s.Subject)
	}
	return fmt.Sprintf("%s: %s", s.Kind, s.Message)
}

// CrossCall reports whether the signal originated below the root frame.
func (s *Signal) CrossCall() bool {
	return s.Depth > 0
}

// New creates a signal of the given kind.
func New(kind Kind, format string, args ...any) *Signal {
	return &Signal{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a KindValidation signal.
func Validation(format string, args ...any) *Signal {
	return New(KindValidation, format, args...)
}

// Index creates a KindIndex signal.
func Index(format string, args ...any) *Signal {
	return New(KindIndex, format, args...)
}

// InsufficientFunds creates a KindInsufficientFunds signal about address.
func InsufficientFunds(address string, format string, args ...any) *Signal {
	s := New(KindInsufficientFunds, format, args...)
	s.Subject = address
	return s
}

// KeyNotFound creates a KindKeyNotFound signal.
func KeyNotFound(format string, args ...any) *Signal {
	return New(KindKeyNotFound, format, args...)
}

// Raise creates a KindUserRaised signal with the message verbatim.
func Raise(message string) *Signal {
	return &Signal{Kind: KindUserRaised, Message: message}
}

// OutOfResources creates a KindOutOfResources signal.
func OutOfResources(format string, args ...any) *Signal {
	return New(KindOutOfResources, format, args...)
}

// Internal wraps a host fault.
func Internal(err error) *Signal {
	return &Signal{Kind: KindInternal, Message: err.Error()}
}

// As extracts the Signal from err's chain.
func As(err error) (*Signal, bool) {
	var s *Signal
	if errors.As(err, &s) {
		return s, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindNone when err carries no Signal.
func KindOf(err error) Kind {
	if s, ok := As(err); ok {
		return s.Kind
	}
	return KindNone
}

// Is reports whether err carries a Signal of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// From converts any error returned by program code into a Signal. Errors
// without a Signal in their chain are treated as raised by the program.
func From(err error) *Signal {
	if err == nil {
		return nil
	}
	if s, ok := As(err); ok {
		return s
	}
	return Raise(err.Error())
}
