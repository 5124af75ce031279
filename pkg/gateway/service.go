package gateway

import (
	"errors"

	"github.com/fortiblox/X1-Nimbus/internal/types"
	"github.com/fortiblox/X1-Nimbus/pkg/abi"
	"github.com/fortiblox/X1-Nimbus/pkg/failure"
	"github.com/fortiblox/X1-Nimbus/pkg/receipts"
	"github.com/fortiblox/X1-Nimbus/pkg/runtime"
	"github.com/rs/zerolog"
)

// ErrReceiptsDisabled is returned when no receipt store is attached.
var ErrReceiptsDisabled = errors.New("receipt store not configured")

// ReceiptReader looks up stored receipts. *receipts.BoltStore implements it.
type ReceiptReader interface {
	Get(id types.Hash) (*receipts.Record, error)
}

var _ ReceiptReader = (*receipts.BoltStore)(nil)

// Service is the transport-independent gateway; the HTTP and gRPC servers
// both delegate to it.
type Service struct {
	rt       *runtime.Runtime
	receipts ReceiptReader
	logger   zerolog.Logger
}

// NewService creates a service. rr may be nil.
func NewService(rt *runtime.Runtime, rr ReceiptReader, logger zerolog.Logger) *Service {
	return &Service{rt: rt, receipts: rr, logger: logger}
}

// Call validates and executes a call request. Malformed requests are
// rejected with a ValidationError before anything executes.
func (s *Service) Call(req *CallRequest) *CallResponse {
	tx, err := s.decode(req)
	if err != nil {
		return failed(failure.From(err))
	}

	var rcpt *runtime.Receipt
	if req.Test {
		rcpt, err = s.rt.Simulate(tx)
	} else {
		rcpt, err = s.rt.Execute(tx)
	}
	if err != nil && rcpt == nil {
		s.logger.Error().Err(err).Str("method", req.Method).Msg("call failed")
		return failed(failure.Internal(err))
	}
	return response(rcpt)
}

func (s *Service) decode(req *CallRequest) (*runtime.Tx, error) {
	prog, err := types.ParseAddress(req.Address)
	if err != nil {
		return nil, failure.Validation("invalid program address: %v", err)
	}
	var sender types.Address
	if req.Sender != "" {
		sender, err = types.ParseAddress(req.Sender)
		if err != nil {
			return nil, failure.Validation("invalid sender address: %v", err)
		}
	}
	if req.Method == "" {
		return nil, failure.Validation("missing method")
	}
	args, err := abi.ParseAll(req.Args)
	if err != nil {
		return nil, err
	}
	return &runtime.Tx{
		Sender:     sender,
		Program:    prog,
		Method:     req.Method,
		Args:       args,
		WattsLimit: req.WattsLimit,
		Nonce:      req.Nonce,
	}, nil
}

// Balance returns the committed native balance of an address in decimal.
func (s *Service) Balance(address string) (*BalanceResponse, error) {
	addr, err := types.ParseAddress(address)
	if err != nil {
		return nil, failure.Validation("invalid address: %v", err)
	}
	bal, err := s.rt.BalanceOf(addr)
	if err != nil {
		return nil, failure.Internal(err)
	}
	return &BalanceResponse{Address: addr.Hex(), Balance: bal.Dec()}, nil
}

// Receipt returns a stored receipt.
func (s *Service) Receipt(txid string) (*receipts.Record, error) {
	if s.receipts == nil {
		return nil, ErrReceiptsDisabled
	}
	id, err := types.HashFromHex(txid)
	if err != nil {
		return nil, failure.Validation("invalid transaction id: %v", err)
	}
	return s.receipts.Get(id)
}

// Health reports the current block and state root.
func (s *Service) Health() *HealthResponse {
	resp := &HealthResponse{Status: "ok", Height: s.rt.Block().Height}
	root, err := s.rt.World().Root()
	if err != nil {
		resp.Status = "degraded"
		return resp
	}
	resp.Root = root.Hex()
	return resp
}

func failed(sig *failure.Signal) *CallResponse {
	return &CallResponse{
		Error:     sig.Message,
		ErrorCode: sig.Kind.String(),
		Data: CallData{
			FinalState: FinalState{Stack: []string{}},
			Events:     []receipts.EventRecord{},
		},
	}
}

func response(r *runtime.Receipt) *CallResponse {
	rec := receipts.FromReceipt(r)
	resp := &CallResponse{
		Data: CallData{
			TxID:   rec.TxID,
			Height: rec.Height,
			FinalState: FinalState{
				SpentWatts:  rec.SpentWatts,
				RefundWatts: rec.RefundWatts,
				TotalWatts:  rec.TotalWatts,
				Stack:       rec.Result,
			},
			Events: rec.Events,
		},
	}
	if r.Failure != nil {
		resp.Error = r.Failure.Message
		resp.ErrorCode = r.Failure.Kind.String()
		resp.Data.FinalState.Stack = []string{}
	}
	return resp
}
