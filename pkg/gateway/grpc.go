package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/fortiblox/X1-Nimbus/pkg/failure"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// The gRPC service carries JSON documents in protobuf well-known wrapper
// types, so no generated code is needed:
//
//	service Gateway {
//	  rpc Call(google.protobuf.BytesValue) returns (google.protobuf.BytesValue);
//	  rpc Balance(google.protobuf.StringValue) returns (google.protobuf.BytesValue);
//	}
//
// Call takes a JSON CallRequest and returns a JSON CallResponse; Balance
// takes an address and returns a JSON BalanceResponse.

const (
	serviceName   = "nimbus.gateway.v1.Gateway"
	methodCall    = "/" + serviceName + "/Call"
	methodBalance = "/" + serviceName + "/Balance"
)

// GatewayServer is the server API for the Gateway gRPC service.
type GatewayServer interface {
	Call(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Balance(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
}

// UnimplementedGatewayServer can be embedded to have forward compatible implementations.
type UnimplementedGatewayServer struct{}

func (UnimplementedGatewayServer) Call(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Call not implemented")
}
func (UnimplementedGatewayServer) Balance(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Balance not implemented")
}

// RegisterGatewayServer registers the Gateway service on a gRPC server.
func RegisterGatewayServer(s grpc.ServiceRegistrar, srv GatewayServer) {
	s.RegisterService(&Gateway_ServiceDesc, srv)
}

// GatewayClient is the client API for the Gateway gRPC service.
type GatewayClient interface {
	Call(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	Balance(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
}

type gatewayClient struct{ cc grpc.ClientConnInterface }

// NewGatewayClient wraps a connection.
func NewGatewayClient(cc grpc.ClientConnInterface) GatewayClient { return &gatewayClient{cc: cc} }

func (c *gatewayClient) Call(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, methodCall, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *gatewayClient) Balance(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, methodBalance, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func _Gateway_Call_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GatewayServer).Call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodCall}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(GatewayServer).Call(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Gateway_Balance_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GatewayServer).Balance(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodBalance}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(GatewayServer).Balance(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Gateway_ServiceDesc is the grpc.ServiceDesc for the Gateway service.
var Gateway_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*GatewayServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Call", Handler: _Gateway_Call_Handler},
		{MethodName: "Balance", Handler: _Gateway_Balance_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gateway.proto",
}

// GRPCServer serves a Service over gRPC.
type GRPCServer struct {
	UnimplementedGatewayServer
	svc *Service
}

var _ GatewayServer = (*GRPCServer)(nil)

// NewGRPCServer creates the gRPC adapter for svc.
func NewGRPCServer(svc *Service) *GRPCServer {
	return &GRPCServer{svc: svc}
}

// Call decodes a JSON CallRequest and executes it.
func (g *GRPCServer) Call(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	var req CallRequest
	if err := json.Unmarshal(in.GetValue(), &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}
	data, err := json.Marshal(g.svc.Call(&req))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return wrapperspb.Bytes(data), nil
}

// Balance returns the balance of an address.
func (g *GRPCServer) Balance(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	resp, err := g.svc.Balance(in.GetValue())
	if err != nil {
		return nil, grpcError(err)
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return wrapperspb.Bytes(data), nil
}

// grpcError maps a service error to a status the way writeError maps it to
// an HTTP status.
func grpcError(err error) error {
	msg := err.Error()
	if sig, ok := failure.As(err); ok {
		msg = sig.Message
	}
	if failure.Is(err, failure.KindValidation) {
		return status.Error(codes.InvalidArgument, msg)
	}
	return status.Error(codes.Internal, msg)
}

// ServeGRPC serves the gateway on addr until ctx is cancelled.
func ServeGRPC(ctx context.Context, addr string, svc *Service) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := grpc.NewServer()
	RegisterGatewayServer(srv, NewGRPCServer(svc))

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	svc.logger.Info().Str("addr", addr).Msg("gateway gRPC listening")
	return srv.Serve(lis)
}

// Client calls a remote gateway over gRPC.
type Client struct {
	cc     *grpc.ClientConn
	client GatewayClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

// Dial connects to a gateway.
func Dial(target string, timeout time.Duration) (*Client, error) {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	cc, err := grpc.DialContext(ctx, target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	return NewClient(cc, timeout), nil
}

// NewClient wraps an existing connection.
func NewClient(cc *grpc.ClientConn, timeout time.Duration) *Client {
	return &Client{cc: cc, client: NewGatewayClient(cc), Timeout: timeout}
}

// Close closes the connection.
func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

// Call executes a call request remotely.
func (c *Client) Call(req *CallRequest) (*CallResponse, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.ctx()
	defer cancel()

	reply, err := c.client.Call(ctx, wrapperspb.Bytes(data))
	if err != nil {
		return nil, err
	}
	var resp CallResponse
	if err := json.Unmarshal(reply.GetValue(), &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}

// Balance queries a balance remotely.
func (c *Client) Balance(address string) (*BalanceResponse, error) {
	ctx, cancel := c.ctx()
	defer cancel()

	reply, err := c.client.Balance(ctx, wrapperspb.String(address))
	if err != nil {
		return nil, err
	}
	var resp BalanceResponse
	if err := json.Unmarshal(reply.GetValue(), &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}

func (c *Client) ctx() (context.Context, context.CancelFunc) {
	if c.Timeout > 0 {
		return context.WithTimeout(context.Background(), c.Timeout)
	}
	return context.WithCancel(context.Background())
}
