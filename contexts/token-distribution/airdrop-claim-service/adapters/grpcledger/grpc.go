package grpcledger

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// TokenLedgerServer is the server API of the token ledger service. Requests are
// protobuf Structs so the service needs no protoc step.
//
// StorageDeposit fields: ledger_account, account_id, collateral.
// FtTransfer fields: ledger_account, receiver_id, amount, memo, attached_fee.
type TokenLedgerServer interface {
	StorageDeposit(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	FtTransfer(context.Context, *structpb.Struct) (*emptypb.Empty, error)
}

type UnimplementedTokenLedgerServer struct{}

func (UnimplementedTokenLedgerServer) StorageDeposit(context.Context, *structpb.Struct) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method StorageDeposit not implemented")
}

func (UnimplementedTokenLedgerServer) FtTransfer(context.Context, *structpb.Struct) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method FtTransfer not implemented")
}

func RegisterTokenLedgerServer(s grpc.ServiceRegistrar, srv TokenLedgerServer) {
	s.RegisterService(&TokenLedger_ServiceDesc, srv)
}

type TokenLedgerClient interface {
	StorageDeposit(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
	FtTransfer(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
}

type tokenLedgerClient struct{ cc grpc.ClientConnInterface }

func NewTokenLedgerClient(cc grpc.ClientConnInterface) TokenLedgerClient {
	return &tokenLedgerClient{cc: cc}
}

func (c *tokenLedgerClient) StorageDeposit(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, "/merkledrop.ledger.v1.TokenLedger/StorageDeposit", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *tokenLedgerClient) FtTransfer(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, "/merkledrop.ledger.v1.TokenLedger/FtTransfer", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func _TokenLedger_StorageDeposit_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TokenLedgerServer).StorageDeposit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/merkledrop.ledger.v1.TokenLedger/StorageDeposit"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TokenLedgerServer).StorageDeposit(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _TokenLedger_FtTransfer_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TokenLedgerServer).FtTransfer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/merkledrop.ledger.v1.TokenLedger/FtTransfer"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TokenLedgerServer).FtTransfer(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var TokenLedger_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "merkledrop.ledger.v1.TokenLedger",
	HandlerType: (*TokenLedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "StorageDeposit", Handler: _TokenLedger_StorageDeposit_Handler},
		{MethodName: "FtTransfer", Handler: _TokenLedger_FtTransfer_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ledger.proto",
}
