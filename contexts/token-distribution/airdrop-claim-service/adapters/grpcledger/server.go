package grpcledger

import (
	"context"

	"merkledrop/contexts/token-distribution/airdrop-claim-service/ports"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Server exposes any ports.Ledger as the TokenLedger service.
type Server struct {
	UnimplementedTokenLedgerServer
	Ledger ports.Ledger
}

func (s *Server) StorageDeposit(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	account := stringField(in, "account_id")
	if account == "" {
		return nil, status.Error(codes.InvalidArgument, "account_id is required")
	}
	err := s.Ledger.RegisterRecipient(ctx, ports.RegisterRecipientRequest{
		LedgerAccount: stringField(in, "ledger_account"),
		Account:       account,
		Collateral:    stringField(in, "collateral"),
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) FtTransfer(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	receiver := stringField(in, "receiver_id")
	amount := stringField(in, "amount")
	if receiver == "" || amount == "" {
		return nil, status.Error(codes.InvalidArgument, "receiver_id and amount are required")
	}
	err := s.Ledger.Transfer(ctx, ports.TransferRequest{
		LedgerAccount: stringField(in, "ledger_account"),
		Recipient:     receiver,
		Amount:        amount,
		Memo:          stringField(in, "memo"),
		AttachedFee:   stringField(in, "attached_fee"),
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func stringField(in *structpb.Struct, key string) string {
	if in == nil {
		return ""
	}
	value, ok := in.GetFields()[key]
	if !ok {
		return ""
	}
	return value.GetStringValue()
}
