package grpcledger

import (
	"context"
	"errors"
	"fmt"

	domainerrors "merkledrop/contexts/token-distribution/airdrop-claim-service/domain/errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// mapRPC turns a call status into the errors the payout saga branches on.
// Unavailable counts as no response: the request may have reached the ledger.
func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", domainerrors.ErrLedgerNoResponse, err)
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.AlreadyExists:
		return domainerrors.ErrAlreadyRegistered
	case codes.DeadlineExceeded, codes.Canceled, codes.Unavailable:
		return fmt.Errorf("%w: %s", domainerrors.ErrLedgerNoResponse, st.Message())
	default:
		return fmt.Errorf("ledger %s: %s", st.Code(), st.Message())
	}
}

// toStatus is the server-side inverse of mapRPC.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domainerrors.ErrAlreadyRegistered):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, domainerrors.ErrLedgerNoResponse),
		errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.FailedPrecondition, err.Error())
	}
}
