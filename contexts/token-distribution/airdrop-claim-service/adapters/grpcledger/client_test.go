package grpcledger

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"merkledrop/contexts/token-distribution/airdrop-claim-service/adapters/memory"
	domainerrors "merkledrop/contexts/token-distribution/airdrop-claim-service/domain/errors"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

func serve(t *testing.T, srv TokenLedgerServer) *Client {
	t.Helper()
	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	RegisterTokenLedgerServer(server, srv)
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	client, err := Dial("passthrough:///bufnet", nil,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

type unavailableLedger struct {
	UnimplementedTokenLedgerServer
	calls atomic.Int32
}

func (u *unavailableLedger) StorageDeposit(context.Context, *structpb.Struct) (*emptypb.Empty, error) {
	u.calls.Add(1)
	return nil, status.Error(codes.Unavailable, "ledger restarting")
}

func TestClientRoundTripsThroughServer(t *testing.T) {
	ledger := memory.NewLedger()
	client := serve(t, &Server{Ledger: ledger})
	ctx := context.Background()

	require.NoError(t, client.RegisterRecipient(ctx, ports.RegisterRecipientRequest{
		LedgerAccount: "token.testnet", Account: "user1.testnet", Collateral: "125",
	}))
	err := client.RegisterRecipient(ctx, ports.RegisterRecipientRequest{
		LedgerAccount: "token.testnet", Account: "user1.testnet", Collateral: "125",
	})
	assert.ErrorIs(t, err, domainerrors.ErrAlreadyRegistered)

	require.NoError(t, client.Transfer(ctx, ports.TransferRequest{
		LedgerAccount: "token.testnet", Recipient: "user1.testnet", Amount: "100", Memo: "airdrop-1", AttachedFee: "1",
	}))
	assert.Equal(t, "100", ledger.Balance("user1.testnet"))
	transfers := ledger.Transfers()
	require.Len(t, transfers, 1)
	assert.Equal(t, "airdrop-1", transfers[0].Memo)
}

func TestClientMapsRejectionsAndSilence(t *testing.T) {
	ledger := memory.NewLedger()
	client := serve(t, &Server{Ledger: ledger})

	err := client.Transfer(context.Background(), ports.TransferRequest{Recipient: "ghost.testnet", Amount: "5"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, domainerrors.ErrLedgerNoResponse))
	assert.Contains(t, err.Error(), "FailedPrecondition")

	ledger.MarkRegistered("user1.testnet")
	ledger.HoldTransfers(false)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = client.Transfer(ctx, ports.TransferRequest{Recipient: "user1.testnet", Amount: "5"})
	assert.ErrorIs(t, err, domainerrors.ErrLedgerNoResponse)
	assert.Equal(t, "0", ledger.Balance("user1.testnet"))
}

func TestClientRetriesUnavailableRegistration(t *testing.T) {
	srv := &unavailableLedger{}
	client := serve(t, srv)

	err := client.RegisterRecipient(context.Background(), ports.RegisterRecipientRequest{Account: "user1.testnet"})
	assert.ErrorIs(t, err, domainerrors.ErrLedgerNoResponse)
	assert.EqualValues(t, registrationRetries+1, srv.calls.Load())
}

func TestServerRejectsMissingFields(t *testing.T) {
	client := serve(t, &Server{Ledger: memory.NewLedger()})

	err := client.RegisterRecipient(context.Background(), ports.RegisterRecipientRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "InvalidArgument")
}

func TestMapRPC(t *testing.T) {
	assert.NoError(t, mapRPC(nil))
	assert.ErrorIs(t, mapRPC(status.Error(codes.AlreadyExists, "dup")), domainerrors.ErrAlreadyRegistered)
	assert.ErrorIs(t, mapRPC(status.Error(codes.Unavailable, "down")), domainerrors.ErrLedgerNoResponse)
	assert.ErrorIs(t, mapRPC(context.DeadlineExceeded), domainerrors.ErrLedgerNoResponse)

	plain := errors.New("boom")
	assert.Equal(t, plain, mapRPC(plain))

	assert.Equal(t, codes.AlreadyExists, status.Code(toStatus(domainerrors.ErrAlreadyRegistered)))
	assert.Equal(t, codes.DeadlineExceeded, status.Code(toStatus(domainerrors.ErrLedgerNoResponse)))
	assert.Equal(t, codes.FailedPrecondition, status.Code(toStatus(plain)))
}
