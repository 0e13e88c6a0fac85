package grpcledger

import (
	"context"
	"log/slog"
	"time"

	"merkledrop/contexts/token-distribution/airdrop-claim-service/ports"

	"github.com/sethvargo/go-retry"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	registrationRetries = 3
	registrationBackoff = 100 * time.Millisecond
)

// Client implements ports.Ledger over the TokenLedger gRPC service.
type Client struct {
	cc     *grpc.ClientConn
	client TokenLedgerClient
	logger *slog.Logger
}

// Dial connects to addr without transport security; the ledger is expected on a
// private network or behind a sidecar.
func Dial(addr string, logger *slog.Logger, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	cc, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return NewClient(cc, logger), nil
}

func NewClient(cc *grpc.ClientConn, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cc: cc, client: NewTokenLedgerClient(cc), logger: logger}
}

func (c *Client) RegisterRecipient(ctx context.Context, req ports.RegisterRecipientRequest) error {
	in, err := structpb.NewStruct(map[string]interface{}{
		"ledger_account": req.LedgerAccount,
		"account_id":     req.Account,
		"collateral":     req.Collateral,
	})
	if err != nil {
		return err
	}
	// A repeated deposit answers AlreadyExists, so retrying an unreachable ledger
	// within the caller's deadline is safe.
	backoff, err := retry.NewConstant(registrationBackoff)
	if err != nil {
		return err
	}
	err = retry.Do(ctx, retry.WithMaxRetries(registrationRetries, backoff), func(ctx context.Context) error {
		_, callErr := c.client.StorageDeposit(ctx, in)
		if status.Code(callErr) == codes.Unavailable {
			return retry.RetryableError(callErr)
		}
		return callErr
	})
	return c.result("storage_deposit", req.Account, err)
}

func (c *Client) Transfer(ctx context.Context, req ports.TransferRequest) error {
	in, err := structpb.NewStruct(map[string]interface{}{
		"ledger_account": req.LedgerAccount,
		"receiver_id":    req.Recipient,
		"amount":         req.Amount,
		"memo":           req.Memo,
		"attached_fee":   req.AttachedFee,
	})
	if err != nil {
		return err
	}
	_, err = c.client.FtTransfer(ctx, in)
	return c.result("ft_transfer", req.Recipient, err)
}

func (c *Client) Close() error {
	if c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) result(method string, account string, err error) error {
	mapped := mapRPC(err)
	if mapped != nil {
		c.logger.Debug("ledger call returned error",
			"event", "grpc_ledger_call_failed",
			"module", "token-distribution/airdrop-claim-service",
			"layer", "adapter",
			"method", method,
			"account", account,
			"error", mapped.Error(),
		)
	}
	return mapped
}
