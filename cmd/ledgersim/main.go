package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"merkledrop/contexts/token-distribution/airdrop-claim-service/adapters/grpcledger"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/adapters/memory"

	"github.com/spf13/pflag"
	"google.golang.org/grpc"
)

// Ledger simulator entrypoint.
// Serves the TokenLedger gRPC service over the in-memory ledger so the api can run
// end to end without a chain. Failure flags script the saga's compensation paths.
func main() {
	flags := pflag.NewFlagSet("ledgersim", pflag.ExitOnError)
	addr := flags.String("addr", ":9090", "listen address")
	failRegistrations := flags.String("fail-registrations", "", "reject every storage deposit with this reason")
	failTransfers := flags.String("fail-transfers", "", "reject every transfer with this reason")
	holdTransfers := flags.Bool("hold-transfers", false, "never answer transfers, applying them anyway")
	_ = flags.Parse(os.Args[1:])

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	ledger := memory.NewLedger()
	if *failRegistrations != "" {
		ledger.FailRegistrations(errors.New(*failRegistrations))
	}
	if *failTransfers != "" {
		ledger.FailTransfers(errors.New(*failTransfers))
	}
	if *holdTransfers {
		ledger.HoldTransfers(true)
	}

	listener, err := net.Listen("tcp", *addr)
	if err != nil {
		logger.Error("ledger simulator listen failed",
			"event", "ledgersim_listen_failed",
			"module", "cmd/ledgersim",
			"layer", "platform",
			"addr", *addr,
			"error", err.Error(),
		)
		os.Exit(1)
	}

	server := grpc.NewServer()
	grpcledger.RegisterTokenLedgerServer(server, &grpcledger.Server{Ledger: ledger})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		server.GracefulStop()
	}()

	logger.Info("ledger simulator serving",
		"event", "ledgersim_serving",
		"module", "cmd/ledgersim",
		"layer", "platform",
		"addr", listener.Addr().String(),
	)
	if err := server.Serve(listener); err != nil {
		logger.Error("ledger simulator stopped",
			"event", "ledgersim_stopped",
			"module", "cmd/ledgersim",
			"layer", "platform",
			"error", err.Error(),
		)
		os.Exit(1)
	}
}
