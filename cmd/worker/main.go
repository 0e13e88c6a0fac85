package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"merkledrop/internal/app/bootstrap"
)

// Worker process entrypoint.
// Data flow:
// 1) Load config.
// 2) Build app wiring.
// 3) Start the ledger receipt consumer, then poll the saga sweeper and outbox relay.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Println("merkledrop worker starting")
	app, err := bootstrap.BuildWorker(ctx)
	if err != nil {
		log.Fatalf("bootstrap worker failed: %v", err)
	}

	runErr := app.Run(ctx)
	stop()
	if err := app.Close(); err != nil {
		log.Printf("worker shutdown close failed: %v", err)
	}
	if runErr != nil {
		log.Fatalf("merkledrop worker stopped with error: %v", runErr)
	}
}
