package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	airdropclaimservice "merkledrop/contexts/token-distribution/airdrop-claim-service"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/adapters/dispatch"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/adapters/grpcledger"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/adapters/hashing"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/adapters/metrics"
	postgresadapter "merkledrop/contexts/token-distribution/airdrop-claim-service/adapters/postgres"
	workerapp "merkledrop/contexts/token-distribution/airdrop-claim-service/application/workers"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/ports"
	"merkledrop/internal/platform/config"
	"merkledrop/internal/platform/db"
	"merkledrop/internal/platform/httpserver"
	"merkledrop/internal/platform/messaging"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server        *httpserver.Server
	postgres      *db.Postgres
	ledger        *grpcledger.Client
	pool          *dispatch.WorkerPool
	shutdownGrace time.Duration
	logger        *slog.Logger
}

type WorkerApp struct {
	postgres    *db.Postgres
	bus         messaging.EventBus
	outboxRelay workerapp.OutboxRelay
	sweeper     workerapp.StalledSagaSweeper
	receipts    workerapp.LedgerReceiptConsumer
	cfg         config.Config
	logger      *slog.Logger
}

func BuildAPI(ctx context.Context) (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}
	if strings.TrimSpace(cfg.LedgerGRPCAddr) == "" {
		return nil, errors.New("LEDGER_GRPC_ADDR is required")
	}

	pg, err := db.Connect(ctx, cfg.PostgresDSN, logger)
	if err != nil {
		return nil, err
	}
	ledger, err := grpcledger.Dial(cfg.LedgerGRPCAddr, logger)
	if err != nil {
		_ = pg.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	pool := dispatch.NewWorkerPool(cfg.WorkerPoolSize, logger)

	module, err := buildModule(ctx, cfg, pg, ledger, pool, metrics.NewSagaCollector(registry), logger)
	if err != nil {
		pool.Stop(0)
		_ = ledger.Close()
		_ = pg.Close()
		return nil, err
	}

	server := httpserver.New(module, registry, logger, normalizeAddr(cfg.HTTPPort))
	return &APIApp{
		server:        server,
		postgres:      pg,
		ledger:        ledger,
		pool:          pool,
		shutdownGrace: cfg.ShutdownGrace,
		logger:        logger,
	}, nil
}

func BuildWorker(ctx context.Context) (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(ctx, cfg.PostgresDSN, logger)
	if err != nil {
		return nil, err
	}

	bus, err := messaging.NewKafka(cfg.KafkaBrokers, logger)
	if err != nil {
		_ = pg.Close()
		return nil, err
	}

	// The sweeper and receipt consumer only settle sagas; neither calls the ledger.
	module, err := buildModule(ctx, cfg, pg, nil, nil, metrics.NewSagaCollector(prometheus.NewRegistry()), logger)
	if err != nil {
		_ = bus.Close()
		_ = pg.Close()
		return nil, err
	}

	receipts := module.NewLedgerReceiptConsumer(messaging.RetryingSubscriber{
		Bus:        bus,
		MaxRetries: 3,
		Logger:     logger,
	})
	receipts.DedupTTL = cfg.IdempotencyTTL
	return &WorkerApp{
		postgres: pg,
		bus:      bus,
		outboxRelay: module.NewOutboxRelay(messaging.RetryingPublisher{
			Bus:        bus,
			MaxRetries: 3,
			Logger:     logger,
		}, cfg.OutboxBatchSize),
		sweeper:  module.NewStalledSagaSweeper(cfg.SagaStaleAfter, cfg.OutboxBatchSize),
		receipts: receipts,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

func buildModule(
	ctx context.Context,
	cfg config.Config,
	pg *db.Postgres,
	ledger ports.Ledger,
	dispatcher ports.Dispatcher,
	sagaMetrics ports.SagaMetrics,
	logger *slog.Logger,
) (airdropclaimservice.Module, error) {
	hasher, err := hashing.ByName(cfg.LeafHash)
	if err != nil {
		return airdropclaimservice.Module{}, err
	}

	repo := postgresadapter.NewRepository(pg.DB, cfg.AirdropID, logger)
	if err := repo.Migrate(ctx); err != nil {
		return airdropclaimservice.Module{}, err
	}

	module := airdropclaimservice.NewModule(airdropclaimservice.Dependencies{
		Registry:               repo,
		Claims:                 repo,
		Allocations:            repo,
		Idempotency:            repo,
		Outbox:                 repo,
		EventDedup:             repo,
		Ledger:                 ledger,
		Dispatcher:             dispatcher,
		Metrics:                sagaMetrics,
		Clock:                  postgresadapter.SystemClock{},
		IDGenerator:            postgresadapter.UUIDGenerator{},
		Hasher:                 hasher,
		RegistrationCollateral: cfg.RegistrationCollateral,
		TransferFee:            cfg.TransferFee,
		RegistrationTimeout:    cfg.RegistrationTimeout,
		TransferTimeout:        cfg.TransferTimeout,
		MaxProofLength:         cfg.MaxProofLength,
		IdempotencyTTL:         cfg.IdempotencyTTL,
		Logger:                 logger,
	})
	if _, err := module.Initialize(ctx, airdropclaimservice.RegistrySeed{
		AirdropID:       cfg.AirdropID,
		Administrator:   cfg.Administrator,
		LedgerReference: cfg.LedgerReference,
		Root:            cfg.InitialRoot,
	}); err != nil {
		return airdropclaimservice.Module{}, err
	}
	return module, nil
}

// Run serves until ctx is cancelled, then drains the server and in-flight sagas.
func (a *APIApp) Run(ctx context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownGrace)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	a.pool.Stop(a.shutdownGrace)
	return <-errCh
}

func (a *APIApp) Close() error {
	var result *multierror.Error
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if a.postgres != nil {
		if err := a.postgres.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (w *WorkerApp) Run(ctx context.Context) error {
	if w.cfg.EnableReceiptConsumer {
		if err := w.receipts.Start(ctx); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(w.cfg.WorkerPollInterval)
	defer ticker.Stop()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.cfg.WorkerPollInterval.String(),
		"receipt_consumer", w.cfg.EnableReceiptConsumer,
		"saga_sweeper", w.cfg.EnableSagaSweeper,
	)

	for {
		if w.cfg.EnableSagaSweeper {
			if err := w.sweeper.RunOnce(ctx); err != nil && ctx.Err() == nil {
				return err
			}
		}
		if err := w.outboxRelay.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Warn("outbox relay pass failed",
				"event", "bootstrap_worker_outbox_failed",
				"module", "internal/app/bootstrap",
				"layer", "platform",
				"error", err.Error(),
			)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Close expects the Run context to be cancelled already so consumer loops have exited.
func (w *WorkerApp) Close() error {
	var result *multierror.Error
	if w.bus != nil {
		if err := w.bus.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if w.postgres != nil {
		if err := w.postgres.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
