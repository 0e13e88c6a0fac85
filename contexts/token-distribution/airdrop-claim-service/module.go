package airdropclaimservice

import (
	"context"
	"errors"
	"log/slog"
	"time"

	httpadapter "merkledrop/contexts/token-distribution/airdrop-claim-service/adapters/http"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/adapters/memory"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/application/commands"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/application/queries"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/application/saga"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/application/workers"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/entities"
	domainerrors "merkledrop/contexts/token-distribution/airdrop-claim-service/domain/errors"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/merkle"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/ports"
)

// Module is the composition surface for the airdrop claim service.
// Runtime wiring consumes Handler and the worker constructors; Store and Ledger
// are set only by NewInMemoryModule, for tests and local runs.
type Module struct {
	Handler  httpadapter.Handler
	Payout   saga.Payout
	Registry commands.InitializeRegistryUseCase
	Store    *memory.Store
	Ledger   *memory.Ledger

	deps Dependencies
}

type Dependencies struct {
	Registry               ports.RegistryRepository
	Claims                 ports.ClaimRepository
	Allocations            ports.AllocationRepository
	Idempotency            ports.IdempotencyStore
	Outbox                 ports.OutboxRepository
	EventDedup             ports.EventDedupStore
	Ledger                 ports.Ledger
	Dispatcher             ports.Dispatcher
	Metrics                ports.SagaMetrics
	Clock                  ports.Clock
	IDGenerator            ports.IDGenerator
	Hasher                 merkle.Hasher
	RegistrationCollateral string
	TransferFee            string
	RegistrationTimeout    time.Duration
	TransferTimeout        time.Duration
	MaxProofLength         int
	IdempotencyTTL         time.Duration
	Logger                 *slog.Logger
}

// RegistrySeed is the registry written on first start.
type RegistrySeed struct {
	AirdropID       string
	Administrator   string
	LedgerReference string
	Root            string
}

// NewModule wires the claim, administration and query use cases against explicit ports.
func NewModule(deps Dependencies) Module {
	payout := saga.Payout{
		Claims:                 deps.Claims,
		Ledger:                 deps.Ledger,
		Metrics:                deps.Metrics,
		Clock:                  deps.Clock,
		IDGenerator:            deps.IDGenerator,
		RegistrationCollateral: deps.RegistrationCollateral,
		TransferFee:            deps.TransferFee,
		RegistrationTimeout:    deps.RegistrationTimeout,
		TransferTimeout:        deps.TransferTimeout,
		Logger:                 deps.Logger,
	}
	claimAirdrop := commands.ClaimAirdropUseCase{
		Registry:       deps.Registry,
		Claims:         deps.Claims,
		Verifier:       merkle.NewVerifier(deps.Hasher),
		Payout:         payout,
		Dispatcher:     deps.Dispatcher,
		Clock:          deps.Clock,
		IDGenerator:    deps.IDGenerator,
		MaxProofLength: deps.MaxProofLength,
		Logger:         deps.Logger,
	}
	claimAllocation := commands.ClaimAllocationUseCase{
		Registry:    deps.Registry,
		Claims:      deps.Claims,
		Allocations: deps.Allocations,
		Payout:      payout,
		Dispatcher:  deps.Dispatcher,
		Clock:       deps.Clock,
		IDGenerator: deps.IDGenerator,
		Logger:      deps.Logger,
	}
	rotateRoot := commands.RotateRootUseCase{
		Registry:       deps.Registry,
		Idempotency:    deps.Idempotency,
		Clock:          deps.Clock,
		IdempotencyTTL: deps.IdempotencyTTL,
		Logger:         deps.Logger,
	}
	transferAdministration := commands.TransferAdministrationUseCase{
		Registry:       deps.Registry,
		Idempotency:    deps.Idempotency,
		Clock:          deps.Clock,
		IdempotencyTTL: deps.IdempotencyTTL,
		Logger:         deps.Logger,
	}
	allocations := commands.AllocationsUseCase{
		Registry:    deps.Registry,
		Allocations: deps.Allocations,
		Clock:       deps.Clock,
		Logger:      deps.Logger,
	}
	readModels := queries.UseCase{
		Registry:    deps.Registry,
		Claims:      deps.Claims,
		Allocations: deps.Allocations,
	}

	handler := httpadapter.Handler{
		ClaimAirdrop:           claimAirdrop,
		ClaimAllocation:        claimAllocation,
		RotateRoot:             rotateRoot,
		TransferAdministration: transferAdministration,
		Allocations:            allocations,
		Queries:                readModels,
		Logger:                 deps.Logger,
	}

	return Module{
		Handler: handler,
		Payout:  payout,
		Registry: commands.InitializeRegistryUseCase{
			Registry: deps.Registry,
			Clock:    deps.Clock,
			Logger:   deps.Logger,
		},
		deps: deps,
	}
}

// Initialize writes seed as the registry unless one already exists.
func (m Module) Initialize(ctx context.Context, seed RegistrySeed) (entities.Registry, error) {
	registry, err := m.Registry.Execute(ctx, commands.InitializeRegistryCommand{
		AirdropID:       seed.AirdropID,
		Administrator:   seed.Administrator,
		LedgerReference: seed.LedgerReference,
		Root:            seed.Root,
	})
	if errors.Is(err, domainerrors.ErrRegistryAlreadyInitialized) {
		return registry, nil
	}
	return registry, err
}

func (m Module) NewOutboxRelay(publisher ports.EventPublisher, batchSize int) workers.OutboxRelay {
	return workers.OutboxRelay{
		Outbox:    m.deps.Outbox,
		Publisher: publisher,
		Clock:     m.deps.Clock,
		BatchSize: batchSize,
		Logger:    m.deps.Logger,
	}
}

func (m Module) NewStalledSagaSweeper(staleAfter time.Duration, batchSize int) workers.StalledSagaSweeper {
	return workers.StalledSagaSweeper{
		Claims:     m.deps.Claims,
		Payout:     m.Payout,
		Clock:      m.deps.Clock,
		StaleAfter: staleAfter,
		BatchSize:  batchSize,
		Logger:     m.deps.Logger,
	}
}

func (m Module) NewLedgerReceiptConsumer(subscriber ports.EventSubscriber) workers.LedgerReceiptConsumer {
	return workers.LedgerReceiptConsumer{
		Subscriber: subscriber,
		Claims:     m.deps.Claims,
		EventDedup: m.deps.EventDedup,
		Payout:     m.Payout,
		Clock:      m.deps.Clock,
		Logger:     m.deps.Logger,
	}
}

// NewInMemoryModule wires the service against the in-memory store and ledger and
// runs payouts inline, so a claim returns with its saga settled.
func NewInMemoryModule(seed RegistrySeed, logger *slog.Logger) (Module, error) {
	store := memory.NewStore(logger)
	ledger := memory.NewLedger()
	module := NewModule(Dependencies{
		Registry:               store,
		Claims:                 store,
		Allocations:            store,
		Idempotency:            store,
		Outbox:                 store,
		EventDedup:             store,
		Ledger:                 ledger,
		Dispatcher:             memory.InlineDispatcher{},
		Metrics:                saga.NoopMetrics{},
		Clock:                  store,
		IDGenerator:            store,
		Hasher:                 merkle.SHA256,
		RegistrationCollateral: saga.DefaultRegistrationCollateral,
		TransferFee:            saga.DefaultTransferFee,
		RegistrationTimeout:    5 * time.Second,
		TransferTimeout:        5 * time.Second,
		MaxProofLength:         commands.DefaultMaxProofLength,
		IdempotencyTTL:         7 * 24 * time.Hour,
		Logger:                 logger,
	})
	module.Store = store
	module.Ledger = ledger
	if _, err := module.Initialize(context.Background(), seed); err != nil {
		return Module{}, err
	}
	return module, nil
}
