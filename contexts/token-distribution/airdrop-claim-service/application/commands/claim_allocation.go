package commands

import (
	"context"
	"log/slog"

	application "merkledrop/contexts/token-distribution/airdrop-claim-service/application"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/application/saga"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/entities"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/services"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/valueobjects"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/ports"
)

type ClaimAllocationCommand struct {
	Account         string
	AttachedDeposit string
}

// ClaimAllocationUseCase pays out an allow-list entry through the same gated saga
// as a Merkle claim.
type ClaimAllocationUseCase struct {
	Registry    ports.RegistryRepository
	Claims      ports.ClaimRepository
	Allocations ports.AllocationRepository
	Payout      saga.Payout
	Dispatcher  ports.Dispatcher
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Logger      *slog.Logger
}

func (uc ClaimAllocationUseCase) Execute(ctx context.Context, cmd ClaimAllocationCommand) (ClaimOutcome, error) {
	logger := application.ResolveLogger(uc.Logger)
	if err := RequireDeposit(cmd.AttachedDeposit); err != nil {
		return ClaimOutcome{}, err
	}
	account, err := valueobjects.NewAccountID(cmd.Account)
	if err != nil {
		return ClaimOutcome{}, err
	}
	registry, err := uc.Registry.GetRegistry(ctx)
	if err != nil {
		return ClaimOutcome{}, err
	}
	claimed, err := uc.Claims.HasClaimed(ctx, account)
	if err != nil {
		return ClaimOutcome{}, err
	}
	allocation, found, err := uc.Allocations.GetAllocation(ctx, account)
	if err != nil {
		return ClaimOutcome{}, err
	}
	if err := services.EvaluateAllocationClaim(claimed, allocation, found); err != nil {
		if uc.Payout.Metrics != nil {
			uc.Payout.Metrics.ClaimRejected(rejectionReason(err))
		}
		logger.Warn("allocation claim rejected",
			"event", "airdrop_allocation_claim_rejected",
			"module", moduleName,
			"layer", "application",
			"account", account,
			"error", err.Error(),
		)
		return ClaimOutcome{}, err
	}

	return startClaim(ctx, claimStarter{
		Claims:      uc.Claims,
		Payout:      uc.Payout,
		Dispatcher:  uc.Dispatcher,
		Clock:       uc.Clock,
		IDGenerator: uc.IDGenerator,
		Metrics:     uc.Payout.Metrics,
		Logger:      logger,
	}, account, allocation.Amount, registry, entities.ClaimSourceAllowlist)
}
