package commands

import (
	"context"
	"log/slog"
	"strings"

	application "merkledrop/contexts/token-distribution/airdrop-claim-service/application"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/entities"
	domainerrors "merkledrop/contexts/token-distribution/airdrop-claim-service/domain/errors"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/valueobjects"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/ports"
)

// AddAllocationsCommand pairs Recipients[i] with Amounts[i].
type AddAllocationsCommand struct {
	Caller          string
	Recipients      []string
	Amounts         []string
	AttachedDeposit string
}

type AddAllocationsResult struct {
	Added   []string
	Skipped []string
}

type UpdateAllocationCommand struct {
	Caller          string
	Account         string
	Amount          string
	AttachedDeposit string
}

// AllocationsUseCase manages the allow-list. Only the administrator may write it.
type AllocationsUseCase struct {
	Registry    ports.RegistryRepository
	Allocations ports.AllocationRepository
	Clock       ports.Clock
	Logger      *slog.Logger
}

// Add inserts new entries; accounts already on the list keep their amount.
func (uc AllocationsUseCase) Add(ctx context.Context, cmd AddAllocationsCommand) (AddAllocationsResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	if err := uc.authorize(ctx, cmd.Caller, cmd.AttachedDeposit); err != nil {
		return AddAllocationsResult{}, err
	}
	if len(cmd.Recipients) == 0 || len(cmd.Recipients) != len(cmd.Amounts) {
		return AddAllocationsResult{}, domainerrors.ErrInvalidAllocation
	}
	now := nowFrom(uc.Clock)
	items := make([]entities.Allocation, 0, len(cmd.Recipients))
	for i, recipient := range cmd.Recipients {
		allocation, err := parseAllocation(recipient, cmd.Amounts[i])
		if err != nil {
			return AddAllocationsResult{}, err
		}
		allocation.UpdatedAt = now
		items = append(items, allocation)
	}

	added, skipped, err := uc.Allocations.AddAllocations(ctx, items)
	if err != nil {
		logger.Error("airdrop allocations add failed",
			"event", "airdrop_allocations_add_failed",
			"module", moduleName,
			"layer", "application",
			"count", len(items),
			"error", err.Error(),
		)
		return AddAllocationsResult{}, err
	}
	result := AddAllocationsResult{
		Added:   accountStrings(added),
		Skipped: accountStrings(skipped),
	}
	logger.Info("airdrop allocations added",
		"event", "airdrop_allocations_added",
		"module", moduleName,
		"layer", "application",
		"added", len(result.Added),
		"skipped", len(result.Skipped),
	)
	return result, nil
}

// Update changes the amount of an existing entry.
func (uc AllocationsUseCase) Update(ctx context.Context, cmd UpdateAllocationCommand) (entities.Allocation, error) {
	logger := application.ResolveLogger(uc.Logger)
	if err := uc.authorize(ctx, cmd.Caller, cmd.AttachedDeposit); err != nil {
		return entities.Allocation{}, err
	}
	allocation, err := parseAllocation(cmd.Account, cmd.Amount)
	if err != nil {
		return entities.Allocation{}, err
	}
	allocation.UpdatedAt = nowFrom(uc.Clock)
	if err := uc.Allocations.UpdateAllocation(ctx, allocation); err != nil {
		logger.Warn("airdrop allocation update failed",
			"event", "airdrop_allocation_update_failed",
			"module", moduleName,
			"layer", "application",
			"account", allocation.Account,
			"error", err.Error(),
		)
		return entities.Allocation{}, err
	}
	logger.Info("airdrop allocation updated",
		"event", "airdrop_allocation_updated",
		"module", moduleName,
		"layer", "application",
		"account", allocation.Account,
		"amount", allocation.Amount,
	)
	return allocation, nil
}

func (uc AllocationsUseCase) authorize(ctx context.Context, caller string, deposit string) error {
	if err := RequireDeposit(deposit); err != nil {
		return err
	}
	registry, err := uc.Registry.GetRegistry(ctx)
	if err != nil {
		return err
	}
	return registry.Authorize(caller)
}

func parseAllocation(rawAccount string, rawAmount string) (entities.Allocation, error) {
	account, err := valueobjects.NewAccountID(rawAccount)
	if err != nil {
		return entities.Allocation{}, domainerrors.ErrInvalidAllocation
	}
	amount, err := valueobjects.ParseAmount(strings.TrimSpace(rawAmount))
	if err != nil {
		return entities.Allocation{}, domainerrors.ErrInvalidAllocation
	}
	return entities.Allocation{Account: account, Amount: amount}, nil
}

func accountStrings(accounts []valueobjects.AccountID) []string {
	items := make([]string, 0, len(accounts))
	for _, account := range accounts {
		items = append(items, account.String())
	}
	return items
}
