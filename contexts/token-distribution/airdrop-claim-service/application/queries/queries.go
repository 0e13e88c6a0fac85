package queries

import (
	"context"
	"strings"

	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/entities"
	domainerrors "merkledrop/contexts/token-distribution/airdrop-claim-service/domain/errors"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/valueobjects"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/ports"
)

// UseCase serves the read-only views. None of them mutate state.
type UseCase struct {
	Registry    ports.RegistryRepository
	Claims      ports.ClaimRepository
	Allocations ports.AllocationRepository
}

func (uc UseCase) ReadRoot(ctx context.Context) (string, error) {
	registry, err := uc.Registry.GetRegistry(ctx)
	if err != nil {
		return "", err
	}
	return registry.CommittedRoot, nil
}

func (uc UseCase) ReadRegistry(ctx context.Context) (entities.Registry, error) {
	return uc.Registry.GetRegistry(ctx)
}

func (uc UseCase) ReadAdministrator(ctx context.Context) (string, error) {
	registry, err := uc.Registry.GetRegistry(ctx)
	if err != nil {
		return "", err
	}
	return registry.Administrator.String(), nil
}

// HasClaimed is true while a saga for account is in flight or completed.
func (uc UseCase) HasClaimed(ctx context.Context, account string) (bool, error) {
	id, err := valueobjects.NewAccountID(account)
	if err != nil {
		return false, err
	}
	return uc.Claims.HasClaimed(ctx, id)
}

func (uc UseCase) GetSaga(ctx context.Context, sagaID string) (entities.ClaimSaga, error) {
	sagaID = strings.TrimSpace(sagaID)
	if sagaID == "" {
		return entities.ClaimSaga{}, domainerrors.ErrSagaNotFound
	}
	return uc.Claims.GetSaga(ctx, sagaID)
}

// CheckAllocation returns the allow-list amount, or "0" for unknown accounts.
func (uc UseCase) CheckAllocation(ctx context.Context, account string) (valueobjects.Amount, error) {
	id, err := valueobjects.NewAccountID(account)
	if err != nil {
		return "", err
	}
	allocation, found, err := uc.Allocations.GetAllocation(ctx, id)
	if err != nil {
		return "", err
	}
	if !found {
		return valueobjects.ZeroAmount, nil
	}
	return allocation.Amount, nil
}
