package commands

import (
	"context"
	"errors"
	"log/slog"

	application "merkledrop/contexts/token-distribution/airdrop-claim-service/application"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/entities"
	domainerrors "merkledrop/contexts/token-distribution/airdrop-claim-service/domain/errors"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/ports"
)

type InitializeRegistryCommand struct {
	AirdropID       string
	Administrator   string
	LedgerReference string
	Root            string
}

// InitializeRegistryUseCase creates the registry once. Later calls leave the stored
// registry alone so a restart never overwrites an administrator's root rotation.
type InitializeRegistryUseCase struct {
	Registry ports.RegistryRepository
	Clock    ports.Clock
	Logger   *slog.Logger
}

func (uc InitializeRegistryUseCase) Execute(ctx context.Context, cmd InitializeRegistryCommand) (entities.Registry, error) {
	logger := application.ResolveLogger(uc.Logger)
	registry, err := entities.NewRegistry(cmd.AirdropID, cmd.Administrator, cmd.LedgerReference, cmd.Root, nowFrom(uc.Clock))
	if err != nil {
		return entities.Registry{}, err
	}
	if err := uc.Registry.InitializeRegistry(ctx, registry); err != nil {
		if errors.Is(err, domainerrors.ErrRegistryAlreadyInitialized) {
			existing, getErr := uc.Registry.GetRegistry(ctx)
			if getErr != nil {
				return entities.Registry{}, getErr
			}
			logger.Info("airdrop registry already initialized",
				"event", "airdrop_registry_already_initialized",
				"module", moduleName,
				"layer", "application",
				"airdrop_id", existing.AirdropID,
				"root", existing.CommittedRoot,
			)
			return existing, err
		}
		return entities.Registry{}, err
	}
	logger.Info("airdrop registry initialized",
		"event", "airdrop_registry_initialized",
		"module", moduleName,
		"layer", "application",
		"airdrop_id", registry.AirdropID,
		"administrator", registry.Administrator,
		"ledger_reference", registry.LedgerReference,
		"root", registry.CommittedRoot,
	)
	return registry, nil
}
