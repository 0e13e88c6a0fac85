package commands

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "merkledrop/contexts/token-distribution/airdrop-claim-service/application"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/ports"
)

type TransferAdministrationCommand struct {
	Caller           string
	NewAdministrator string
	AttachedDeposit  string
	IdempotencyKey   string
}

type AdministratorResult struct {
	Administrator string    `json:"administrator"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type TransferAdministrationUseCase struct {
	Registry       ports.RegistryRepository
	Idempotency    ports.IdempotencyStore
	Clock          ports.Clock
	IdempotencyTTL time.Duration
	Logger         *slog.Logger
}

func (uc TransferAdministrationUseCase) Execute(ctx context.Context, cmd TransferAdministrationCommand) (AdministratorResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	if err := RequireDeposit(cmd.AttachedDeposit); err != nil {
		return AdministratorResult{}, err
	}
	now := nowFrom(uc.Clock)
	request := map[string]any{
		"caller":            strings.TrimSpace(cmd.Caller),
		"new_administrator": strings.TrimSpace(cmd.NewAdministrator),
	}
	return idempotent(ctx, uc.Idempotency, cmd.IdempotencyKey, request, now, uc.IdempotencyTTL, func() (AdministratorResult, error) {
		registry, err := uc.Registry.GetRegistry(ctx)
		if err != nil {
			return AdministratorResult{}, err
		}
		updated, err := registry.TransferAdministration(cmd.Caller, cmd.NewAdministrator, now)
		if err != nil {
			logger.Warn("airdrop administration transfer rejected",
				"event", "airdrop_administration_transfer_rejected",
				"module", moduleName,
				"layer", "application",
				"caller", strings.TrimSpace(cmd.Caller),
				"error", err.Error(),
			)
			return AdministratorResult{}, err
		}
		if err := uc.Registry.SaveRegistry(ctx, updated); err != nil {
			return AdministratorResult{}, err
		}
		logger.Info("airdrop administration transferred",
			"event", "airdrop_administration_transferred",
			"module", moduleName,
			"layer", "application",
			"previous_administrator", registry.Administrator,
			"administrator", updated.Administrator,
		)
		return AdministratorResult{Administrator: updated.Administrator.String(), UpdatedAt: updated.UpdatedAt}, nil
	})
}
