package commands

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "merkledrop/contexts/token-distribution/airdrop-claim-service/application"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/ports"
)

type RotateRootCommand struct {
	Caller          string
	Root            string
	AttachedDeposit string
	IdempotencyKey  string
}

type RootResult struct {
	Root      string    `json:"root"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RotateRootUseCase replaces the committed root. Claims verified against the old
// root keep running; the claimed set is untouched.
type RotateRootUseCase struct {
	Registry       ports.RegistryRepository
	Idempotency    ports.IdempotencyStore
	Clock          ports.Clock
	IdempotencyTTL time.Duration
	Logger         *slog.Logger
}

func (uc RotateRootUseCase) Execute(ctx context.Context, cmd RotateRootCommand) (RootResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	if err := RequireDeposit(cmd.AttachedDeposit); err != nil {
		return RootResult{}, err
	}
	now := nowFrom(uc.Clock)
	request := map[string]any{
		"caller": strings.TrimSpace(cmd.Caller),
		"root":   cmd.Root,
	}
	return idempotent(ctx, uc.Idempotency, cmd.IdempotencyKey, request, now, uc.IdempotencyTTL, func() (RootResult, error) {
		registry, err := uc.Registry.GetRegistry(ctx)
		if err != nil {
			return RootResult{}, err
		}
		previous := registry.CommittedRoot
		updated, err := registry.RotateRoot(cmd.Caller, cmd.Root, now)
		if err != nil {
			logger.Warn("airdrop root rotation rejected",
				"event", "airdrop_root_rotation_rejected",
				"module", moduleName,
				"layer", "application",
				"caller", strings.TrimSpace(cmd.Caller),
				"error", err.Error(),
			)
			return RootResult{}, err
		}
		if err := uc.Registry.SaveRegistry(ctx, updated); err != nil {
			logger.Error("airdrop root rotation persist failed",
				"event", "airdrop_root_rotation_persist_failed",
				"module", moduleName,
				"layer", "application",
				"error", err.Error(),
			)
			return RootResult{}, err
		}
		logger.Info("airdrop root rotated",
			"event", "airdrop_root_rotated",
			"module", moduleName,
			"layer", "application",
			"caller", updated.Administrator,
			"previous_root", previous,
			"root", updated.CommittedRoot,
		)
		return RootResult{Root: updated.CommittedRoot, UpdatedAt: updated.UpdatedAt}, nil
	})
}

func nowFrom(clock ports.Clock) time.Time {
	if clock == nil {
		return time.Now().UTC()
	}
	return clock.Now().UTC()
}
