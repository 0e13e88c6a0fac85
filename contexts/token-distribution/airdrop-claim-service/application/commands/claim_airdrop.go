package commands

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "merkledrop/contexts/token-distribution/airdrop-claim-service/application"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/application/saga"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/entities"
	domainerrors "merkledrop/contexts/token-distribution/airdrop-claim-service/domain/errors"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/merkle"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/services"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/valueobjects"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/ports"
)

const (
	moduleName            = "token-distribution/airdrop-claim-service"
	DefaultMaxProofLength = 64
)

type ClaimAirdropCommand struct {
	Account         string
	Amount          string
	Proof           []string
	AttachedDeposit string
}

// ClaimOutcome is returned once the claim is accepted. Stage is the stage the saga
// was persisted in at acceptance; poll the saga for the payout result.
type ClaimOutcome struct {
	SagaID  string
	Account string
	Amount  string
	Stage   entities.SagaStage
}

type ClaimAirdropUseCase struct {
	Registry       ports.RegistryRepository
	Claims         ports.ClaimRepository
	Verifier       merkle.Verifier
	Payout         saga.Payout
	Dispatcher     ports.Dispatcher
	Clock          ports.Clock
	IDGenerator    ports.IDGenerator
	MaxProofLength int
	Logger         *slog.Logger
}

func (uc ClaimAirdropUseCase) Execute(ctx context.Context, cmd ClaimAirdropCommand) (ClaimOutcome, error) {
	logger := application.ResolveLogger(uc.Logger)
	if err := RequireDeposit(cmd.AttachedDeposit); err != nil {
		uc.rejected("deposit_required")
		return ClaimOutcome{}, err
	}
	account, err := valueobjects.NewAccountID(cmd.Account)
	if err != nil {
		uc.rejected("invalid_request")
		return ClaimOutcome{}, err
	}
	amount, err := valueobjects.ParsePositiveAmount(cmd.Amount)
	if err != nil {
		uc.rejected("invalid_request")
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
	if err := services.EvaluateMerkleClaim(
		registry,
		claimed,
		account,
		amount,
		cmd.Proof,
		uc.Verifier,
		uc.maxProofLength(),
	); err != nil {
		uc.rejected(rejectionReason(err))
		logger.Warn("airdrop claim rejected",
			"event", "airdrop_claim_rejected",
			"module", moduleName,
			"layer", "application",
			"account", account,
			"amount", amount,
			"proof_length", len(cmd.Proof),
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
	}, account, amount, registry, entities.ClaimSourceMerkle)
}

func (uc ClaimAirdropUseCase) maxProofLength() int {
	if uc.MaxProofLength <= 0 {
		return DefaultMaxProofLength
	}
	return uc.MaxProofLength
}

func (uc ClaimAirdropUseCase) rejected(reason string) {
	if uc.Payout.Metrics != nil {
		uc.Payout.Metrics.ClaimRejected(reason)
	}
}

// RequireDeposit enforces the attached-deposit convention of every mutating
// entry point.
func RequireDeposit(raw string) error {
	deposit, err := valueobjects.ParseAmount(raw)
	if err != nil || !deposit.IsPositive() {
		return domainerrors.ErrDepositRequired
	}
	return nil
}

type claimStarter struct {
	Claims      ports.ClaimRepository
	Payout      saga.Payout
	Dispatcher  ports.Dispatcher
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Metrics     ports.SagaMetrics
	Logger      *slog.Logger
}

// startClaim claims the account, persists the saga and hands the payout to the
// dispatcher. Nothing is sent to the ledger before BeginClaim succeeds.
func startClaim(
	ctx context.Context,
	starter claimStarter,
	account valueobjects.AccountID,
	amount valueobjects.Amount,
	registry entities.Registry,
	source entities.ClaimSource,
) (ClaimOutcome, error) {
	logger := starter.Logger
	now := time.Now().UTC()
	if starter.Clock != nil {
		now = starter.Clock.Now().UTC()
	}
	sagaID, err := starter.IDGenerator.NewID(ctx)
	if err != nil {
		logger.Error("airdrop claim id generation failed",
			"event", "airdrop_claim_id_generation_failed",
			"module", moduleName,
			"layer", "application",
			"account", account,
			"error", err.Error(),
		)
		return ClaimOutcome{}, err
	}
	claim, err := entities.NewClaimSaga(
		strings.TrimSpace(sagaID),
		account,
		amount,
		registry.CommittedRoot,
		registry.LedgerReference,
		source,
		now,
	)
	if err != nil {
		return ClaimOutcome{}, err
	}
	claim, err = claim.Advance(entities.SagaStageAwaitingRegistration, now)
	if err != nil {
		return ClaimOutcome{}, err
	}

	if err := starter.Claims.BeginClaim(ctx, claim); err != nil {
		if errors.Is(err, domainerrors.ErrAlreadyClaimed) {
			if starter.Metrics != nil {
				starter.Metrics.ClaimRejected("already_claimed")
			}
			logger.Warn("airdrop claim lost the claimed-set race",
				"event", "airdrop_claim_already_claimed",
				"module", moduleName,
				"layer", "application",
				"account", account,
				"source", source,
			)
			return ClaimOutcome{}, err
		}
		logger.Error("airdrop claim begin failed",
			"event", "airdrop_claim_begin_failed",
			"module", moduleName,
			"layer", "application",
			"account", account,
			"saga_id", claim.SagaID,
			"error", err.Error(),
		)
		return ClaimOutcome{}, err
	}
	if starter.Metrics != nil {
		starter.Metrics.SagaStarted(string(source))
	}

	payout := starter.Payout
	if err := starter.Dispatcher.Dispatch(func(taskCtx context.Context) {
		if result, err := payout.Run(taskCtx, claim); err != nil {
			logger.Warn("airdrop claim payout left for the sweeper",
				"event", "airdrop_claim_payout_unsettled",
				"module", moduleName,
				"layer", "application",
				"saga_id", result.SagaID,
				"stage", result.Stage,
				"error", err.Error(),
			)
		}
	}); err != nil {
		// The payout never started, so the claimed entry is released right away.
		failed, _ := payout.Compensate(ctx, claim, domainerrors.NewExternalCallError(domainerrors.StageRegistration, err))
		logger.Error("airdrop claim dispatch failed",
			"event", "airdrop_claim_dispatch_failed",
			"module", moduleName,
			"layer", "application",
			"account", account,
			"saga_id", claim.SagaID,
			"stage", failed.Stage,
			"error", err.Error(),
		)
		return ClaimOutcome{}, domainerrors.NewExternalCallError(domainerrors.StageRegistration, err)
	}

	logger.Info("airdrop claim accepted",
		"event", "airdrop_claim_accepted",
		"module", moduleName,
		"layer", "application",
		"account", account,
		"amount", amount,
		"saga_id", claim.SagaID,
		"source", source,
		"root", claim.Root,
	)
	return ClaimOutcome{
		SagaID:  claim.SagaID,
		Account: account.String(),
		Amount:  amount.String(),
		Stage:   claim.Stage,
	}, nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domainerrors.ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, domainerrors.ErrProofMalformed):
		return "proof_malformed"
	case errors.Is(err, domainerrors.ErrProofInvalid):
		return "proof_invalid"
	case errors.Is(err, domainerrors.ErrNothingToClaim):
		return "nothing_to_claim"
	default:
		return "invalid_request"
	}
}
