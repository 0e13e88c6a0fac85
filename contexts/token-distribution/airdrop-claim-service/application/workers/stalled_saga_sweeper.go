package workers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	application "merkledrop/contexts/token-distribution/airdrop-claim-service/application"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/application/saga"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/entities"
	domainerrors "merkledrop/contexts/token-distribution/airdrop-claim-service/domain/errors"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/ports"
)

const defaultStaleAfter = 10 * time.Minute

// StalledSagaSweeper finds sagas whose continuation never ran, for example after
// a process restart. Sagas stuck before registration are rolled back since no
// value has moved. Sagas waiting for a transfer are rolled back only when a
// failed step was already recorded on them; the rest are reported for the
// ledger receipt consumer or an operator to settle.
type StalledSagaSweeper struct {
	Claims     ports.ClaimRepository
	Payout     saga.Payout
	Clock      ports.Clock
	StaleAfter time.Duration
	BatchSize  int
	Logger     *slog.Logger
}

func (s StalledSagaSweeper) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(s.Logger)
	now := time.Now().UTC()
	if s.Clock != nil {
		now = s.Clock.Now().UTC()
	}
	staleAfter := s.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	limit := s.BatchSize
	if limit <= 0 {
		limit = 100
	}
	cutoff := now.Add(-staleAfter)

	pending, err := s.Claims.ListSagasByStage(ctx, entities.SagaStageAwaitingRegistration, cutoff, limit)
	if err != nil {
		logger.Error("stalled saga sweep failed",
			"event", "airdrop_stalled_saga_sweep_failed",
			"module", moduleName,
			"layer", "worker",
			"stage", entities.SagaStageAwaitingRegistration,
			"error", err.Error(),
		)
		return err
	}
	rolledBack := 0
	for _, item := range pending {
		cause := domainerrors.NewExternalCallError(domainerrors.StageRegistration, domainerrors.ErrLedgerNoResponse)
		if item.RollbackPending() {
			cause = recordedFailure(item)
		}
		if s.compensate(ctx, logger, item, cause) {
			rolledBack++
		}
	}

	unresolved, err := s.Claims.ListSagasByStage(ctx, entities.SagaStageRegisteredAwaitingTransfer, cutoff, limit)
	if err != nil {
		logger.Error("stalled saga sweep failed",
			"event", "airdrop_stalled_saga_sweep_failed",
			"module", moduleName,
			"layer", "worker",
			"stage", entities.SagaStageRegisteredAwaitingTransfer,
			"error", err.Error(),
		)
		return err
	}
	stalled := 0
	for _, item := range unresolved {
		if item.RollbackPending() {
			if s.compensate(ctx, logger, item, recordedFailure(item)) {
				rolledBack++
			}
			continue
		}
		stalled++
		if s.Payout.Metrics != nil {
			s.Payout.Metrics.SagaStalled(string(item.Stage))
		}
		logger.Warn("claim saga awaiting transfer resolution",
			"event", "airdrop_saga_transfer_stalled",
			"module", moduleName,
			"layer", "worker",
			"saga_id", item.SagaID,
			"account", item.Account,
			"amount", item.Amount,
			"updated_at", item.UpdatedAt.Format(time.RFC3339),
		)
	}

	if rolledBack > 0 || stalled > 0 {
		logger.Info("stalled saga sweep completed",
			"event", "airdrop_stalled_saga_sweep_completed",
			"module", moduleName,
			"layer", "worker",
			"rolled_back_count", rolledBack,
			"stalled_transfer_count", stalled,
		)
	}
	return nil
}

// compensate reports whether item ended rolled back. Failures stay for the next pass.
func (s StalledSagaSweeper) compensate(ctx context.Context, logger *slog.Logger, item entities.ClaimSaga, cause error) bool {
	result, err := s.Payout.Compensate(ctx, item, cause)
	if err != nil {
		logger.Warn("stalled saga rollback deferred",
			"event", "airdrop_stalled_saga_rollback_deferred",
			"module", moduleName,
			"layer", "worker",
			"saga_id", item.SagaID,
			"stage", item.Stage,
			"error", err.Error(),
		)
		return false
	}
	return result.Stage == entities.SagaStageRolledBack
}

func recordedFailure(item entities.ClaimSaga) error {
	return domainerrors.NewExternalCallError(item.FailureStage, errors.New(item.FailureReason))
}
