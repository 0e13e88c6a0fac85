package saga

import (
	"context"
	"errors"
	"log/slog"
	"time"

	application "merkledrop/contexts/token-distribution/airdrop-claim-service/application"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/entities"
	domainerrors "merkledrop/contexts/token-distribution/airdrop-claim-service/domain/errors"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/ports"
)

const (
	EventTypeClaimCompleted  = "airdrop.claim.completed"
	EventTypeClaimRolledBack = "airdrop.claim.rolled_back"

	DefaultRegistrationCollateral = "1250000000000000000000"
	DefaultTransferFee            = "1"

	moduleName = "token-distribution/airdrop-claim-service"
)

// Payout drives one claim through registration and transfer with the ledger.
//
// awaiting_registration --register ok--> registered_awaiting_transfer --transfer ok--> completed
// awaiting_registration --register failed/timed out--> rolled_back
// registered_awaiting_transfer --transfer failed--> rolled_back
//
// A transfer that never answers is left in registered_awaiting_transfer: rolling it
// back could release the claim while tokens are on their way.
//
// The continuations return the saga as last persisted. A non-nil error means the
// outcome was not written and the caller must retry it later; a stale continuation
// returns ErrInvalidSagaTransition.
type Payout struct {
	Claims                 ports.ClaimRepository
	Ledger                 ports.Ledger
	Metrics                ports.SagaMetrics
	Clock                  ports.Clock
	IDGenerator            ports.IDGenerator
	RegistrationCollateral string
	TransferFee            string
	RegistrationTimeout    time.Duration
	TransferTimeout        time.Duration
	Logger                 *slog.Logger
}

// Run issues both ledger calls in order and returns the saga as last persisted.
func (p Payout) Run(ctx context.Context, saga entities.ClaimSaga) (entities.ClaimSaga, error) {
	logger := application.ResolveLogger(p.Logger)
	logger.Info("claim saga registering recipient",
		"event", "airdrop_saga_registration_requested",
		"module", moduleName,
		"layer", "application",
		"saga_id", saga.SagaID,
		"account", saga.Account,
	)

	callCtx, cancel := withTimeout(ctx, p.RegistrationTimeout)
	err := p.Ledger.RegisterRecipient(callCtx, ports.RegisterRecipientRequest{
		LedgerAccount: saga.LedgerReference.String(),
		Account:       saga.Account.String(),
		Collateral:    p.collateral(),
	})
	cancel()

	saga, err = p.OnRegistration(ctx, saga, err)
	if err != nil || saga.Stage != entities.SagaStageRegisteredAwaitingTransfer {
		return saga, err
	}

	callCtx, cancel = withTimeout(ctx, p.TransferTimeout)
	err = p.Ledger.Transfer(callCtx, ports.TransferRequest{
		LedgerAccount: saga.LedgerReference.String(),
		Recipient:     saga.Account.String(),
		Amount:        saga.Amount.String(),
		Memo:          saga.SagaID,
		AttachedFee:   p.fee(),
	})
	cancel()

	return p.OnTransfer(ctx, saga, err)
}

// OnRegistration is the continuation for the register-recipient response.
func (p Payout) OnRegistration(ctx context.Context, saga entities.ClaimSaga, callErr error) (entities.ClaimSaga, error) {
	logger := application.ResolveLogger(p.Logger)
	if callErr != nil && !errors.Is(callErr, domainerrors.ErrAlreadyRegistered) {
		return p.Compensate(ctx, saga, domainerrors.NewExternalCallError(domainerrors.StageRegistration, callErr))
	}

	from := saga.Stage
	next, err := saga.Advance(entities.SagaStageRegisteredAwaitingTransfer, p.now())
	if err != nil {
		logger.Error("claim saga registration transition rejected",
			"event", "airdrop_saga_registration_transition_rejected",
			"module", moduleName,
			"layer", "application",
			"saga_id", saga.SagaID,
			"stage", saga.Stage,
			"error", err.Error(),
		)
		return saga, err
	}
	if err := p.Claims.UpdateSaga(ctx, next, from); err != nil {
		logger.Error("claim saga registration persist failed",
			"event", "airdrop_saga_registration_persist_failed",
			"module", moduleName,
			"layer", "application",
			"saga_id", saga.SagaID,
			"error", err.Error(),
		)
		if errors.Is(err, domainerrors.ErrInvalidSagaTransition) {
			return saga, err
		}
		// Nothing has moved yet, so giving the claim back is safe.
		return p.Compensate(ctx, saga, domainerrors.NewExternalCallError(domainerrors.StageRegistration, err))
	}

	logger.Info("claim saga recipient registered",
		"event", "airdrop_saga_registered",
		"module", moduleName,
		"layer", "application",
		"saga_id", next.SagaID,
		"account", next.Account,
		"already_registered", errors.Is(callErr, domainerrors.ErrAlreadyRegistered),
	)
	return next, nil
}

// OnTransfer is the continuation for the transfer response.
func (p Payout) OnTransfer(ctx context.Context, saga entities.ClaimSaga, callErr error) (entities.ClaimSaga, error) {
	logger := application.ResolveLogger(p.Logger)
	if callErr == nil {
		return p.Complete(ctx, saga)
	}
	if isNoResponse(callErr) {
		p.metrics().SagaStalled(string(saga.Stage))
		logger.Warn("claim saga transfer unresolved",
			"event", "airdrop_saga_transfer_unresolved",
			"module", moduleName,
			"layer", "application",
			"saga_id", saga.SagaID,
			"account", saga.Account,
			"error", callErr.Error(),
		)
		return saga, nil
	}
	return p.Compensate(ctx, saga, domainerrors.NewExternalCallError(domainerrors.StageTransfer, callErr))
}

// Complete commits a successful transfer. The account stays claimed for good.
func (p Payout) Complete(ctx context.Context, saga entities.ClaimSaga) (entities.ClaimSaga, error) {
	logger := application.ResolveLogger(p.Logger)
	from := saga.Stage
	completed, err := saga.Advance(entities.SagaStageCompleted, p.now())
	if err != nil {
		logger.Error("claim saga completion transition rejected",
			"event", "airdrop_saga_complete_transition_rejected",
			"module", moduleName,
			"layer", "application",
			"saga_id", saga.SagaID,
			"stage", saga.Stage,
		)
		return saga, err
	}

	event, err := p.settledEvent(ctx, completed, EventTypeClaimCompleted)
	if err == nil {
		err = p.Claims.CompleteClaim(ctx, completed, from, event)
	}
	if err != nil {
		// Tokens moved; the account must stay claimed even though the record lags.
		if !errors.Is(err, domainerrors.ErrInvalidSagaTransition) {
			p.metrics().SagaStalled(string(saga.Stage))
		}
		logger.Error("claim saga completion persist failed",
			"event", "airdrop_saga_complete_persist_failed",
			"module", moduleName,
			"layer", "application",
			"saga_id", saga.SagaID,
			"account", saga.Account,
			"error", err.Error(),
		)
		return saga, err
	}

	p.metrics().SagaCompleted(string(completed.Source))
	logger.Info("claim saga completed",
		"event", "airdrop_saga_completed",
		"module", moduleName,
		"layer", "application",
		"saga_id", completed.SagaID,
		"account", completed.Account,
		"amount", completed.Amount,
		"ledger_reference", completed.LedgerReference,
	)
	return completed, nil
}

// Compensate removes the account from the claimed set and ends the saga rolled back.
// cause should be an *ExternalCallError naming the failed step.
//
// When the rollback cannot be written, the failure is recorded on the still-open
// saga so the sweeper can finish the rollback later.
func (p Payout) Compensate(ctx context.Context, saga entities.ClaimSaga, cause error) (entities.ClaimSaga, error) {
	logger := application.ResolveLogger(p.Logger)
	stage := domainerrors.StageRegistration
	var callErr *domainerrors.ExternalCallError
	if errors.As(cause, &callErr) {
		stage = callErr.Stage
	}
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	if saga.RollbackPending() {
		stage, reason = saga.FailureStage, saga.FailureReason
	}

	from := saga.Stage
	failed, err := saga.Fail(stage, reason, p.now())
	if err != nil {
		logger.Error("claim saga rollback transition rejected",
			"event", "airdrop_saga_rollback_transition_rejected",
			"module", moduleName,
			"layer", "application",
			"saga_id", saga.SagaID,
			"stage", saga.Stage,
		)
		return saga, err
	}

	event, err := p.settledEvent(ctx, failed, EventTypeClaimRolledBack)
	if err == nil {
		err = p.Claims.RollbackClaim(ctx, failed, from, event)
	}
	if errors.Is(err, domainerrors.ErrInvalidSagaTransition) {
		logger.Warn("claim saga rollback skipped for settled saga",
			"event", "airdrop_saga_rollback_stale",
			"module", moduleName,
			"layer", "application",
			"saga_id", saga.SagaID,
			"account", saga.Account,
		)
		return saga, err
	}
	if err != nil {
		p.metrics().SagaStalled(string(saga.Stage))
		logger.Error("claim saga rollback persist failed",
			"event", "airdrop_saga_rollback_persist_failed",
			"module", moduleName,
			"layer", "application",
			"saga_id", saga.SagaID,
			"account", saga.Account,
			"failure_stage", stage,
			"error", err.Error(),
		)
		return p.markRollbackPending(ctx, saga, stage, reason), err
	}

	p.metrics().SagaRolledBack(string(stage))
	logger.Warn("claim saga rolled back",
		"event", "airdrop_saga_rolled_back",
		"module", moduleName,
		"layer", "application",
		"saga_id", failed.SagaID,
		"account", failed.Account,
		"failure_stage", stage,
		"reason", reason,
	)
	return failed, nil
}

// markRollbackPending stores the failure on the open saga without moving its stage.
func (p Payout) markRollbackPending(ctx context.Context, saga entities.ClaimSaga, stage domainerrors.Stage, reason string) entities.ClaimSaga {
	marked := saga.RecordFailure(stage, reason, p.now())
	if err := p.Claims.UpdateSaga(ctx, marked, saga.Stage); err != nil {
		application.ResolveLogger(p.Logger).Error("claim saga rollback marker persist failed",
			"event", "airdrop_saga_rollback_marker_failed",
			"module", moduleName,
			"layer", "application",
			"saga_id", saga.SagaID,
			"error", err.Error(),
		)
		return saga
	}
	return marked
}

func (p Payout) settledEvent(ctx context.Context, saga entities.ClaimSaga, eventType string) (ports.ClaimSettledEvent, error) {
	eventID, err := p.IDGenerator.NewID(ctx)
	if err != nil {
		return ports.ClaimSettledEvent{}, err
	}
	return ports.ClaimSettledEvent{
		EventID:         eventID,
		EventType:       eventType,
		SagaID:          saga.SagaID,
		Account:         saga.Account.String(),
		Amount:          saga.Amount.String(),
		LedgerReference: saga.LedgerReference.String(),
		Source:          string(saga.Source),
		Stage:           string(saga.Stage),
		FailureStage:    string(saga.FailureStage),
		FailureReason:   saga.FailureReason,
		PartitionKey:    saga.Account.String(),
		OccurredAt:      saga.UpdatedAt,
	}, nil
}

func (p Payout) metrics() ports.SagaMetrics {
	if p.Metrics == nil {
		return NoopMetrics{}
	}
	return p.Metrics
}

func (p Payout) collateral() string {
	if p.RegistrationCollateral == "" {
		return DefaultRegistrationCollateral
	}
	return p.RegistrationCollateral
}

func (p Payout) fee() string {
	if p.TransferFee == "" {
		return DefaultTransferFee
	}
	return p.TransferFee
}

func (p Payout) now() time.Time {
	if p.Clock == nil {
		return time.Now().UTC()
	}
	return p.Clock.Now().UTC()
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func isNoResponse(err error) bool {
	return errors.Is(err, domainerrors.ErrLedgerNoResponse) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

// NoopMetrics discards saga metrics.
type NoopMetrics struct{}

func (NoopMetrics) ClaimRejected(string)  {}
func (NoopMetrics) SagaStarted(string)    {}
func (NoopMetrics) SagaCompleted(string)  {}
func (NoopMetrics) SagaRolledBack(string) {}
func (NoopMetrics) SagaStalled(string)    {}
