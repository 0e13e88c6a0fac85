package entities

import (
	"strings"
	"time"

	domainerrors "merkledrop/contexts/token-distribution/airdrop-claim-service/domain/errors"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/valueobjects"
)

type SagaStage string

const (
	SagaStageVerified                   SagaStage = "verified"
	SagaStageAwaitingRegistration       SagaStage = "awaiting_registration"
	SagaStageRegisteredAwaitingTransfer SagaStage = "registered_awaiting_transfer"
	SagaStageCompleted                  SagaStage = "completed"
	SagaStageRolledBack                 SagaStage = "rolled_back"
)

// ClaimSource distinguishes Merkle-proof claims from allow-list claims.
type ClaimSource string

const (
	ClaimSourceMerkle    ClaimSource = "merkle"
	ClaimSourceAllowlist ClaimSource = "allowlist"
)

var sagaTransitions = map[SagaStage][]SagaStage{
	SagaStageVerified:                   {SagaStageAwaitingRegistration, SagaStageRolledBack},
	SagaStageAwaitingRegistration:       {SagaStageRegisteredAwaitingTransfer, SagaStageRolledBack},
	SagaStageRegisteredAwaitingTransfer: {SagaStageCompleted, SagaStageRolledBack},
}

func (s SagaStage) IsTerminal() bool {
	return s == SagaStageCompleted || s == SagaStageRolledBack
}

// CanTransition reports whether the payout state machine allows s -> next.
func (s SagaStage) CanTransition(next SagaStage) bool {
	for _, allowed := range sagaTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ClaimSaga is the payout of one claim. While it is not terminal the account is
// held in the claimed set.
type ClaimSaga struct {
	SagaID          string
	Account         valueobjects.AccountID
	Amount          valueobjects.Amount
	Root            string
	LedgerReference valueobjects.AccountID
	Source          ClaimSource
	Stage           SagaStage
	FailureStage    domainerrors.Stage
	FailureReason   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func NewClaimSaga(
	sagaID string,
	account valueobjects.AccountID,
	amount valueobjects.Amount,
	root string,
	ledgerReference valueobjects.AccountID,
	source ClaimSource,
	now time.Time,
) (ClaimSaga, error) {
	if strings.TrimSpace(sagaID) == "" || account == "" || ledgerReference == "" || !amount.IsPositive() {
		return ClaimSaga{}, domainerrors.ErrInvalidClaimRequest
	}
	if source != ClaimSourceMerkle && source != ClaimSourceAllowlist {
		return ClaimSaga{}, domainerrors.ErrInvalidClaimRequest
	}
	return ClaimSaga{
		SagaID:          sagaID,
		Account:         account,
		Amount:          amount,
		Root:            root,
		LedgerReference: ledgerReference,
		Source:          source,
		Stage:           SagaStageVerified,
		CreatedAt:       now.UTC(),
		UpdatedAt:       now.UTC(),
	}, nil
}

// Advance moves the saga forward. Rolling back goes through Fail.
func (s ClaimSaga) Advance(next SagaStage, now time.Time) (ClaimSaga, error) {
	if next == SagaStageRolledBack || !s.Stage.CanTransition(next) {
		return s, domainerrors.ErrInvalidSagaTransition
	}
	s.Stage = next
	s.UpdatedAt = now.UTC()
	return s, nil
}

// Fail moves the saga to rolled_back and records which step failed.
func (s ClaimSaga) Fail(stage domainerrors.Stage, reason string, now time.Time) (ClaimSaga, error) {
	if !s.Stage.CanTransition(SagaStageRolledBack) {
		return s, domainerrors.ErrInvalidSagaTransition
	}
	s.Stage = SagaStageRolledBack
	s.FailureStage = stage
	s.FailureReason = reason
	s.UpdatedAt = now.UTC()
	return s, nil
}

// RecordFailure notes a failed step on an open saga whose rollback could not be
// written yet. The stage does not change.
func (s ClaimSaga) RecordFailure(stage domainerrors.Stage, reason string, now time.Time) ClaimSaga {
	s.FailureStage = stage
	s.FailureReason = reason
	s.UpdatedAt = now.UTC()
	return s
}

// RollbackPending is true for an open saga that already recorded a failed step.
func (s ClaimSaga) RollbackPending() bool {
	return !s.Stage.IsTerminal() && s.FailureStage != ""
}

// HoldsClaim reports whether this saga keeps its account in the claimed set.
func (s ClaimSaga) HoldsClaim() bool {
	return s.Stage != SagaStageRolledBack
}
