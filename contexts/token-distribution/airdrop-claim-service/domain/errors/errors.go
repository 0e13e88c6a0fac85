package errors

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyClaimed             = errors.New("account has already claimed")
	ErrProofInvalid               = errors.New("merkle proof does not match committed root")
	ErrProofMalformed             = errors.New("merkle proof element is not a 32-byte hex hash")
	ErrUnauthorized               = errors.New("caller is not the administrator")
	ErrExternalCallFailed         = errors.New("external ledger call failed")
	ErrDepositRequired            = errors.New("attached deposit of at least 1 unit is required")
	ErrInvalidClaimRequest        = errors.New("invalid claim request")
	ErrInvalidRoot                = errors.New("root must be 64 lowercase hex characters")
	ErrInvalidAdministrator       = errors.New("administrator identity must not be empty")
	ErrInvalidAllocation          = errors.New("invalid allocation request")
	ErrAllocationNotFound         = errors.New("account is not in the allocation list")
	ErrNothingToClaim             = errors.New("account has no tokens to claim")
	ErrRegistryNotInitialized     = errors.New("registry is not initialized")
	ErrRegistryAlreadyInitialized = errors.New("registry is already initialized")
	ErrSagaNotFound               = errors.New("claim saga not found")
	ErrInvalidSagaTransition      = errors.New("invalid claim saga transition")
	ErrAlreadyRegistered          = errors.New("recipient already registered with ledger")
	ErrLedgerNoResponse           = errors.New("ledger call did not resolve")
	ErrIdempotencyKeyConflict     = errors.New("idempotency key reused with different request")
	ErrRepositoryInvariantBroke   = errors.New("repository invariant violated")
)

// Stage names the saga step whose external call failed.
type Stage string

const (
	StageRegistration Stage = "registration"
	StageTransfer     Stage = "transfer"
)

// ExternalCallError carries the failing saga step. It matches ErrExternalCallFailed
// through errors.Is.
type ExternalCallError struct {
	Stage Stage
	Err   error
}

func NewExternalCallError(stage Stage, err error) *ExternalCallError {
	return &ExternalCallError{Stage: stage, Err: err}
}

func (e *ExternalCallError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrExternalCallFailed.Error(), e.Stage)
	}
	return fmt.Sprintf("%s: %s: %v", ErrExternalCallFailed.Error(), e.Stage, e.Err)
}

func (e *ExternalCallError) Is(target error) bool {
	return target == ErrExternalCallFailed
}

func (e *ExternalCallError) Unwrap() error {
	return e.Err
}
