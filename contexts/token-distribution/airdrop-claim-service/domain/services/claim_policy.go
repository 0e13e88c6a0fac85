package services

import (
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/entities"
	domainerrors "merkledrop/contexts/token-distribution/airdrop-claim-service/domain/errors"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/merkle"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/valueobjects"
)

// EvaluateMerkleClaim applies the synchronous claim preconditions. Membership is
// checked before the proof so that a claimed account gets ErrAlreadyClaimed no
// matter what proof it sends.
func EvaluateMerkleClaim(
	registry entities.Registry,
	alreadyClaimed bool,
	account valueobjects.AccountID,
	amount valueobjects.Amount,
	proof []string,
	verifier merkle.Verifier,
	maxProofLength int,
) error {
	if alreadyClaimed {
		return domainerrors.ErrAlreadyClaimed
	}
	if maxProofLength > 0 && len(proof) > maxProofLength {
		return domainerrors.ErrInvalidClaimRequest
	}
	ok, err := verifier.Verify(
		merkle.LeafInput(account.String(), amount.String()),
		registry.CommittedRoot,
		proof,
	)
	if err != nil {
		return err
	}
	if !ok {
		return domainerrors.ErrProofInvalid
	}
	return nil
}

// EvaluateAllocationClaim is the allow-list counterpart of EvaluateMerkleClaim.
func EvaluateAllocationClaim(alreadyClaimed bool, allocation entities.Allocation, found bool) error {
	if alreadyClaimed {
		return domainerrors.ErrAlreadyClaimed
	}
	if !found || !allocation.Amount.IsPositive() {
		return domainerrors.ErrNothingToClaim
	}
	return nil
}
