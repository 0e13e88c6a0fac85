package entities

import (
	"encoding/hex"
	"strings"
	"time"

	domainerrors "merkledrop/contexts/token-distribution/airdrop-claim-service/domain/errors"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/valueobjects"
)

// Registry is the long-lived airdrop state. The claimed set lives beside it in the
// claim repository so that entries are independent keys.
type Registry struct {
	AirdropID       string
	Administrator   valueobjects.AccountID
	LedgerReference valueobjects.AccountID
	CommittedRoot   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func NewRegistry(
	airdropID string,
	administrator string,
	ledgerReference string,
	root string,
	now time.Time,
) (Registry, error) {
	admin, err := valueobjects.NewAccountID(administrator)
	if err != nil {
		return Registry{}, domainerrors.ErrInvalidAdministrator
	}
	ledger, err := valueobjects.NewAccountID(ledgerReference)
	if err != nil {
		return Registry{}, domainerrors.ErrInvalidClaimRequest
	}
	if err := ValidateRoot(root); err != nil {
		return Registry{}, err
	}
	if strings.TrimSpace(airdropID) == "" {
		return Registry{}, domainerrors.ErrInvalidClaimRequest
	}
	return Registry{
		AirdropID:       airdropID,
		Administrator:   admin,
		LedgerReference: ledger,
		CommittedRoot:   root,
		CreatedAt:       now.UTC(),
		UpdatedAt:       now.UTC(),
	}, nil
}

// Authorize is the single administrative gate.
func (r Registry) Authorize(caller string) error {
	if strings.TrimSpace(caller) == "" || valueobjects.AccountID(strings.TrimSpace(caller)) != r.Administrator {
		return domainerrors.ErrUnauthorized
	}
	return nil
}

func (r Registry) RotateRoot(caller string, root string, now time.Time) (Registry, error) {
	if err := r.Authorize(caller); err != nil {
		return r, err
	}
	if err := ValidateRoot(root); err != nil {
		return r, err
	}
	r.CommittedRoot = root
	r.UpdatedAt = now.UTC()
	return r, nil
}

func (r Registry) TransferAdministration(caller string, next string, now time.Time) (Registry, error) {
	if err := r.Authorize(caller); err != nil {
		return r, err
	}
	admin, err := valueobjects.NewAccountID(next)
	if err != nil {
		return r, domainerrors.ErrInvalidAdministrator
	}
	r.Administrator = admin
	r.UpdatedAt = now.UTC()
	return r, nil
}

// ValidateRoot requires the canonical lowercase hex of a 32-byte hash. Verification
// compares strings exactly, so an uppercase root could never match.
func ValidateRoot(root string) error {
	if len(root) != 64 || strings.ToLower(root) != root {
		return domainerrors.ErrInvalidRoot
	}
	if _, err := hex.DecodeString(root); err != nil {
		return domainerrors.ErrInvalidRoot
	}
	return nil
}
