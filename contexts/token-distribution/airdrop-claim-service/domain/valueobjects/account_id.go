package valueobjects

import (
	"strings"

	domainerrors "merkledrop/contexts/token-distribution/airdrop-claim-service/domain/errors"
)

// AccountID is a recipient or administrator identity. Namespace rules belong to
// the host platform; only emptiness and the leaf separator are rejected here.
type AccountID string

func NewAccountID(v string) (AccountID, error) {
	value := strings.TrimSpace(v)
	if value == "" || strings.Contains(value, ":") {
		return "", domainerrors.ErrInvalidClaimRequest
	}
	return AccountID(value), nil
}

func (a AccountID) String() string {
	return string(a)
}
