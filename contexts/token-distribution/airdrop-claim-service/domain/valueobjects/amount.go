package valueobjects

import (
	"math/big"
	"strings"

	domainerrors "merkledrop/contexts/token-distribution/airdrop-claim-service/domain/errors"
)

// Amount is a token quantity in the ledger's smallest unit, kept in canonical
// base-10 form because the canonical text is what gets hashed into a leaf.
type Amount string

// ZeroAmount is returned for accounts without an allocation.
const ZeroAmount Amount = "0"

// ParseAmount accepts unsigned base-10 integers only and canonicalizes leading zeros away.
func ParseAmount(raw string) (Amount, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", domainerrors.ErrInvalidClaimRequest
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return "", domainerrors.ErrInvalidClaimRequest
		}
	}
	n, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return "", domainerrors.ErrInvalidClaimRequest
	}
	return Amount(n.String()), nil
}

// ParsePositiveAmount is ParseAmount that also rejects zero.
func ParsePositiveAmount(raw string) (Amount, error) {
	amount, err := ParseAmount(raw)
	if err != nil {
		return "", err
	}
	if !amount.IsPositive() {
		return "", domainerrors.ErrInvalidClaimRequest
	}
	return amount, nil
}

func (a Amount) String() string {
	return string(a)
}

func (a Amount) IsPositive() bool {
	n, ok := new(big.Int).SetString(string(a), 10)
	return ok && n.Sign() > 0
}

// Cmp compares two canonical amounts; malformed values compare as zero.
func (a Amount) Cmp(other Amount) int {
	return a.bigInt().Cmp(other.bigInt())
}

func (a Amount) bigInt() *big.Int {
	n, ok := new(big.Int).SetString(string(a), 10)
	if !ok {
		return new(big.Int)
	}
	return n
}
