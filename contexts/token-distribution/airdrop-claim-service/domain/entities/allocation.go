package entities

import (
	"time"

	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/valueobjects"
)

// Allocation is one allow-list entry, managed by the administrator.
type Allocation struct {
	Account   valueobjects.AccountID
	Amount    valueobjects.Amount
	UpdatedAt time.Time
}
