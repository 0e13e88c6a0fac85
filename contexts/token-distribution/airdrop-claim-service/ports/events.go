package ports

import "encoding/json"

const (
	SourceService        = "airdrop-claim-service"
	ClaimEventPartition  = "account"
	ClaimEventSchemaV1   = 1
	LedgerReceiptTopic   = "ledger.transfer.receipts"
	LedgerReceiptSuccess = "succeeded"
	LedgerReceiptFailure = "failed"
)

// ClaimSettledData is the data block of airdrop.claim.* envelopes.
type ClaimSettledData struct {
	SagaID          string `json:"saga_id"`
	Account         string `json:"account"`
	Amount          string `json:"amount"`
	LedgerReference string `json:"ledger_reference"`
	Source          string `json:"source"`
	Stage           string `json:"stage"`
	FailureStage    string `json:"failure_stage,omitempty"`
	FailureReason   string `json:"failure_reason,omitempty"`
}

// LedgerReceiptData is the data block of a ledger transfer receipt. SagaID is the
// memo the transfer was sent with.
type LedgerReceiptData struct {
	SagaID string `json:"saga_id"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// NewClaimSettledEnvelope renders the outbox payload both repositories store.
func NewClaimSettledEnvelope(event ClaimSettledEvent) (EventEnvelope, error) {
	data, err := json.Marshal(ClaimSettledData{
		SagaID:          event.SagaID,
		Account:         event.Account,
		Amount:          event.Amount,
		LedgerReference: event.LedgerReference,
		Source:          event.Source,
		Stage:           event.Stage,
		FailureStage:    event.FailureStage,
		FailureReason:   event.FailureReason,
	})
	if err != nil {
		return EventEnvelope{}, err
	}
	return EventEnvelope{
		EventID:          event.EventID,
		EventType:        event.EventType,
		OccurredAt:       event.OccurredAt.UTC(),
		SourceService:    SourceService,
		SchemaVersion:    ClaimEventSchemaV1,
		PartitionKeyPath: ClaimEventPartition,
		PartitionKey:     event.PartitionKey,
		Data:             data,
	}, nil
}
