package postgresadapter

import (
	"time"

	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/entities"
	domainerrors "merkledrop/contexts/token-distribution/airdrop-claim-service/domain/errors"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/valueobjects"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/ports"
)

type registryModel struct {
	AirdropID       string    `gorm:"column:airdrop_id;primaryKey"`
	Administrator   string    `gorm:"column:administrator;not null"`
	LedgerReference string    `gorm:"column:ledger_reference;not null"`
	CommittedRoot   string    `gorm:"column:committed_root;type:char(64);not null"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
}

func (registryModel) TableName() string {
	return "airdrop_registries"
}

func registryModelFromEntity(registry entities.Registry) registryModel {
	return registryModel{
		AirdropID:       registry.AirdropID,
		Administrator:   registry.Administrator.String(),
		LedgerReference: registry.LedgerReference.String(),
		CommittedRoot:   registry.CommittedRoot,
		CreatedAt:       registry.CreatedAt.UTC(),
		UpdatedAt:       registry.UpdatedAt.UTC(),
	}
}

func (m registryModel) toEntity() entities.Registry {
	return entities.Registry{
		AirdropID:       m.AirdropID,
		Administrator:   valueobjects.AccountID(m.Administrator),
		LedgerReference: valueobjects.AccountID(m.LedgerReference),
		CommittedRoot:   m.CommittedRoot,
		CreatedAt:       m.CreatedAt.UTC(),
		UpdatedAt:       m.UpdatedAt.UTC(),
	}
}

// claimedModel is one claimed-set entry. A row exists while its saga holds the claim.
type claimedModel struct {
	AirdropID string    `gorm:"column:airdrop_id;primaryKey"`
	Account   string    `gorm:"column:account;primaryKey"`
	SagaID    string    `gorm:"column:saga_id;not null"`
	ClaimedAt time.Time `gorm:"column:claimed_at"`
}

func (claimedModel) TableName() string {
	return "airdrop_claimed_accounts"
}

type sagaModel struct {
	SagaID          string    `gorm:"column:saga_id;primaryKey"`
	AirdropID       string    `gorm:"column:airdrop_id;index:airdrop_sagas_stage_idx,priority:1"`
	Account         string    `gorm:"column:account;index"`
	Amount          string    `gorm:"column:amount;type:numeric(78,0)"`
	Root            string    `gorm:"column:root"`
	LedgerReference string    `gorm:"column:ledger_reference"`
	Source          string    `gorm:"column:source"`
	Stage           string    `gorm:"column:stage;index:airdrop_sagas_stage_idx,priority:2"`
	FailureStage    string    `gorm:"column:failure_stage"`
	FailureReason   string    `gorm:"column:failure_reason"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at;index:airdrop_sagas_stage_idx,priority:3"`
}

func (sagaModel) TableName() string {
	return "airdrop_claim_sagas"
}

func sagaModelFromEntity(saga entities.ClaimSaga) sagaModel {
	return sagaModel{
		SagaID:          saga.SagaID,
		Account:         saga.Account.String(),
		Amount:          saga.Amount.String(),
		Root:            saga.Root,
		LedgerReference: saga.LedgerReference.String(),
		Source:          string(saga.Source),
		Stage:           string(saga.Stage),
		FailureStage:    string(saga.FailureStage),
		FailureReason:   saga.FailureReason,
		CreatedAt:       saga.CreatedAt.UTC(),
		UpdatedAt:       saga.UpdatedAt.UTC(),
	}
}

func (m sagaModel) toEntity() entities.ClaimSaga {
	return entities.ClaimSaga{
		SagaID:          m.SagaID,
		Account:         valueobjects.AccountID(m.Account),
		Amount:          valueobjects.Amount(m.Amount),
		Root:            m.Root,
		LedgerReference: valueobjects.AccountID(m.LedgerReference),
		Source:          entities.ClaimSource(m.Source),
		Stage:           entities.SagaStage(m.Stage),
		FailureStage:    domainerrors.Stage(m.FailureStage),
		FailureReason:   m.FailureReason,
		CreatedAt:       m.CreatedAt.UTC(),
		UpdatedAt:       m.UpdatedAt.UTC(),
	}
}

type allocationModel struct {
	AirdropID string    `gorm:"column:airdrop_id;primaryKey"`
	Account   string    `gorm:"column:account;primaryKey"`
	Amount    string    `gorm:"column:amount;type:numeric(78,0)"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (allocationModel) TableName() string {
	return "airdrop_allocations"
}

func (m allocationModel) toEntity() entities.Allocation {
	return entities.Allocation{
		Account:   valueobjects.AccountID(m.Account),
		Amount:    valueobjects.Amount(m.Amount),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

type idempotencyModel struct {
	AirdropID   string    `gorm:"column:airdrop_id;primaryKey"`
	Key         string    `gorm:"column:key;primaryKey"`
	RequestHash string    `gorm:"column:request_hash"`
	Response    []byte    `gorm:"column:response"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
}

func (idempotencyModel) TableName() string {
	return "airdrop_idempotency"
}

func (m idempotencyModel) toPort() ports.IdempotencyRecord {
	return ports.IdempotencyRecord{
		Key:         m.Key,
		RequestHash: m.RequestHash,
		Response:    append([]byte(nil), m.Response...),
		ExpiresAt:   m.ExpiresAt.UTC(),
	}
}

type outboxModel struct {
	AirdropID    string     `gorm:"column:airdrop_id;primaryKey;index:airdrop_outbox_pending_idx,priority:1"`
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status;index:airdrop_outbox_pending_idx,priority:2"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	SentAt       *time.Time `gorm:"column:sent_at"`
}

func (outboxModel) TableName() string {
	return "airdrop_outbox"
}

func (m outboxModel) toPort() ports.OutboxMessage {
	return ports.OutboxMessage{
		OutboxID:     m.OutboxID,
		EventType:    m.EventType,
		PartitionKey: m.PartitionKey,
		Payload:      append([]byte(nil), m.Payload...),
		CreatedAt:    m.CreatedAt.UTC(),
	}
}

type eventDedupModel struct {
	AirdropID   string    `gorm:"column:airdrop_id;primaryKey"`
	EventID     string    `gorm:"column:event_id;primaryKey"`
	PayloadHash string    `gorm:"column:payload_hash"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
	ProcessedAt time.Time `gorm:"column:processed_at"`
}

func (eventDedupModel) TableName() string {
	return "airdrop_event_dedup"
}
