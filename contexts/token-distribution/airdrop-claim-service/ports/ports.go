package ports

import (
	"context"
	"time"

	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/entities"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/valueobjects"
	contractsv1 "merkledrop/contracts/gen/events/v1"
)

// RegistryRepository persists the single registry row of this airdrop.
type RegistryRepository interface {
	GetRegistry(ctx context.Context) (entities.Registry, error)
	// InitializeRegistry fails with ErrRegistryAlreadyInitialized on a second call.
	InitializeRegistry(ctx context.Context, registry entities.Registry) error
	SaveRegistry(ctx context.Context, registry entities.Registry) error
}

// ClaimSettledEvent is the terminal saga record persisted to the outbox.
type ClaimSettledEvent struct {
	EventID         string
	EventType       string
	SagaID          string
	Account         string
	Amount          string
	LedgerReference string
	Source          string
	Stage           string
	FailureStage    string
	FailureReason   string
	PartitionKey    string
	OccurredAt      time.Time
}

// ClaimRepository owns the claimed set and the saga rows that hold entries in it.
type ClaimRepository interface {
	HasClaimed(ctx context.Context, account valueobjects.AccountID) (bool, error)
	// BeginClaim must atomically insert the account into the claimed set and persist
	// the saga. An existing member yields ErrAlreadyClaimed and nothing is written.
	BeginClaim(ctx context.Context, saga entities.ClaimSaga) error
	// The transition writes below are conditional on the stored stage still being
	// from; otherwise they fail with ErrInvalidSagaTransition and write nothing.

	// UpdateSaga persists a non-terminal transition.
	UpdateSaga(ctx context.Context, saga entities.ClaimSaga, from entities.SagaStage) error
	// CompleteClaim persists the completed saga and its outbox record together.
	CompleteClaim(ctx context.Context, saga entities.ClaimSaga, from entities.SagaStage, event ClaimSettledEvent) error
	// RollbackClaim must atomically remove the account from the claimed set, persist
	// the rolled back saga and its outbox record.
	RollbackClaim(ctx context.Context, saga entities.ClaimSaga, from entities.SagaStage, event ClaimSettledEvent) error
	GetSaga(ctx context.Context, sagaID string) (entities.ClaimSaga, error)
	// ListSagasByStage returns sagas sitting in stage since before updatedBefore.
	ListSagasByStage(ctx context.Context, stage entities.SagaStage, updatedBefore time.Time, limit int) ([]entities.ClaimSaga, error)
}

// AllocationRepository stores the allow-list variant.
type AllocationRepository interface {
	GetAllocation(ctx context.Context, account valueobjects.AccountID) (entities.Allocation, bool, error)
	// AddAllocations inserts new entries and skips accounts that already exist.
	AddAllocations(ctx context.Context, allocations []entities.Allocation) (added []valueobjects.AccountID, skipped []valueobjects.AccountID, err error)
	UpdateAllocation(ctx context.Context, allocation entities.Allocation) error
}

// IdempotencyRecord captures dedupe metadata for administrative requests.
type IdempotencyRecord struct {
	Key         string
	RequestHash string
	Response    []byte
	ExpiresAt   time.Time
}

type IdempotencyStore interface {
	GetIdempotency(ctx context.Context, key string, now time.Time) (IdempotencyRecord, bool, error)
	PutIdempotency(ctx context.Context, record IdempotencyRecord) error
}

// RegisterRecipientRequest is a storage registration with refundable collateral.
type RegisterRecipientRequest struct {
	LedgerAccount string
	Account       string
	Collateral    string
}

// TransferRequest moves Amount to Recipient; Memo carries the saga id.
type TransferRequest struct {
	LedgerAccount string
	Recipient     string
	Amount        string
	Memo          string
	AttachedFee   string
}

// Ledger is the external token ledger. Implementations return
// ErrAlreadyRegistered when the account is registered already and
// ErrLedgerNoResponse when a call ended without an answer.
type Ledger interface {
	RegisterRecipient(ctx context.Context, req RegisterRecipientRequest) error
	Transfer(ctx context.Context, req TransferRequest) error
}

// Dispatcher runs saga continuations off the caller's goroutine.
type Dispatcher interface {
	Dispatch(task func(ctx context.Context)) error
}

// SagaMetrics records claim rejections and every saga terminal state.
type SagaMetrics interface {
	ClaimRejected(reason string)
	SagaStarted(source string)
	SagaCompleted(source string)
	SagaRolledBack(stage string)
	SagaStalled(stage string)
}

// Clock allows deterministic testing of timeouts and sweeps.
type Clock interface {
	Now() time.Time
}

// IDGenerator abstracts saga/event identifier generation.
type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// OutboxMessage is a row ready to relay from the module outbox.
type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

// OutboxRepository models worker-side outbox polling/acknowledgement.
type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxSent(ctx context.Context, outboxID string, sentAt time.Time) error
}

// EventDedupStore provides idempotent processing guarantees for consumed events.
// ReserveEvent reports true when eventID was already processed. ReleaseEvent drops
// a reservation whose processing failed so a redelivery is handled again.
type EventDedupStore interface {
	ReserveEvent(ctx context.Context, eventID string, payloadHash string, expiresAt time.Time) (bool, error)
	ReleaseEvent(ctx context.Context, eventID string) error
}

// EventEnvelope reuses the canonical cross-runtime envelope contract.
type EventEnvelope = contractsv1.Envelope

// EventPublisher publishes canonical envelopes to a topic.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

// EventSubscriber registers a topic consumer callback.
type EventSubscriber interface {
	Subscribe(
		ctx context.Context,
		topic string,
		consumerGroup string,
		handler func(context.Context, EventEnvelope) error,
	) error
}
