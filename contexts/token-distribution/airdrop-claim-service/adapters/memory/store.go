package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	application "merkledrop/contexts/token-distribution/airdrop-claim-service/application"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/entities"
	domainerrors "merkledrop/contexts/token-distribution/airdrop-claim-service/domain/errors"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/valueobjects"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/ports"
)

const moduleName = "token-distribution/airdrop-claim-service"

// Store is an in-memory adapter implementing the airdrop ports for local runtime
// and tests. It is not intended as production persistence.
type Store struct {
	mu          sync.RWMutex
	registry    *entities.Registry
	claimed     map[valueobjects.AccountID]string
	sagas       map[string]entities.ClaimSaga
	allocations map[valueobjects.AccountID]entities.Allocation
	idempotency map[string]ports.IdempotencyRecord
	outbox      map[string]ports.OutboxMessage
	outboxOrder []string
	outboxSent  map[string]time.Time
	eventDedup  map[string]string
	sequence    uint64
	now         func() time.Time
	logger      *slog.Logger
}

func NewStore(logger *slog.Logger) *Store {
	return &Store{
		claimed:     make(map[valueobjects.AccountID]string),
		sagas:       make(map[string]entities.ClaimSaga),
		allocations: make(map[valueobjects.AccountID]entities.Allocation),
		idempotency: make(map[string]ports.IdempotencyRecord),
		outbox:      make(map[string]ports.OutboxMessage),
		outboxOrder: make([]string, 0),
		outboxSent:  make(map[string]time.Time),
		eventDedup:  make(map[string]string),
		now:         func() time.Time { return time.Now().UTC() },
		logger:      application.ResolveLogger(logger),
	}
}

func (s *Store) GetRegistry(_ context.Context) (entities.Registry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.registry == nil {
		return entities.Registry{}, domainerrors.ErrRegistryNotInitialized
	}
	return *s.registry, nil
}

func (s *Store) InitializeRegistry(_ context.Context, registry entities.Registry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.registry != nil {
		return domainerrors.ErrRegistryAlreadyInitialized
	}
	s.registry = &registry
	return nil
}

func (s *Store) SaveRegistry(_ context.Context, registry entities.Registry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.registry == nil {
		return domainerrors.ErrRegistryNotInitialized
	}
	s.registry = &registry
	return nil
}

func (s *Store) HasClaimed(_ context.Context, account valueobjects.AccountID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.claimed[account]
	return ok, nil
}

func (s *Store) BeginClaim(_ context.Context, saga entities.ClaimSaga) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// One critical section stands in for the transaction: the claimed-set insert
	// and the saga row succeed or fail together.
	if _, ok := s.claimed[saga.Account]; ok {
		return domainerrors.ErrAlreadyClaimed
	}
	if _, ok := s.sagas[saga.SagaID]; ok {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	s.claimed[saga.Account] = saga.SagaID
	s.sagas[saga.SagaID] = saga

	s.logger.Debug("claim saga begun in memory store",
		"event", "memory_begin_claim",
		"module", moduleName,
		"layer", "adapter",
		"saga_id", saga.SagaID,
		"account", saga.Account,
	)
	return nil
}

func (s *Store) UpdateSaga(_ context.Context, saga entities.ClaimSaga, from entities.SagaStage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkStage(saga.SagaID, from); err != nil {
		return err
	}
	s.sagas[saga.SagaID] = saga
	return nil
}

func (s *Store) CompleteClaim(_ context.Context, saga entities.ClaimSaga, from entities.SagaStage, event ports.ClaimSettledEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkStage(saga.SagaID, from); err != nil {
		return err
	}
	if err := s.appendOutbox(event); err != nil {
		return err
	}
	s.sagas[saga.SagaID] = saga
	return nil
}

func (s *Store) RollbackClaim(_ context.Context, saga entities.ClaimSaga, from entities.SagaStage, event ports.ClaimSettledEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkStage(saga.SagaID, from); err != nil {
		return err
	}
	if err := s.appendOutbox(event); err != nil {
		return err
	}
	s.sagas[saga.SagaID] = saga
	// Only the saga holding the entry may release it.
	if holder, ok := s.claimed[saga.Account]; ok && holder == saga.SagaID {
		delete(s.claimed, saga.Account)
	}

	s.logger.Debug("claim saga rolled back in memory store",
		"event", "memory_rollback_claim",
		"module", moduleName,
		"layer", "adapter",
		"saga_id", saga.SagaID,
		"account", saga.Account,
		"failure_stage", saga.FailureStage,
	)
	return nil
}

func (s *Store) GetSaga(_ context.Context, sagaID string) (entities.ClaimSaga, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	saga, ok := s.sagas[sagaID]
	if !ok {
		return entities.ClaimSaga{}, domainerrors.ErrSagaNotFound
	}
	return saga, nil
}

func (s *Store) ListSagasByStage(_ context.Context, stage entities.SagaStage, updatedBefore time.Time, limit int) ([]entities.ClaimSaga, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	items := make([]entities.ClaimSaga, 0)
	for _, saga := range s.sagas {
		if saga.Stage != stage || !saga.UpdatedAt.Before(updatedBefore) {
			continue
		}
		items = append(items, saga)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].SagaID < items[j].SagaID
		}
		return items[i].UpdatedAt.Before(items[j].UpdatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) GetAllocation(_ context.Context, account valueobjects.AccountID) (entities.Allocation, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	allocation, ok := s.allocations[account]
	return allocation, ok, nil
}

func (s *Store) AddAllocations(_ context.Context, allocations []entities.Allocation) ([]valueobjects.AccountID, []valueobjects.AccountID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := make([]valueobjects.AccountID, 0, len(allocations))
	skipped := make([]valueobjects.AccountID, 0)
	for _, allocation := range allocations {
		if _, ok := s.allocations[allocation.Account]; ok {
			skipped = append(skipped, allocation.Account)
			continue
		}
		s.allocations[allocation.Account] = allocation
		added = append(added, allocation.Account)
	}
	return added, skipped, nil
}

func (s *Store) UpdateAllocation(_ context.Context, allocation entities.Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.allocations[allocation.Account]; !ok {
		return domainerrors.ErrAllocationNotFound
	}
	s.allocations[allocation.Account] = allocation
	return nil
}

func (s *Store) GetIdempotency(_ context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.idempotency[key]
	if !ok {
		return ports.IdempotencyRecord{}, false, nil
	}
	// Expired keys are lazily evicted on read.
	if !record.ExpiresAt.IsZero() && now.After(record.ExpiresAt) {
		delete(s.idempotency, key)
		return ports.IdempotencyRecord{}, false, nil
	}
	return record, true, nil
}

func (s *Store) PutIdempotency(_ context.Context, record ports.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.idempotency[record.Key]; ok {
		if existing.RequestHash != record.RequestHash {
			return domainerrors.ErrIdempotencyKeyConflict
		}
		return nil
	}
	s.idempotency[record.Key] = record
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	messages := make([]ports.OutboxMessage, 0, limit)
	for _, id := range s.outboxOrder {
		if _, sent := s.outboxSent[id]; sent {
			continue
		}
		if msg, ok := s.outbox[id]; ok {
			messages = append(messages, msg)
		}
		if len(messages) >= limit {
			break
		}
	}
	return messages, nil
}

func (s *Store) MarkOutboxSent(_ context.Context, outboxID string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.outbox[outboxID]; !ok {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	s.outboxSent[outboxID] = sentAt.UTC()
	return nil
}

func (s *Store) ReserveEvent(_ context.Context, eventID string, payloadHash string, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.eventDedup[eventID]; ok {
		if existing != payloadHash {
			return false, domainerrors.ErrIdempotencyKeyConflict
		}
		return true, nil
	}
	s.eventDedup[eventID] = payloadHash
	return false, nil
}

func (s *Store) ReleaseEvent(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.eventDedup, eventID)
	return nil
}

func (s *Store) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now()
}

// SetNow pins the store clock. Tests use it to age sagas past the sweep cutoff.
func (s *Store) SetNow(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fixed := now.UTC()
	s.now = func() time.Time { return fixed }
}

func (s *Store) NewID(_ context.Context) (string, error) {
	value := atomic.AddUint64(&s.sequence, 1)
	return fmt.Sprintf("airdrop-%d", value), nil
}

func (s *Store) OutboxEvents() []ports.OutboxMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]ports.OutboxMessage, 0, len(s.outboxOrder))
	for _, id := range s.outboxOrder {
		if evt, ok := s.outbox[id]; ok {
			events = append(events, evt)
		}
	}
	return events
}

// ClaimedAccounts lists the current claimed set, sorted.
func (s *Store) ClaimedAccounts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]string, 0, len(s.claimed))
	for account := range s.claimed {
		accounts = append(accounts, account.String())
	}
	sort.Strings(accounts)
	return accounts
}

func (s *Store) checkStage(sagaID string, from entities.SagaStage) error {
	current, ok := s.sagas[sagaID]
	if !ok {
		return domainerrors.ErrSagaNotFound
	}
	if current.Stage != from {
		return domainerrors.ErrInvalidSagaTransition
	}
	return nil
}

func (s *Store) appendOutbox(event ports.ClaimSettledEvent) error {
	if _, ok := s.outbox[event.EventID]; ok {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	envelope, err := ports.NewClaimSettledEnvelope(event)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	s.outbox[event.EventID] = ports.OutboxMessage{
		OutboxID:     event.EventID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      payload,
		CreatedAt:    event.OccurredAt,
	}
	s.outboxOrder = append(s.outboxOrder, event.EventID)
	return nil
}
