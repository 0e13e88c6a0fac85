package workers_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"merkledrop/contexts/token-distribution/airdrop-claim-service/adapters/memory"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/application/saga"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/application/workers"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/entities"
	domainerrors "merkledrop/contexts/token-distribution/airdrop-claim-service/domain/errors"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/valueobjects"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	err    error
	topics []string
	events []ports.EventEnvelope
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event ports.EventEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

type capturingSubscriber struct {
	topic   string
	group   string
	handler func(context.Context, ports.EventEnvelope) error
}

func (s *capturingSubscriber) Subscribe(_ context.Context, topic string, group string, handler func(context.Context, ports.EventEnvelope) error) error {
	s.topic = topic
	s.group = group
	s.handler = handler
	return nil
}

func beginSaga(t *testing.T, store *memory.Store, account string) entities.ClaimSaga {
	t.Helper()
	ctx := context.Background()
	id, err := store.NewID(ctx)
	require.NoError(t, err)
	item, err := entities.NewClaimSaga(id, valueobjects.AccountID(account), "100", strings.Repeat("ab", 32), "token.testnet", entities.ClaimSourceMerkle, store.Now())
	require.NoError(t, err)
	item, err = item.Advance(entities.SagaStageAwaitingRegistration, store.Now())
	require.NoError(t, err)
	require.NoError(t, store.BeginClaim(ctx, item))
	return item
}

// flakyRollback fails the first RollbackClaim while delegating the rest.
type flakyRollback struct {
	*memory.Store
	failures int
}

func (f *flakyRollback) RollbackClaim(ctx context.Context, item entities.ClaimSaga, from entities.SagaStage, event ports.ClaimSettledEvent) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("connection reset")
	}
	return f.Store.RollbackClaim(ctx, item, from, event)
}

func newPayout(store *memory.Store) saga.Payout {
	return saga.Payout{
		Claims:      store,
		Ledger:      memory.NewLedger(),
		Clock:       store,
		IDGenerator: store,
	}
}

func receipt(t *testing.T, eventID string, data ports.LedgerReceiptData) ports.EventEnvelope {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return ports.EventEnvelope{EventID: eventID, EventType: "ledger.transfer.receipt", Data: raw}
}

func TestOutboxRelayPublishesByEventType(t *testing.T) {
	store := memory.NewStore(nil)
	payout := newPayout(store)
	_, err := payout.Run(context.Background(), beginSaga(t, store, "user1.testnet"))
	require.NoError(t, err)
	_, err = payout.Compensate(context.Background(), beginSaga(t, store, "user2.testnet"),
		domainerrors.NewExternalCallError(domainerrors.StageRegistration, errors.New("refused")))
	require.NoError(t, err)

	publisher := &recordingPublisher{}
	relay := workers.OutboxRelay{Outbox: store, Publisher: publisher, Clock: store}
	require.NoError(t, relay.RunOnce(context.Background()))

	assert.Equal(t, []string{saga.EventTypeClaimCompleted, saga.EventTypeClaimRolledBack}, publisher.topics)
	var data ports.ClaimSettledData
	require.NoError(t, json.Unmarshal(publisher.events[1].Data, &data))
	assert.Equal(t, "user2.testnet", data.Account)
	assert.Equal(t, string(domainerrors.StageRegistration), data.FailureStage)
	assert.Equal(t, ports.SourceService, publisher.events[0].SourceService)

	require.NoError(t, relay.RunOnce(context.Background()))
	assert.Len(t, publisher.events, 2)
}

func TestOutboxRelayLeavesRowsPendingOnPublishFailure(t *testing.T) {
	store := memory.NewStore(nil)
	_, err := newPayout(store).Run(context.Background(), beginSaga(t, store, "user1.testnet"))
	require.NoError(t, err)

	publisher := &recordingPublisher{err: errors.New("broker down")}
	relay := workers.OutboxRelay{Outbox: store, Publisher: publisher, Topic: "airdrop.claims"}
	require.Error(t, relay.RunOnce(context.Background()))

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	publisher.err = nil
	require.NoError(t, relay.RunOnce(context.Background()))
	assert.Equal(t, []string{"airdrop.claims"}, publisher.topics)
}

func TestStalledSagaSweeperRollsBackOnlyPreRegistration(t *testing.T) {
	store := memory.NewStore(nil)
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	store.SetNow(start)
	payout := newPayout(store)

	stuck := beginSaga(t, store, "user1.testnet")
	registered, err := payout.OnRegistration(context.Background(), beginSaga(t, store, "user2.testnet"), nil)
	require.NoError(t, err)
	require.Equal(t, entities.SagaStageRegisteredAwaitingTransfer, registered.Stage)

	sweeper := workers.StalledSagaSweeper{Claims: store, Payout: payout, Clock: store, StaleAfter: 10 * time.Minute}
	require.NoError(t, sweeper.RunOnce(context.Background()))
	item, err := store.GetSaga(context.Background(), stuck.SagaID)
	require.NoError(t, err)
	assert.Equal(t, entities.SagaStageAwaitingRegistration, item.Stage, "fresh sagas are left alone")

	store.SetNow(start.Add(15 * time.Minute))
	require.NoError(t, sweeper.RunOnce(context.Background()))

	item, err = store.GetSaga(context.Background(), stuck.SagaID)
	require.NoError(t, err)
	assert.Equal(t, entities.SagaStageRolledBack, item.Stage)
	assert.Equal(t, []string{"user2.testnet"}, store.ClaimedAccounts())

	item, err = store.GetSaga(context.Background(), registered.SagaID)
	require.NoError(t, err)
	assert.Equal(t, entities.SagaStageRegisteredAwaitingTransfer, item.Stage)
}

func TestLedgerReceiptConsumerSettlesUnresolvedTransfers(t *testing.T) {
	store := memory.NewStore(nil)
	payout := newPayout(store)
	succeeded, err := payout.OnRegistration(context.Background(), beginSaga(t, store, "user1.testnet"), nil)
	require.NoError(t, err)
	failed, err := payout.OnRegistration(context.Background(), beginSaga(t, store, "user2.testnet"), nil)
	require.NoError(t, err)

	subscriber := &capturingSubscriber{}
	consumer := workers.LedgerReceiptConsumer{
		Subscriber: subscriber,
		Claims:     store,
		EventDedup: store,
		Payout:     payout,
		Clock:      store,
	}
	require.NoError(t, consumer.Start(context.Background()))
	assert.Equal(t, ports.LedgerReceiptTopic, subscriber.topic)
	require.NotNil(t, subscriber.handler)

	ctx := context.Background()
	require.NoError(t, subscriber.handler(ctx, receipt(t, "r-1", ports.LedgerReceiptData{SagaID: succeeded.SagaID, Status: ports.LedgerReceiptSuccess})))
	require.NoError(t, subscriber.handler(ctx, receipt(t, "r-2", ports.LedgerReceiptData{SagaID: failed.SagaID, Status: ports.LedgerReceiptFailure, Reason: "frozen account"})))

	item, err := store.GetSaga(ctx, succeeded.SagaID)
	require.NoError(t, err)
	assert.Equal(t, entities.SagaStageCompleted, item.Stage)

	item, err = store.GetSaga(ctx, failed.SagaID)
	require.NoError(t, err)
	assert.Equal(t, entities.SagaStageRolledBack, item.Stage)
	assert.Equal(t, domainerrors.StageTransfer, item.FailureStage)
	assert.Equal(t, []string{"user1.testnet"}, store.ClaimedAccounts())
}

func TestLedgerReceiptConsumerIgnoresDuplicatesAndUnknownSagas(t *testing.T) {
	store := memory.NewStore(nil)
	payout := newPayout(store)
	registered, err := payout.OnRegistration(context.Background(), beginSaga(t, store, "user1.testnet"), nil)
	require.NoError(t, err)
	consumer := workers.LedgerReceiptConsumer{Claims: store, EventDedup: store, Payout: payout, Clock: store}
	ctx := context.Background()

	event := receipt(t, "r-1", ports.LedgerReceiptData{SagaID: registered.SagaID, Status: ports.LedgerReceiptSuccess})
	require.NoError(t, consumer.Handle(ctx, event))
	require.NoError(t, consumer.Handle(ctx, event))
	assert.Len(t, store.OutboxEvents(), 1)

	conflicting := receipt(t, "r-1", ports.LedgerReceiptData{SagaID: registered.SagaID, Status: ports.LedgerReceiptFailure})
	assert.ErrorIs(t, consumer.Handle(ctx, conflicting), domainerrors.ErrIdempotencyKeyConflict)

	unknown := receipt(t, "r-2", ports.LedgerReceiptData{SagaID: "airdrop-999", Status: ports.LedgerReceiptSuccess})
	assert.NoError(t, consumer.Handle(ctx, unknown))

	settled := receipt(t, "r-3", ports.LedgerReceiptData{SagaID: registered.SagaID, Status: ports.LedgerReceiptFailure})
	require.NoError(t, consumer.Handle(ctx, settled))
	item, err := store.GetSaga(ctx, registered.SagaID)
	require.NoError(t, err)
	assert.Equal(t, entities.SagaStageCompleted, item.Stage)

	invalid := receipt(t, "r-4", ports.LedgerReceiptData{SagaID: registered.SagaID, Status: "maybe"})
	assert.ErrorIs(t, consumer.Handle(ctx, invalid), domainerrors.ErrInvalidClaimRequest)
}

func TestLedgerReceiptConsumerRetriesRollbackAfterPersistFailure(t *testing.T) {
	store := memory.NewStore(nil)
	claims := &flakyRollback{Store: store, failures: 1}
	payout := newPayout(store)
	payout.Claims = claims
	registered, err := payout.OnRegistration(context.Background(), beginSaga(t, store, "user1.testnet"), nil)
	require.NoError(t, err)
	consumer := workers.LedgerReceiptConsumer{Claims: store, EventDedup: store, Payout: payout, Clock: store}
	ctx := context.Background()

	event := receipt(t, "r-1", ports.LedgerReceiptData{SagaID: registered.SagaID, Status: ports.LedgerReceiptFailure, Reason: "frozen account"})
	require.Error(t, consumer.Handle(ctx, event))

	item, err := store.GetSaga(ctx, registered.SagaID)
	require.NoError(t, err)
	assert.Equal(t, entities.SagaStageRegisteredAwaitingTransfer, item.Stage)
	assert.True(t, item.RollbackPending())
	assert.Equal(t, []string{"user1.testnet"}, store.ClaimedAccounts())

	// Redelivery of the same receipt must not be swallowed as a duplicate.
	require.NoError(t, consumer.Handle(ctx, event))

	item, err = store.GetSaga(ctx, registered.SagaID)
	require.NoError(t, err)
	assert.Equal(t, entities.SagaStageRolledBack, item.Stage)
	assert.Equal(t, domainerrors.StageTransfer, item.FailureStage)
	assert.Empty(t, store.ClaimedAccounts())
	assert.Len(t, store.OutboxEvents(), 1)
}

func TestStalledSagaSweeperFinishesRecordedRollback(t *testing.T) {
	store := memory.NewStore(nil)
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	store.SetNow(start)
	ledger := memory.NewLedger()
	ledger.FailTransfers(errors.New("frozen account"))
	claims := &flakyRollback{Store: store, failures: 1}
	payout := newPayout(store)
	payout.Claims = claims
	payout.Ledger = ledger

	pending, err := payout.Run(context.Background(), beginSaga(t, store, "user1.testnet"))
	require.Error(t, err)
	require.True(t, pending.RollbackPending())

	sweeper := workers.StalledSagaSweeper{Claims: store, Payout: payout, Clock: store, StaleAfter: 10 * time.Minute}
	store.SetNow(start.Add(15 * time.Minute))
	require.NoError(t, sweeper.RunOnce(context.Background()))

	item, err := store.GetSaga(context.Background(), pending.SagaID)
	require.NoError(t, err)
	assert.Equal(t, entities.SagaStageRolledBack, item.Stage)
	assert.Equal(t, domainerrors.StageTransfer, item.FailureStage)
	assert.Contains(t, item.FailureReason, "frozen account")
	assert.Empty(t, store.ClaimedAccounts())
}
