package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	contractsv1 "merkledrop/contracts/gen/events/v1"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyBus struct {
	*InProcessBus
	mu       sync.Mutex
	failures int
	attempts int
}

func (b *flakyBus) Publish(ctx context.Context, topic string, event contractsv1.Envelope) error {
	b.mu.Lock()
	b.attempts++
	fail := b.attempts <= b.failures
	b.mu.Unlock()
	if fail {
		return errors.New("leader not available")
	}
	return b.InProcessBus.Publish(ctx, topic, event)
}

func TestInProcessBusDeliversToSubscribers(t *testing.T) {
	bus := NewInProcessBus(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan contractsv1.Envelope, 1)
	require.NoError(t, bus.Subscribe(ctx, "ledger.transfer.receipts", "cg", func(_ context.Context, event contractsv1.Envelope) error {
		received <- event
		return nil
	}))
	require.NoError(t, bus.Publish(ctx, "ledger.transfer.receipts", contractsv1.Envelope{EventID: "evt-1"}))
	require.NoError(t, bus.Publish(ctx, "other.topic", contractsv1.Envelope{EventID: "evt-2"}))

	select {
	case event := <-received:
		assert.Equal(t, "evt-1", event.EventID)
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
	select {
	case event := <-received:
		t.Fatalf("unexpected delivery of %s", event.EventID)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestNewKafkaWithoutBrokersIsInProcess(t *testing.T) {
	bus, err := NewKafka([]string{" ", ""}, nil)
	require.NoError(t, err)
	_, ok := bus.(*InProcessBus)
	assert.True(t, ok)
	assert.NoError(t, bus.Close())
}

func TestRetryingPublisherRetriesTransientFailures(t *testing.T) {
	bus := &flakyBus{InProcessBus: NewInProcessBus(nil), failures: 2}
	publisher := RetryingPublisher{Bus: bus, MaxRetries: 3, Backoff: time.Millisecond}

	require.NoError(t, publisher.Publish(context.Background(), "airdrop.claim.completed", contractsv1.Envelope{EventID: "evt-1"}))
	assert.Equal(t, 3, bus.attempts)
}

func TestRetryingPublisherGivesUp(t *testing.T) {
	bus := &flakyBus{InProcessBus: NewInProcessBus(nil), failures: 10}
	publisher := RetryingPublisher{Bus: bus, MaxRetries: 2, Backoff: time.Millisecond}

	err := publisher.Publish(context.Background(), "airdrop.claim.completed", contractsv1.Envelope{EventID: "evt-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
	assert.Equal(t, 3, bus.attempts)
}

func TestRetryingSubscriberRedeliversFailedEvents(t *testing.T) {
	bus := NewInProcessBus(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	attempts := 0
	settled := make(chan string, 1)
	subscriber := RetryingSubscriber{Bus: bus, MaxRetries: 3, Backoff: time.Millisecond}
	require.NoError(t, subscriber.Subscribe(ctx, "ledger.transfer.receipts", "cg", func(_ context.Context, event contractsv1.Envelope) error {
		mu.Lock()
		attempts++
		current := attempts
		mu.Unlock()
		if current == 1 {
			return errors.New("connection reset")
		}
		settled <- event.EventID
		return nil
	}))
	require.NoError(t, bus.Publish(ctx, "ledger.transfer.receipts", contractsv1.Envelope{EventID: "evt-1"}))

	select {
	case eventID := <-settled:
		assert.Equal(t, "evt-1", eventID)
	case <-time.After(time.Second):
		t.Fatal("event was not redelivered")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, attempts)
}
