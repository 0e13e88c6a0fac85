package messaging

import (
	"context"
	"log/slog"
	"time"

	contractsv1 "merkledrop/contracts/gen/events/v1"

	"github.com/sethvargo/go-retry"
)

// RetryingPublisher retries transient publish failures before the outbox relay
// gives up on a batch.
type RetryingPublisher struct {
	Bus        EventBus
	MaxRetries uint64
	Backoff    time.Duration
	Logger     *slog.Logger
}

func (p RetryingPublisher) Publish(ctx context.Context, topic string, event contractsv1.Envelope) error {
	base := p.Backoff
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	backoff, err := retry.NewExponential(base)
	if err != nil {
		return err
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attempt := 0
	return retry.Do(ctx, retry.WithMaxRetries(p.MaxRetries, backoff), func(ctx context.Context) error {
		attempt++
		if err := p.Bus.Publish(ctx, topic, event); err != nil {
			logger.Warn("event publish attempt failed",
				"event", "publish_attempt_failed",
				"module", "internal/platform/messaging",
				"layer", "platform",
				"topic", topic,
				"event_id", event.EventID,
				"attempt", attempt,
				"error", err.Error(),
			)
			return retry.RetryableError(err)
		}
		return nil
	})
}

// RetryingSubscriber redelivers an event to its handler until it succeeds or the
// retries run out. The confluent consumer commits offsets after every handler
// call, so a failed receipt would otherwise never be seen again.
type RetryingSubscriber struct {
	Bus        EventBus
	MaxRetries uint64
	Backoff    time.Duration
	Logger     *slog.Logger
}

func (s RetryingSubscriber) Subscribe(
	ctx context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, contractsv1.Envelope) error,
) error {
	base := s.Backoff
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return s.Bus.Subscribe(ctx, topic, consumerGroup, func(ctx context.Context, event contractsv1.Envelope) error {
		backoff, err := retry.NewExponential(base)
		if err != nil {
			return err
		}
		attempt := 0
		return retry.Do(ctx, retry.WithMaxRetries(s.MaxRetries, backoff), func(ctx context.Context) error {
			attempt++
			if err := handler(ctx, event); err != nil {
				logger.Warn("event handler attempt failed",
					"event", "handle_attempt_failed",
					"module", "internal/platform/messaging",
					"layer", "platform",
					"topic", topic,
					"consumer_group", consumerGroup,
					"event_id", event.EventID,
					"attempt", attempt,
					"error", err.Error(),
				)
				return retry.RetryableError(err)
			}
			return nil
		})
	})
}
