package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	contractsv1 "merkledrop/contracts/gen/events/v1"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/hashicorp/go-multierror"
)

const consumerPollTimeout = 500 * time.Millisecond

// Confluent publishes and consumes JSON envelopes on a Kafka cluster.
type Confluent struct {
	brokers   string
	producer  *kafka.Producer
	mu        sync.Mutex
	consumers []*kafka.Consumer
	wg        sync.WaitGroup
	logger    *slog.Logger
}

func NewConfluent(brokers []string, logger *slog.Logger) (*Confluent, error) {
	if logger == nil {
		logger = slog.Default()
	}
	joined := strings.Join(brokers, ",")
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":                     joined,
		"acks":                                  "all",
		"enable.idempotence":                    true,
		"linger.ms":                             10,
		"message.send.max.retries":              10,
		"retry.backoff.ms":                      100,
		"delivery.timeout.ms":                   30000,
		"max.in.flight.requests.per.connection": 1,
	})
	if err != nil {
		return nil, err
	}
	return &Confluent{
		brokers:  joined,
		producer: producer,
		logger:   logger,
	}, nil
}

// Publish blocks until the broker acknowledges the message, so the outbox relay
// only marks rows sent once they are durable.
func (c *Confluent) Publish(ctx context.Context, topic string, event contractsv1.Envelope) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	delivery := make(chan kafka.Event, 1)
	err = c.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(event.PartitionKey),
		Value:          value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.EventID)},
		},
	}, delivery)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case report := <-delivery:
		msg, ok := report.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected delivery report %T", report)
		}
		if msg.TopicPartition.Error != nil {
			return msg.TopicPartition.Error
		}
	}
	c.logger.Debug("event published",
		"event", "kafka_publish",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"topic", topic,
		"event_id", event.EventID,
		"event_type", event.EventType,
	)
	return nil
}

// Subscribe starts a poll loop for topic. Offsets are committed after the handler
// returns, failed messages included, so a poison message cannot wedge the group.
func (c *Confluent) Subscribe(
	ctx context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, contractsv1.Envelope) error,
) error {
	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  c.brokers,
		"group.id":           consumerGroup,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": false,
	})
	if err != nil {
		return err
	}
	if err := consumer.SubscribeTopics([]string{topic}, nil); err != nil {
		_ = consumer.Close()
		return err
	}

	c.mu.Lock()
	c.consumers = append(c.consumers, consumer)
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			msg, err := consumer.ReadMessage(consumerPollTimeout)
			if err != nil {
				if kafkaErr, ok := err.(kafka.Error); ok && kafkaErr.Code() == kafka.ErrTimedOut {
					continue
				}
				c.logger.Warn("consumer read failed",
					"event", "kafka_consume_read_failed",
					"module", "internal/platform/messaging",
					"layer", "platform",
					"topic", topic,
					"consumer_group", consumerGroup,
					"error", err.Error(),
				)
				continue
			}

			var event contractsv1.Envelope
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				c.logger.Error("consumer decode failed",
					"event", "kafka_consume_decode_failed",
					"module", "internal/platform/messaging",
					"layer", "platform",
					"topic", topic,
					"offset", msg.TopicPartition.Offset.String(),
					"error", err.Error(),
				)
			} else if err := handler(ctx, event); err != nil {
				c.logger.Error("consumer handler failed",
					"event", "kafka_consume_failed",
					"module", "internal/platform/messaging",
					"layer", "platform",
					"topic", topic,
					"consumer_group", consumerGroup,
					"event_id", event.EventID,
					"event_type", event.EventType,
					"error", err.Error(),
				)
			}
			if _, err := consumer.CommitMessage(msg); err != nil {
				c.logger.Warn("consumer commit failed",
					"event", "kafka_consume_commit_failed",
					"module", "internal/platform/messaging",
					"layer", "platform",
					"topic", topic,
					"error", err.Error(),
				)
			}
		}
	}()
	return nil
}

// Close waits for poll loops to exit, so cancel the Subscribe contexts first.
func (c *Confluent) Close() error {
	c.wg.Wait()
	c.mu.Lock()
	consumers := c.consumers
	c.consumers = nil
	c.mu.Unlock()

	var result *multierror.Error
	for _, consumer := range consumers {
		if err := consumer.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if remaining := c.producer.Flush(5000); remaining > 0 {
		result = multierror.Append(result, fmt.Errorf("%d messages left unflushed", remaining))
	}
	c.producer.Close()
	return result.ErrorOrNil()
}
