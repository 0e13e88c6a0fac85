package workers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "merkledrop/contexts/token-distribution/airdrop-claim-service/application"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/application/saga"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/entities"
	domainerrors "merkledrop/contexts/token-distribution/airdrop-claim-service/domain/errors"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/ports"
)

const (
	defaultReceiptConsumerGroup = "airdrop-claim-service-ledger-receipts-cg"
	defaultEventDedupTTL        = 7 * 24 * time.Hour
)

// LedgerReceiptConsumer settles transfers whose response never reached the saga.
// Receipts for sagas that already left registered_awaiting_transfer are ignored.
type LedgerReceiptConsumer struct {
	Subscriber    ports.EventSubscriber
	Claims        ports.ClaimRepository
	EventDedup    ports.EventDedupStore
	Payout        saga.Payout
	Clock         ports.Clock
	ConsumerGroup string
	DedupTTL      time.Duration
	Logger        *slog.Logger
}

func (c LedgerReceiptConsumer) Start(ctx context.Context) error {
	logger := application.ResolveLogger(c.Logger)
	group := c.ConsumerGroup
	if group == "" {
		group = defaultReceiptConsumerGroup
	}
	if err := c.Subscriber.Subscribe(ctx, ports.LedgerReceiptTopic, group, c.Handle); err != nil {
		logger.Error("ledger receipt consumer subscribe failed",
			"event", "airdrop_ledger_receipt_subscribe_failed",
			"module", moduleName,
			"layer", "worker",
			"topic", ports.LedgerReceiptTopic,
			"consumer_group", group,
			"error", err.Error(),
		)
		return err
	}
	logger.Info("ledger receipt consumer subscribed",
		"event", "airdrop_ledger_receipt_subscribed",
		"module", moduleName,
		"layer", "worker",
		"topic", ports.LedgerReceiptTopic,
		"consumer_group", group,
	)
	return nil
}

func (c LedgerReceiptConsumer) Handle(ctx context.Context, event ports.EventEnvelope) error {
	logger := application.ResolveLogger(c.Logger)
	var payload ports.LedgerReceiptData
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		logger.Error("ledger receipt decode failed",
			"event", "airdrop_ledger_receipt_decode_failed",
			"module", moduleName,
			"layer", "worker",
			"event_id", event.EventID,
			"error", err.Error(),
		)
		return err
	}
	payload.SagaID = strings.TrimSpace(payload.SagaID)
	if payload.SagaID == "" || (payload.Status != ports.LedgerReceiptSuccess && payload.Status != ports.LedgerReceiptFailure) {
		logger.Warn("ledger receipt payload invalid",
			"event", "airdrop_ledger_receipt_payload_invalid",
			"module", moduleName,
			"layer", "worker",
			"event_id", event.EventID,
			"status", payload.Status,
		)
		return domainerrors.ErrInvalidClaimRequest
	}

	reserved := false
	if c.EventDedup != nil && strings.TrimSpace(event.EventID) != "" {
		alreadyProcessed, err := c.EventDedup.ReserveEvent(ctx, event.EventID, hashReceipt(event.Data), c.now().Add(c.dedupTTL()))
		if err != nil {
			return err
		}
		if alreadyProcessed {
			logger.Debug("ledger receipt duplicate skipped",
				"event", "airdrop_ledger_receipt_duplicate",
				"module", moduleName,
				"layer", "worker",
				"event_id", event.EventID,
				"saga_id", payload.SagaID,
			)
			return nil
		}
		reserved = true
	}

	if err := c.settle(ctx, logger, event, payload); err != nil {
		if reserved {
			if releaseErr := c.EventDedup.ReleaseEvent(ctx, event.EventID); releaseErr != nil {
				logger.Error("ledger receipt reservation release failed",
					"event", "airdrop_ledger_receipt_release_failed",
					"module", moduleName,
					"layer", "worker",
					"event_id", event.EventID,
					"error", releaseErr.Error(),
				)
			}
		}
		return err
	}
	return nil
}

// settle applies a receipt to its saga. An error means the outcome was not persisted.
func (c LedgerReceiptConsumer) settle(ctx context.Context, logger *slog.Logger, event ports.EventEnvelope, payload ports.LedgerReceiptData) error {
	item, err := c.Claims.GetSaga(ctx, payload.SagaID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrSagaNotFound) {
			logger.Warn("ledger receipt for unknown saga",
				"event", "airdrop_ledger_receipt_unknown_saga",
				"module", moduleName,
				"layer", "worker",
				"event_id", event.EventID,
				"saga_id", payload.SagaID,
			)
			return nil
		}
		return err
	}
	if item.Stage != entities.SagaStageRegisteredAwaitingTransfer {
		logger.Debug("ledger receipt for settled saga ignored",
			"event", "airdrop_ledger_receipt_ignored",
			"module", moduleName,
			"layer", "worker",
			"saga_id", item.SagaID,
			"stage", item.Stage,
		)
		return nil
	}

	var callErr error
	if payload.Status == ports.LedgerReceiptFailure {
		reason := payload.Reason
		if reason == "" {
			reason = "transfer rejected by ledger"
		}
		callErr = errors.New(reason)
	}
	result, err := c.Payout.OnTransfer(ctx, item, callErr)
	if errors.Is(err, domainerrors.ErrInvalidSagaTransition) {
		// Another continuation settled the saga first.
		return nil
	}
	if err != nil {
		logger.Warn("ledger receipt not applied",
			"event", "airdrop_ledger_receipt_apply_failed",
			"module", moduleName,
			"layer", "worker",
			"event_id", event.EventID,
			"saga_id", item.SagaID,
			"status", payload.Status,
			"error", err.Error(),
		)
		return err
	}
	logger.Info("ledger receipt applied",
		"event", "airdrop_ledger_receipt_applied",
		"module", moduleName,
		"layer", "worker",
		"event_id", event.EventID,
		"saga_id", result.SagaID,
		"status", payload.Status,
		"stage", result.Stage,
	)
	return nil
}

func (c LedgerReceiptConsumer) now() time.Time {
	if c.Clock == nil {
		return time.Now().UTC()
	}
	return c.Clock.Now().UTC()
}

func (c LedgerReceiptConsumer) dedupTTL() time.Duration {
	if c.DedupTTL <= 0 {
		return defaultEventDedupTTL
	}
	return c.DedupTTL
}

func hashReceipt(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
