package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/entities"
	domainerrors "merkledrop/contexts/token-distribution/airdrop-claim-service/domain/errors"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/valueobjects"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/ports"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
)

// Repository persists one airdrop. Every row it owns is scoped by airdropID so
// several deployments can share a database.
type Repository struct {
	db        *gorm.DB
	airdropID string
	logger    *slog.Logger
}

func NewRepository(db *gorm.DB, airdropID string, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:        db,
		airdropID: airdropID,
		logger:    logger,
	}
}

// Migrate creates or updates the airdrop tables.
func (r *Repository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(
		&registryModel{},
		&claimedModel{},
		&sagaModel{},
		&allocationModel{},
		&idempotencyModel{},
		&outboxModel{},
		&eventDedupModel{},
	)
}

func (r *Repository) GetRegistry(ctx context.Context) (entities.Registry, error) {
	var row registryModel
	err := r.db.WithContext(ctx).
		Where("airdrop_id = ?", r.airdropID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Registry{}, domainerrors.ErrRegistryNotInitialized
		}
		return entities.Registry{}, err
	}
	return row.toEntity(), nil
}

func (r *Repository) InitializeRegistry(ctx context.Context, registry entities.Registry) error {
	row := registryModelFromEntity(registry)
	row.AirdropID = r.airdropID
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "airdrop_id"}},
			DoNothing: true,
		}).
		Create(&row)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrRegistryAlreadyInitialized
	}
	return nil
}

func (r *Repository) SaveRegistry(ctx context.Context, registry entities.Registry) error {
	result := r.db.WithContext(ctx).
		Model(&registryModel{}).
		Where("airdrop_id = ?", r.airdropID).
		Updates(map[string]any{
			"administrator":    registry.Administrator.String(),
			"ledger_reference": registry.LedgerReference.String(),
			"committed_root":   registry.CommittedRoot,
			"updated_at":       registry.UpdatedAt.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrRegistryNotInitialized
	}
	return nil
}

func (r *Repository) HasClaimed(ctx context.Context, account valueobjects.AccountID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&claimedModel{}).
		Where("airdrop_id = ? AND account = ?", r.airdropID, account.String()).
		Count(&count).
		Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Repository) BeginClaim(ctx context.Context, saga entities.ClaimSaga) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The claimed table's primary key is the mutual-exclusion gate.
		claimedRow := claimedModel{
			AirdropID: r.airdropID,
			Account:   saga.Account.String(),
			SagaID:    saga.SagaID,
			ClaimedAt: saga.CreatedAt.UTC(),
		}
		if err := tx.Create(&claimedRow).Error; err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrAlreadyClaimed
			}
			return err
		}
		sagaRow := sagaModelFromEntity(saga)
		sagaRow.AirdropID = r.airdropID
		if err := tx.Create(&sagaRow).Error; err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrRepositoryInvariantBroke
			}
			return err
		}
		return nil
	})
}

func (r *Repository) UpdateSaga(ctx context.Context, saga entities.ClaimSaga, from entities.SagaStage) error {
	return r.transitionSaga(r.db.WithContext(ctx), saga, from)
}

func (r *Repository) CompleteClaim(ctx context.Context, saga entities.ClaimSaga, from entities.SagaStage, event ports.ClaimSettledEvent) error {
	payload, err := buildSettledPayload(event)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.transitionSaga(tx, saga, from); err != nil {
			return err
		}
		return r.insertOutbox(tx, event, payload)
	})
}

func (r *Repository) RollbackClaim(ctx context.Context, saga entities.ClaimSaga, from entities.SagaStage, event ports.ClaimSettledEvent) error {
	payload, err := buildSettledPayload(event)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.transitionSaga(tx, saga, from); err != nil {
			return err
		}
		if err := tx.
			Where("airdrop_id = ? AND account = ? AND saga_id = ?", r.airdropID, saga.Account.String(), saga.SagaID).
			Delete(&claimedModel{}).
			Error; err != nil {
			return err
		}
		return r.insertOutbox(tx, event, payload)
	})
}

func (r *Repository) GetSaga(ctx context.Context, sagaID string) (entities.ClaimSaga, error) {
	var row sagaModel
	err := r.db.WithContext(ctx).
		Where("airdrop_id = ? AND saga_id = ?", r.airdropID, sagaID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.ClaimSaga{}, domainerrors.ErrSagaNotFound
		}
		return entities.ClaimSaga{}, err
	}
	return row.toEntity(), nil
}

func (r *Repository) ListSagasByStage(
	ctx context.Context,
	stage entities.SagaStage,
	updatedBefore time.Time,
	limit int,
) ([]entities.ClaimSaga, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []sagaModel
	if err := r.db.WithContext(ctx).
		Where("airdrop_id = ? AND stage = ? AND updated_at < ?", r.airdropID, string(stage), updatedBefore.UTC()).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).
		Error; err != nil {
		return nil, err
	}
	items := make([]entities.ClaimSaga, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) GetAllocation(ctx context.Context, account valueobjects.AccountID) (entities.Allocation, bool, error) {
	var row allocationModel
	err := r.db.WithContext(ctx).
		Where("airdrop_id = ? AND account = ?", r.airdropID, account.String()).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Allocation{}, false, nil
		}
		return entities.Allocation{}, false, err
	}
	return row.toEntity(), true, nil
}

func (r *Repository) AddAllocations(
	ctx context.Context,
	allocations []entities.Allocation,
) ([]valueobjects.AccountID, []valueobjects.AccountID, error) {
	added := make([]valueobjects.AccountID, 0, len(allocations))
	skipped := make([]valueobjects.AccountID, 0)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, allocation := range allocations {
			row := allocationModel{
				AirdropID: r.airdropID,
				Account:   allocation.Account.String(),
				Amount:    allocation.Amount.String(),
				UpdatedAt: allocation.UpdatedAt.UTC(),
			}
			result := tx.
				Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "airdrop_id"}, {Name: "account"}},
					DoNothing: true,
				}).
				Create(&row)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				skipped = append(skipped, allocation.Account)
				continue
			}
			added = append(added, allocation.Account)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return added, skipped, nil
}

func (r *Repository) UpdateAllocation(ctx context.Context, allocation entities.Allocation) error {
	result := r.db.WithContext(ctx).
		Model(&allocationModel{}).
		Where("airdrop_id = ? AND account = ?", r.airdropID, allocation.Account.String()).
		Updates(map[string]any{
			"amount":     allocation.Amount.String(),
			"updated_at": allocation.UpdatedAt.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrAllocationNotFound
	}
	return nil
}

func (r *Repository) GetIdempotency(ctx context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	var row idempotencyModel
	err := r.db.WithContext(ctx).
		Where("airdrop_id = ? AND key = ?", r.airdropID, key).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.IdempotencyRecord{}, false, nil
		}
		return ports.IdempotencyRecord{}, false, err
	}

	if !row.ExpiresAt.IsZero() && now.UTC().After(row.ExpiresAt.UTC()) {
		if err := r.db.WithContext(ctx).
			Where("airdrop_id = ? AND key = ?", r.airdropID, key).
			Delete(&idempotencyModel{}).
			Error; err != nil {
			return ports.IdempotencyRecord{}, false, err
		}
		return ports.IdempotencyRecord{}, false, nil
	}
	return row.toPort(), true, nil
}

func (r *Repository) PutIdempotency(ctx context.Context, record ports.IdempotencyRecord) error {
	row := idempotencyModel{
		AirdropID:   r.airdropID,
		Key:         record.Key,
		RequestHash: record.RequestHash,
		Response:    record.Response,
		ExpiresAt:   record.ExpiresAt.UTC(),
	}
	createResult := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "airdrop_id"}, {Name: "key"}},
			DoNothing: true,
		}).
		Create(&row)
	if createResult.Error != nil {
		return createResult.Error
	}
	if createResult.RowsAffected > 0 {
		return nil
	}

	var existing idempotencyModel
	if err := r.db.WithContext(ctx).
		Where("airdrop_id = ? AND key = ?", r.airdropID, record.Key).
		First(&existing).
		Error; err != nil {
		return err
	}
	if existing.RequestHash != record.RequestHash {
		return domainerrors.ErrIdempotencyKeyConflict
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("airdrop_id = ? AND status = ?", r.airdropID, outboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).
		Error; err != nil {
		return nil, err
	}

	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toPort())
	}
	return items, nil
}

func (r *Repository) MarkOutboxSent(ctx context.Context, outboxID string, sentAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("airdrop_id = ? AND outbox_id = ?", r.airdropID, outboxID).
		Updates(map[string]any{
			"status":  outboxStatusSent,
			"sent_at": sentAt.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	return nil
}

func (r *Repository) ReserveEvent(
	ctx context.Context,
	eventID string,
	payloadHash string,
	expiresAt time.Time,
) (bool, error) {
	row := eventDedupModel{
		AirdropID:   r.airdropID,
		EventID:     eventID,
		PayloadHash: payloadHash,
		ExpiresAt:   expiresAt.UTC(),
		ProcessedAt: time.Now().UTC(),
	}

	createResult := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "airdrop_id"}, {Name: "event_id"}},
			DoNothing: true,
		}).
		Create(&row)
	if createResult.Error != nil {
		return false, createResult.Error
	}
	if createResult.RowsAffected > 0 {
		return false, nil
	}

	var existing eventDedupModel
	if err := r.db.WithContext(ctx).
		Select("payload_hash").
		Where("airdrop_id = ? AND event_id = ?", r.airdropID, eventID).
		First(&existing).
		Error; err != nil {
		return false, err
	}
	if existing.PayloadHash != payloadHash {
		return false, domainerrors.ErrIdempotencyKeyConflict
	}
	return true, nil
}

func (r *Repository) ReleaseEvent(ctx context.Context, eventID string) error {
	return r.db.WithContext(ctx).
		Where("airdrop_id = ? AND event_id = ?", r.airdropID, eventID).
		Delete(&eventDedupModel{}).
		Error
}

// transitionSaga writes saga only if the stored stage is still from.
func (r *Repository) transitionSaga(tx *gorm.DB, saga entities.ClaimSaga, from entities.SagaStage) error {
	result := tx.
		Model(&sagaModel{}).
		Where("airdrop_id = ? AND saga_id = ? AND stage = ?", r.airdropID, saga.SagaID, string(from)).
		Updates(map[string]any{
			"stage":          string(saga.Stage),
			"failure_stage":  string(saga.FailureStage),
			"failure_reason": saga.FailureReason,
			"updated_at":     saga.UpdatedAt.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		r.logger.Warn("claim saga conditional update matched no row",
			"event", "postgres_saga_transition_conflict",
			"module", "token-distribution/airdrop-claim-service",
			"layer", "adapter",
			"saga_id", saga.SagaID,
			"from", from,
			"to", saga.Stage,
		)
		return domainerrors.ErrInvalidSagaTransition
	}
	return nil
}

func (r *Repository) insertOutbox(tx *gorm.DB, event ports.ClaimSettledEvent, payload []byte) error {
	row := outboxModel{
		AirdropID:    r.airdropID,
		OutboxID:     event.EventID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    event.OccurredAt.UTC(),
	}
	if err := tx.Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrRepositoryInvariantBroke
		}
		return err
	}
	return nil
}

func buildSettledPayload(event ports.ClaimSettledEvent) ([]byte, error) {
	envelope, err := ports.NewClaimSettledEnvelope(event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
