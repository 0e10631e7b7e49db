package repository

import (
	"context"
	"fmt"
	"time"

	"SignalFlow/internal/domain/models"
	"SignalFlow/internal/domain/repository"

	"github.com/samber/lo"
	"gorm.io/gorm"
)

// OutboxRecord is the persisted form of models.OutboxMessage.
type OutboxRecord struct {
	ID           string     `gorm:"primaryKey;size:36"`
	EventType    string     `gorm:"size:64;not null"`
	AggregateKey string     `gorm:"size:64;index"`
	Payload      []byte     `gorm:"not null"`
	Status       string     `gorm:"size:16;not null;index:idx_outbox_status_created,priority:1"`
	RetryCount   int        `gorm:"not null;default:0"`
	LastError    string     `gorm:"size:512"`
	CreatedAt    time.Time  `gorm:"not null;index:idx_outbox_status_created,priority:2"`
	UpdatedAt    time.Time  `gorm:"not null"`
	ProcessedAt  *time.Time
}

func (OutboxRecord) TableName() string { return "outbox_messages" }

// OutboxStore implements repository.OutboxStore with gorm.
type OutboxStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewOutboxStore(db *gorm.DB) *OutboxStore {
	return &OutboxStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

var _ repository.OutboxStore = (*OutboxStore)(nil)

func (s *OutboxStore) Add(ctx context.Context, msg *models.OutboxMessage) error {
	tx, ok := txFrom(ctx)
	if !ok {
		return models.ErrOutsideTransaction
	}
	rec := toOutboxRecord(msg)
	rec.UpdatedAt = rec.CreatedAt
	if err := tx.Create(&rec).Error; err != nil {
		return fmt.Errorf("outbox add %s: %w", msg.EventType, err)
	}
	return nil
}

func (s *OutboxStore) GetUnprocessed(ctx context.Context, batchSize int) ([]models.OutboxMessage, error) {
	var recs []OutboxRecord
	err := conn(ctx, s.db).
		Where("status = ?", string(models.OutboxPending)).
		Order("created_at ASC, id ASC").
		Limit(batchSize).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("outbox fetch: %w", err)
	}
	return lo.Map(recs, func(r OutboxRecord, _ int) models.OutboxMessage { return r.toModel() }), nil
}

func (s *OutboxStore) MarkProcessed(ctx context.Context, id string) error {
	now := s.now()
	return s.transition(ctx, id, models.OutboxProcessed, map[string]interface{}{
		"status":       string(models.OutboxProcessed),
		"processed_at": now,
		"updated_at":   now,
	})
}

func (s *OutboxStore) MarkStatus(ctx context.Context, id string, status models.OutboxStatus) error {
	if status == models.OutboxProcessed {
		return s.MarkProcessed(ctx, id)
	}
	return s.transition(ctx, id, status, map[string]interface{}{
		"status":     string(status),
		"updated_at": s.now(),
	})
}

// IncrementRetry bumps the retry counter and returns the new value.
func (s *OutboxStore) IncrementRetry(ctx context.Context, id string, cause string) (int, error) {
	var count int
	err := conn(ctx, s.db).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&OutboxRecord{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"retry_count": gorm.Expr("retry_count + 1"),
				"last_error":  truncate(cause, 512),
				"updated_at":  s.now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("outbox message %s: %w", id, models.ErrNotFound)
		}
		return tx.Model(&OutboxRecord{}).Where("id = ?", id).Pluck("retry_count", &count).Error
	})
	if err != nil {
		return 0, fmt.Errorf("outbox increment retry: %w", err)
	}
	return count, nil
}

// ResetStale returns messages stuck in Processing for longer than olderThan
// to Pending, e.g. after a drainer crashed mid-cycle.
func (s *OutboxStore) ResetStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := s.now()
	res := conn(ctx, s.db).Model(&OutboxRecord{}).
		Where("status = ? AND updated_at < ?", string(models.OutboxProcessing), now.Add(-olderThan)).
		Updates(map[string]interface{}{
			"status":     string(models.OutboxPending),
			"updated_at": now,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("outbox reset stale: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *OutboxStore) ListFailed(ctx context.Context, limit int) ([]models.OutboxMessage, error) {
	var recs []OutboxRecord
	err := conn(ctx, s.db).
		Where("status = ?", string(models.OutboxFailed)).
		Order("created_at DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("outbox list failed: %w", err)
	}
	return lo.Map(recs, func(r OutboxRecord, _ int) models.OutboxMessage { return r.toModel() }), nil
}

// Get loads a single message regardless of status.
func (s *OutboxStore) Get(ctx context.Context, id string) (models.OutboxMessage, error) {
	var rec OutboxRecord
	err := conn(ctx, s.db).Where("id = ?", id).Take(&rec).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return models.OutboxMessage{}, fmt.Errorf("outbox message %s: %w", id, models.ErrNotFound)
		}
		return models.OutboxMessage{}, fmt.Errorf("outbox get: %w", err)
	}
	return rec.toModel(), nil
}

func (s *OutboxStore) transition(ctx context.Context, id string, to models.OutboxStatus, updates map[string]interface{}) error {
	from := models.AllowedFrom(to)
	if len(from) == 0 {
		return fmt.Errorf("outbox message %s -> %s: %w", id, to, models.ErrInvalidTransition)
	}
	statuses := lo.Map(from, func(st models.OutboxStatus, _ int) string { return string(st) })

	db := conn(ctx, s.db)
	res := db.Model(&OutboxRecord{}).
		Where("id = ? AND status IN ?", id, statuses).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("outbox mark %s: %w", to, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var n int64
	if err := db.Model(&OutboxRecord{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("outbox mark %s: %w", to, err)
	}
	if n == 0 {
		return fmt.Errorf("outbox message %s: %w", id, models.ErrNotFound)
	}
	return fmt.Errorf("outbox message %s -> %s: %w", id, to, models.ErrInvalidTransition)
}

func toOutboxRecord(m *models.OutboxMessage) OutboxRecord {
	status := m.Status
	if status == "" {
		status = models.OutboxPending
	}
	return OutboxRecord{
		ID:           m.ID,
		EventType:    m.EventType,
		AggregateKey: m.AggregateKey,
		Payload:      m.Payload,
		Status:       string(status),
		RetryCount:   m.RetryCount,
		LastError:    m.LastError,
		CreatedAt:    m.CreatedAt,
		ProcessedAt:  m.ProcessedAt,
	}
}

func (r OutboxRecord) toModel() models.OutboxMessage {
	return models.OutboxMessage{
		ID:           r.ID,
		EventType:    r.EventType,
		AggregateKey: r.AggregateKey,
		Payload:      r.Payload,
		Status:       models.OutboxStatus(r.Status),
		RetryCount:   r.RetryCount,
		LastError:    r.LastError,
		CreatedAt:    r.CreatedAt,
		ProcessedAt:  r.ProcessedAt,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
