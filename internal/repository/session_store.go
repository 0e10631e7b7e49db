package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"SignalFlow/internal/domain/models"
	"SignalFlow/internal/domain/repository"

	"gorm.io/gorm"
)

// SessionRecord persists an active monitoring session so it survives restarts.
type SessionRecord struct {
	Symbol           string `gorm:"primaryKey;size:32"`
	Interval         string `gorm:"primaryKey;size:8;column:candle_interval"`
	Strategy         string `gorm:"size:64;not null"`
	AutoTrade        bool   `gorm:"not null"`
	StartedAt        time.Time
	SignalsGenerated int64
	TradesExecuted   int64
	LatestSignal     []byte
	UpdatedAt        time.Time
}

func (SessionRecord) TableName() string { return "monitoring_sessions" }

// SessionStore implements repository.SessionStore with gorm.
type SessionStore struct {
	db *gorm.DB
}

func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db}
}

var _ repository.SessionStore = (*SessionStore)(nil)

func (s *SessionStore) Create(ctx context.Context, sess models.MonitoringSession) error {
	rec := SessionRecord{
		Symbol:           sess.Symbol,
		Interval:         sess.Interval,
		Strategy:         sess.Strategy,
		AutoTrade:        sess.AutoTrade,
		StartedAt:        sess.StartedAt,
		SignalsGenerated: sess.SignalsGenerated,
		TradesExecuted:   sess.TradesExecuted,
		UpdatedAt:        time.Now().UTC(),
	}
	if sess.LatestSignal != nil {
		b, err := json.Marshal(sess.LatestSignal)
		if err != nil {
			return fmt.Errorf("session %s marshal signal: %w", sess.Key(), err)
		}
		rec.LatestSignal = b
	}
	if err := conn(ctx, s.db).Create(&rec).Error; err != nil {
		return fmt.Errorf("session %s create: %w", sess.Key(), err)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, key models.SessionKey) error {
	res := conn(ctx, s.db).
		Where("symbol = ? AND candle_interval = ?", key.Symbol, key.Interval).
		Delete(&SessionRecord{})
	if res.Error != nil {
		return fmt.Errorf("session %s delete: %w", key, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("session %s: %w", key, models.ErrSessionNotFound)
	}
	return nil
}

func (s *SessionStore) SaveSignal(ctx context.Context, key models.SessionKey, sig models.TradingSignal, signalsGenerated int64) error {
	b, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("session %s marshal signal: %w", key, err)
	}
	return s.update(ctx, key, map[string]interface{}{
		"latest_signal":     b,
		"signals_generated": signalsGenerated,
	})
}

func (s *SessionStore) SaveTradeCount(ctx context.Context, key models.SessionKey, tradesExecuted int64) error {
	return s.update(ctx, key, map[string]interface{}{
		"trades_executed": tradesExecuted,
	})
}

func (s *SessionStore) List(ctx context.Context) ([]models.MonitoringSession, error) {
	var recs []SessionRecord
	if err := conn(ctx, s.db).Order("started_at ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("session list: %w", err)
	}

	out := make([]models.MonitoringSession, 0, len(recs))
	for _, r := range recs {
		sess := models.MonitoringSession{
			Symbol:           r.Symbol,
			Interval:         r.Interval,
			Strategy:         r.Strategy,
			AutoTrade:        r.AutoTrade,
			StartedAt:        r.StartedAt,
			SignalsGenerated: r.SignalsGenerated,
			TradesExecuted:   r.TradesExecuted,
		}
		if len(r.LatestSignal) > 0 {
			var sig models.TradingSignal
			if err := json.Unmarshal(r.LatestSignal, &sig); err != nil {
				return nil, fmt.Errorf("session %s decode signal: %w", sess.Key(), err)
			}
			sess.LatestSignal = &sig
		}
		out = append(out, sess)
	}
	return out, nil
}

func (s *SessionStore) update(ctx context.Context, key models.SessionKey, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now().UTC()
	res := conn(ctx, s.db).Model(&SessionRecord{}).
		Where("symbol = ? AND candle_interval = ?", key.Symbol, key.Interval).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("session %s update: %w", key, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("session %s: %w", key, models.ErrSessionNotFound)
	}
	return nil
}
