package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"SignalFlow/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStoreLifecycle(t *testing.T) {
	db := newTestDB(t)
	store := NewSessionStore(db)
	ctx := context.Background()
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	sess := models.MonitoringSession{
		Symbol:    "BTCUSDT",
		Interval:  "5m",
		Strategy:  "EmaMomentumScalper",
		AutoTrade: true,
		StartedAt: started,
	}
	require.NoError(t, store.Create(ctx, sess))
	assert.Error(t, store.Create(ctx, sess), "duplicate key")

	sig := models.TradingSignal{
		Symbol:     "BTCUSDT",
		Interval:   "5m",
		Kind:       models.SignalBuy,
		Confidence: 0.7,
		Price:      64000,
		Timestamp:  started.Add(5 * time.Minute),
		Strategy:   "EmaMomentumScalper",
	}
	require.NoError(t, store.SaveSignal(ctx, sess.Key(), sig, 1))
	require.NoError(t, store.SaveTradeCount(ctx, sess.Key(), 1))

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	got := list[0]
	assert.Equal(t, "EmaMomentumScalper", got.Strategy)
	assert.True(t, got.AutoTrade)
	assert.EqualValues(t, 1, got.SignalsGenerated)
	assert.EqualValues(t, 1, got.TradesExecuted)
	require.NotNil(t, got.LatestSignal)
	assert.Equal(t, models.SignalBuy, got.LatestSignal.Kind)

	require.NoError(t, store.Delete(ctx, sess.Key()))
	assert.ErrorIs(t, store.Delete(ctx, sess.Key()), models.ErrSessionNotFound)
	assert.ErrorIs(t, store.SaveTradeCount(ctx, sess.Key(), 2), models.ErrSessionNotFound)
}

func TestSessionCreateJoinsTransaction(t *testing.T) {
	db := newTestDB(t)
	store := NewSessionStore(db)
	tx := &GormTransactor{db: db}

	err := tx.WithinTx(context.Background(), func(ctx context.Context) error {
		require.NoError(t, store.Create(ctx, models.MonitoringSession{
			Symbol: "ETHUSDT", Interval: "1m", Strategy: "SmaCrossover", StartedAt: time.Now().UTC(),
		}))
		return errors.New("abort")
	})
	require.Error(t, err)

	list, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}
