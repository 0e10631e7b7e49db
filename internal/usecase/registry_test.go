package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"SignalFlow/internal/domain/models"
	"SignalFlow/internal/repository"
	"SignalFlow/internal/service/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartMonitoringDuplicateReturnsFalse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ok, err := env.registry.StartMonitoring(ctx, "BTCUSDT", "5m", strategy.EmaMomentumName, false)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.registry.StartMonitoring(ctx, "btcusdt", "5m", strategy.SmaCrossoverName, true)
	require.NoError(t, err)
	assert.False(t, ok)

	sessions := env.registry.ListActiveSessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, strategy.EmaMomentumName, sessions[0].Strategy)
	assert.False(t, sessions[0].AutoTrade)
	assert.EqualValues(t, 1, env.outboxCount(t, models.EventMonitoringStarted))
}

func TestStartMonitoringRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.registry.StartMonitoring(ctx, "BTCUSDT", "5m", "Martingale", false)
	assert.True(t, errors.Is(err, models.ErrUnknownStrategy))

	_, err = env.registry.StartMonitoring(ctx, "BTCUSDT", "7m", strategy.EmaMomentumName, false)
	assert.True(t, errors.Is(err, models.ErrInvalidInterval))

	_, err = env.registry.StartMonitoring(ctx, "  ", "5m", strategy.EmaMomentumName, false)
	assert.True(t, errors.Is(err, models.ErrInvalidSymbol))

	assert.Empty(t, env.registry.ListActiveSessions())
	assert.Zero(t, env.totalOutbox(t))
}

func TestStopMonitoring(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	key := models.NewSessionKey("ETHUSDT", "1m")

	ok, err := env.registry.StartMonitoring(ctx, key.Symbol, key.Interval, strategy.RsiReversionName, false)
	require.NoError(t, err)
	require.True(t, ok)
	env.waitSubscribed(t, key)

	ok, err = env.registry.StopMonitoring(ctx, key.Symbol, key.Interval)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.registry.StopMonitoring(ctx, key.Symbol, key.Interval)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Empty(t, env.registry.ListActiveSessions())
	assert.EqualValues(t, 1, env.outboxCount(t, models.EventMonitoringStopped))
	require.Eventually(t, func() bool { return !env.feed.Subscribed(key) }, waitFor, tick)

	persisted, err := env.sessions.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, persisted)

	// the key can be monitored again
	ok, err = env.registry.StartMonitoring(ctx, key.Symbol, key.Interval, strategy.RsiReversionName, false)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestThreeUpdatesGenerateThreeSignals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	key := models.NewSessionKey("BTCUSDT", "5m")

	ok, err := env.registry.StartMonitoring(ctx, key.Symbol, key.Interval, strategy.EmaMomentumName, false)
	require.NoError(t, err)
	require.True(t, ok)
	env.waitSubscribed(t, key)

	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, price := range []float64{64000, 64120, 64090} {
		require.True(t, env.feed.Push(key, testCandle(key, t0.Add(time.Duration(i)*5*time.Minute), price)))
	}

	require.Eventually(t, func() bool {
		s, ok := env.book.Get(key)
		return ok && s.SignalsGenerated == 3
	}, waitFor, tick)

	s, _ := env.book.Get(key)
	require.NotNil(t, s.LatestSignal)
	assert.Equal(t, "BTCUSDT", s.LatestSignal.Symbol)
	assert.Equal(t, strategy.EmaMomentumName, s.LatestSignal.Strategy)
	assert.EqualValues(t, 3, env.outboxCount(t, models.EventSignalGenerated))

	persisted, err := env.sessions.List(ctx)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.EqualValues(t, 3, persisted[0].SignalsGenerated)
}

func TestUpdatesOfOpenCandleAreEvaluated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	key := models.NewSessionKey("BTCUSDT", "1m")

	_, err := env.registry.StartMonitoring(ctx, key.Symbol, key.Interval, strategy.EmaMomentumName, false)
	require.NoError(t, err)
	env.waitSubscribed(t, key)

	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.True(t, env.feed.Push(key, testCandle(key, t0.Add(time.Minute), 100)))
	require.True(t, env.feed.Push(key, testCandle(key, t0.Add(time.Minute), 101)))
	// older than the last accepted candle: dropped
	require.True(t, env.feed.Push(key, testCandle(key, t0, 99)))
	require.True(t, env.feed.Push(key, testCandle(key, t0.Add(2*time.Minute), 102)))

	require.Eventually(t, func() bool {
		s, ok := env.book.Get(key)
		return ok && s.SignalsGenerated == 3
	}, waitFor, tick)
	s, _ := env.book.Get(key)
	assert.Equal(t, 102.0, s.LatestSignal.Price)
}

func TestListActiveSessionsKeepsStartOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, sym := range []string{"SOLUSDT", "BTCUSDT", "ETHUSDT"} {
		ok, err := env.registry.StartMonitoring(ctx, sym, "15m", strategy.SmaCrossoverName, false)
		require.NoError(t, err)
		require.True(t, ok)
	}
	_, err := env.registry.StopMonitoring(ctx, "BTCUSDT", "15m")
	require.NoError(t, err)
	_, err = env.registry.StartMonitoring(ctx, "BTCUSDT", "15m", strategy.SmaCrossoverName, false)
	require.NoError(t, err)

	var got []string
	for _, s := range env.registry.ListActiveSessions() {
		got = append(got, s.Symbol)
	}
	assert.Equal(t, []string{"SOLUSDT", "ETHUSDT", "BTCUSDT"}, got)
}

func TestGetLatestSignalsNewestAcrossIntervals(t *testing.T) {
	env := newTestEnv(t)
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	env.seedSignal(t, models.TradingSignal{Symbol: "BTCUSDT", Interval: "1m", Kind: models.SignalBuy, Price: 1, Timestamp: t0.Add(time.Minute)})
	env.seedSignal(t, models.TradingSignal{Symbol: "BTCUSDT", Interval: "5m", Kind: models.SignalSell, Price: 2, Timestamp: t0})
	env.seedSignal(t, models.TradingSignal{Symbol: "ETHUSDT", Interval: "5m", Kind: models.SignalHold, Price: 3, Timestamp: t0})

	latest := env.registry.GetLatestSignals()
	require.Len(t, latest, 2)
	assert.Equal(t, "1m", latest["BTCUSDT"].Interval)
	assert.Equal(t, models.SignalBuy, latest["BTCUSDT"].Kind)
	assert.Equal(t, models.SignalHold, latest["ETHUSDT"].Kind)

	env.seedSignal(t, models.TradingSignal{Symbol: "BTCUSDT", Interval: "5m", Kind: models.SignalSell, Price: 4, Timestamp: t0.Add(5 * time.Minute)})
	assert.Equal(t, "5m", env.registry.GetLatestSignals()["BTCUSDT"].Interval)
}

func TestFeedFailureStopsSession(t *testing.T) {
	env := newTestEnv(t, withEngine(EngineConfig{
		WindowSize:    10,
		BackoffMin:    time.Millisecond,
		BackoffMax:    2 * time.Millisecond,
		MaxReconnects: 1,
	}))
	ctx := context.Background()
	key := models.NewSessionKey("BTCUSDT", "1m")

	_, err := env.registry.StartMonitoring(ctx, key.Symbol, key.Interval, strategy.EmaMomentumName, false)
	require.NoError(t, err)
	env.waitSubscribed(t, key)

	env.feed.SetSubscribeError(errors.New("dial tcp: connection refused"))
	require.True(t, env.feed.Fail(key, errors.New("read: connection reset")))

	require.Eventually(t, func() bool {
		return len(env.registry.ListActiveSessions()) == 0
	}, waitFor, tick)

	var rec repository.OutboxRecord
	require.NoError(t, env.db.Where("event_type = ?", models.EventMonitoringStopped).First(&rec).Error)
	var stopped models.SessionStopped
	require.NoError(t, json.Unmarshal(rec.Payload, &stopped))
	assert.Equal(t, models.StopReasonFeedFailure, stopped.Reason)
	assert.Contains(t, stopped.Detail, "connection refused")
	assert.Equal(t, 2, env.feed.SubscribeCalls(key))
}

func TestFeedReconnectsWithinBound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	key := models.NewSessionKey("BTCUSDT", "1m")

	_, err := env.registry.StartMonitoring(ctx, key.Symbol, key.Interval, strategy.EmaMomentumName, false)
	require.NoError(t, err)
	env.waitSubscribed(t, key)

	require.True(t, env.feed.Fail(key, errors.New("read: connection reset")))
	require.Eventually(t, func() bool { return env.feed.SubscribeCalls(key) == 2 && env.feed.Subscribed(key) }, waitFor, tick)

	assert.Len(t, env.registry.ListActiveSessions(), 1)
	require.True(t, env.feed.Push(key, testCandle(key, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), 100)))
	require.Eventually(t, func() bool {
		s, _ := env.book.Get(key)
		return s.SignalsGenerated == 1
	}, waitFor, tick)
}

func TestRestoreResumesPersistedSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	key := models.NewSessionKey("BTCUSDT", "5m")

	_, err := env.registry.StartMonitoring(ctx, key.Symbol, key.Interval, strategy.EmaMomentumName, true)
	require.NoError(t, err)
	env.waitSubscribed(t, key)
	require.True(t, env.feed.Push(key, testCandle(key, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), 100)))
	require.Eventually(t, func() bool {
		s, _ := env.book.Get(key)
		return s.SignalsGenerated == 1
	}, waitFor, tick)

	shutdownCtx, cancel := context.WithTimeout(ctx, waitFor)
	defer cancel()
	require.NoError(t, env.registry.Shutdown(shutdownCtx))

	// a new process over the same database
	next := buildEnv(t, env.db, defaultEnvConfig())
	n, err := next.registry.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sessions := next.registry.ListActiveSessions()
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].AutoTrade)
	assert.EqualValues(t, 1, sessions[0].SignalsGenerated)
	require.NotNil(t, sessions[0].LatestSignal)
	next.waitSubscribed(t, key)

	// restoring does not announce a second start
	assert.EqualValues(t, 1, next.outboxCount(t, models.EventMonitoringStarted))
}
