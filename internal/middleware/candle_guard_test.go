package middleware

import (
	"errors"
	"testing"
	"time"

	"SignalFlow/internal/domain/models"
	"SignalFlow/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func candle(open time.Time, price float64) models.Candle {
	return models.Candle{
		Symbol:   "BTCUSDT",
		Interval: "5m",
		OpenTime: open,
		Open:     price,
		High:     price + 1,
		Low:      price - 1,
		Close:    price,
		Volume:   10,
	}
}

func TestCandleGuard(t *testing.T) {
	g := NewCandleGuard(metrics.NewWithRegisterer(prometheus.NewRegistry()))
	key := models.NewSessionKey("btcusdt", "5m")
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.NoError(t, g.Check(key, candle(t0, 100)))
	// same open candle updating
	assert.NoError(t, g.Check(key, candle(t0, 101)))
	assert.NoError(t, g.Check(key, candle(t0.Add(5*time.Minute), 102)))

	err := g.Check(key, candle(t0, 99))
	assert.True(t, errors.Is(err, ErrStaleCandle))

	bad := candle(t0.Add(10*time.Minute), 100)
	bad.Low = 0
	assert.True(t, errors.Is(g.Check(key, bad), ErrInvalidCandle))

	other := candle(t0.Add(10*time.Minute), 100)
	other.Symbol = "ETHUSDT"
	assert.True(t, errors.Is(g.Check(key, other), ErrInvalidCandle))

	g.Forget(key)
	assert.NoError(t, g.Check(key, candle(t0, 100)))
}
