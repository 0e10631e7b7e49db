package middleware

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"SignalFlow/internal/domain/models"
	domrepo "SignalFlow/internal/domain/repository"
)

var (
	ErrInvalidCandle = errors.New("invalid candle")
	ErrStaleCandle   = errors.New("out-of-order candle")
)

// CandleGuard sits between the price feed and strategy evaluation. It drops
// malformed updates and updates older than the last accepted candle of the
// same session. Repeated updates of the still-open candle (same OpenTime)
// pass through.
type CandleGuard struct {
	metrics  domrepo.Metrics
	mu       sync.Mutex
	lastSeen map[models.SessionKey]time.Time // per-session last accepted OpenTime
}

func NewCandleGuard(metrics domrepo.Metrics) *CandleGuard {
	return &CandleGuard{
		metrics:  metrics,
		lastSeen: make(map[models.SessionKey]time.Time),
	}
}

// Check returns nil if c may be evaluated for key.
func (g *CandleGuard) Check(key models.SessionKey, c models.Candle) error {
	if err := validateCandle(key, c); err != nil {
		g.metrics.RecordError("candle_invalid")
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	last, ok := g.lastSeen[key]
	if ok && c.OpenTime.Before(last) {
		g.metrics.RecordError("candle_out_of_order")
		return fmt.Errorf("%w: %s open %s before %s", ErrStaleCandle, key, c.OpenTime.Format(time.RFC3339), last.Format(time.RFC3339))
	}
	g.lastSeen[key] = c.OpenTime
	return nil
}

// Forget drops the ordering state of a stopped session.
func (g *CandleGuard) Forget(key models.SessionKey) {
	g.mu.Lock()
	delete(g.lastSeen, key)
	g.mu.Unlock()
}

func validateCandle(key models.SessionKey, c models.Candle) error {
	if c.Symbol != "" && c.Symbol != key.Symbol {
		return fmt.Errorf("%w: symbol %q on %s", ErrInvalidCandle, c.Symbol, key)
	}
	if c.OpenTime.IsZero() {
		return fmt.Errorf("%w: open time missing", ErrInvalidCandle)
	}
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close} {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-positive price", ErrInvalidCandle)
		}
	}
	if c.Volume < 0 {
		return fmt.Errorf("%w: negative volume", ErrInvalidCandle)
	}
	if c.High < c.Low {
		return fmt.Errorf("%w: high below low", ErrInvalidCandle)
	}
	return nil
}
