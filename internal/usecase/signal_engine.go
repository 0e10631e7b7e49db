package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SignalFlow/internal/domain/models"
	drepo "SignalFlow/internal/domain/repository"
	mid "SignalFlow/internal/middleware"
	"SignalFlow/internal/service/strategy"
	"SignalFlow/pkg/logger"
	"SignalFlow/pkg/util"
)

var errFeedClosed = errors.New("feed closed the stream")

// Trader places orders for actionable signals of auto-trade sessions.
type Trader interface {
	ExecuteSignal(ctx context.Context, sig models.TradingSignal) (*models.TradeResult, error)
}

// EngineConfig tunes the per-session feed loop.
type EngineConfig struct {
	WindowSize    int
	BackoffMin    time.Duration
	BackoffMax    time.Duration
	MaxReconnects int
}

// SignalEngine turns a session's candle stream into signals.
type SignalEngine struct {
	feed    drepo.PriceFeed
	guard   *mid.CandleGuard
	book    *SessionBook
	trader  Trader
	metrics drepo.Metrics
	log     *logger.Logger
	cfg     EngineConfig
}

func NewSignalEngine(
	feed drepo.PriceFeed,
	guard *mid.CandleGuard,
	book *SessionBook,
	trader Trader,
	metrics drepo.Metrics,
	log *logger.Logger,
	cfg EngineConfig,
) *SignalEngine {
	if cfg.WindowSize < 2 {
		cfg.WindowSize = 200
	}
	return &SignalEngine{
		feed:    feed,
		guard:   guard,
		book:    book,
		trader:  trader,
		metrics: metrics,
		log:     log.With(logger.String("component", "signal_engine")),
		cfg:     cfg,
	}
}

// Run consumes the feed of sess until ctx is cancelled or the session is
// removed, in both cases returning nil. It returns an error once the feed
// has failed more than MaxReconnects times in a row.
func (e *SignalEngine) Run(ctx context.Context, sess models.MonitoringSession, strat strategy.Strategy) error {
	key := sess.Key()
	log := e.log.With(logger.String("session", key.String()))
	defer e.guard.Forget(key)

	w := &window{size: e.cfg.WindowSize}
	failures := 0
	for {
		err := e.consume(ctx, sess, strat, w, &failures)
		if ctx.Err() != nil || errors.Is(err, models.ErrSessionNotFound) {
			return nil
		}

		failures++
		if failures > e.cfg.MaxReconnects {
			return fmt.Errorf("%s: giving up after %d attempts: %w", key, failures, err)
		}

		delay := util.BackoffWithJitter(e.cfg.BackoffMin, e.cfg.BackoffMax, failures)
		log.Warn("feed error, reconnecting",
			logger.Error(err),
			logger.Int("attempt", failures),
			logger.Duration("backoff_ms", delay),
		)
		e.metrics.RecordFeedReconnect(key.Symbol)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// consume runs one subscription to completion.
func (e *SignalEngine) consume(ctx context.Context, sess models.MonitoringSession, strat strategy.Strategy, w *window, failures *int) error {
	key := sess.Key()
	sub, err := e.feed.Subscribe(ctx, key)
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Errors():
			if err == nil {
				err = errFeedClosed
			}
			return err
		case c, ok := <-sub.Updates():
			if !ok {
				select {
				case err := <-sub.Errors():
					if err != nil {
						return err
					}
				default:
				}
				return errFeedClosed
			}
			*failures = 0
			if err := e.evaluate(ctx, sess, strat, w, c); err != nil {
				return err
			}
		}
	}
}

// evaluate handles one update. Only ErrSessionNotFound is returned; every
// other failure is logged and the tick is dropped.
func (e *SignalEngine) evaluate(ctx context.Context, sess models.MonitoringSession, strat strategy.Strategy, w *window, c models.Candle) error {
	key := sess.Key()
	if err := e.guard.Check(key, c); err != nil {
		e.log.Debug("candle dropped", logger.String("session", key.String()), logger.Error(err))
		return nil
	}
	if c.Symbol == "" {
		c.Symbol = key.Symbol
	}
	if c.Interval == "" {
		c.Interval = key.Interval
	}
	w.push(c)

	start := time.Now()
	sig := strat.Evaluate(w.candles)
	if sig.Symbol == "" {
		sig.Symbol = key.Symbol
	}
	if sig.Interval == "" {
		sig.Interval = key.Interval
	}

	if _, err := e.book.RecordSignal(ctx, key, sig); err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			return err
		}
		e.metrics.RecordError("record_signal")
		e.log.Error("signal not recorded", logger.String("session", key.String()), logger.Error(err))
		return nil
	}
	e.metrics.RecordSignal(sig.Strategy, sig.Kind)
	e.metrics.RecordLatency("evaluate", time.Since(start).Seconds())

	if !sess.AutoTrade || !sig.Kind.Actionable() {
		return nil
	}
	if _, err := e.trader.ExecuteSignal(ctx, sig); err != nil {
		log := e.log.With(logger.String("session", key.String()), logger.String("kind", string(sig.Kind)))
		if errors.Is(err, models.ErrContended) {
			log.Info("auto trade skipped, symbol busy")
		} else {
			log.Warn("auto trade failed", logger.Error(err))
		}
	}
	return nil
}

// window keeps the newest candles, oldest first. An update for the candle
// that is still open replaces it instead of appending.
type window struct {
	size    int
	candles []models.Candle
}

func (w *window) push(c models.Candle) {
	if n := len(w.candles); n > 0 && w.candles[n-1].OpenTime.Equal(c.OpenTime) {
		w.candles[n-1] = c
		return
	}
	w.candles = append(w.candles, c)
	if over := len(w.candles) - w.size; over > 0 {
		w.candles = append(w.candles[:0], w.candles[over:]...)
	}
}
