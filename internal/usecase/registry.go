package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"SignalFlow/internal/domain/models"
	drepo "SignalFlow/internal/domain/repository"
	"SignalFlow/internal/service/strategy"
	"SignalFlow/pkg/logger"
)

// Registry owns the lifecycle of monitoring sessions: Idle -> Monitoring ->
// Stopped. Each active session has exactly one engine goroutine.
type Registry struct {
	book       *SessionBook
	store      drepo.SessionStore
	strategies *strategy.Registry
	engine     *SignalEngine
	metrics    drepo.Metrics
	log        *logger.Logger

	base      context.Context
	cancelAll context.CancelFunc
	wg        sync.WaitGroup
	now       func() time.Time
}

func NewRegistry(
	book *SessionBook,
	store drepo.SessionStore,
	strategies *strategy.Registry,
	engine *SignalEngine,
	metrics drepo.Metrics,
	log *logger.Logger,
) *Registry {
	base, cancel := context.WithCancel(context.Background())
	return &Registry{
		book:       book,
		store:      store,
		strategies: strategies,
		engine:     engine,
		metrics:    metrics,
		log:        log.With(logger.String("component", "registry")),
		base:       base,
		cancelAll:  cancel,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// StartMonitoring begins a session. It returns false without side effects
// when the (symbol, interval) pair is already monitored.
func (r *Registry) StartMonitoring(ctx context.Context, symbol, interval, strategyName string, autoTrade bool) (bool, error) {
	key := models.NewSessionKey(symbol, interval)
	if key.Symbol == "" {
		return false, fmt.Errorf("%w: symbol is required", models.ErrInvalidSymbol)
	}
	if !models.IsValidInterval(key.Interval) {
		return false, fmt.Errorf("%w: %q", models.ErrInvalidInterval, interval)
	}
	strat, err := r.strategies.Resolve(strings.TrimSpace(strategyName))
	if err != nil {
		return false, err
	}
	if r.book.Has(key) {
		return false, nil
	}

	sess := models.MonitoringSession{
		Symbol:    key.Symbol,
		Interval:  key.Interval,
		Strategy:  strat.Name(),
		AutoTrade: autoTrade,
		StartedAt: r.now(),
	}

	runCtx, cancel := context.WithCancel(r.base)
	e, err := r.book.open(ctx, sess, cancel)
	if errors.Is(err, models.ErrSessionExists) {
		cancel()
		return false, nil
	}
	if err != nil {
		cancel()
		return false, err
	}

	r.launch(runCtx, e, sess, strat)
	r.metrics.SetActiveSessions(r.book.Len())
	r.log.Info("monitoring started",
		logger.String("session", key.String()),
		logger.String("strategy", sess.Strategy),
		logger.Bool("auto_trade", autoTrade),
	)
	return true, nil
}

// StopMonitoring ends a session and cancels its feed. It returns false when
// the session is not active.
func (r *Registry) StopMonitoring(ctx context.Context, symbol, interval string) (bool, error) {
	key := models.NewSessionKey(symbol, interval)
	snap, err := r.book.close(ctx, key, models.StopReasonRequested, "", nil)
	if errors.Is(err, models.ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	r.metrics.SetActiveSessions(r.book.Len())
	r.log.Info("monitoring stopped",
		logger.String("session", key.String()),
		logger.Int64("signals_generated", snap.SignalsGenerated),
		logger.Int64("trades_executed", snap.TradesExecuted),
	)
	return true, nil
}

// ListActiveSessions returns snapshots in start order.
func (r *Registry) ListActiveSessions() []models.MonitoringSession {
	return r.book.Snapshot()
}

// GetLatestSignals maps each monitored symbol to its newest signal.
func (r *Registry) GetLatestSignals() map[string]models.TradingSignal {
	return r.book.Latest()
}

// Restore resumes every persisted session. Sessions whose strategy is no
// longer registered are skipped.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	sessions, err := r.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore sessions: %w", err)
	}

	restored := 0
	for _, sess := range sessions {
		strat, err := r.strategies.Resolve(sess.Strategy)
		if err != nil {
			r.log.Warn("skipping persisted session",
				logger.String("session", sess.Key().String()),
				logger.Error(err),
			)
			continue
		}
		runCtx, cancel := context.WithCancel(r.base)
		e, err := r.book.adopt(sess, cancel)
		if err != nil {
			cancel()
			continue
		}
		r.launch(runCtx, e, sess, strat)
		restored++
	}

	r.metrics.SetActiveSessions(r.book.Len())
	if restored > 0 {
		r.log.Info("sessions restored", logger.Int("count", restored))
	}
	return restored, nil
}

// Shutdown stops every engine goroutine. Sessions stay persisted so the next
// Restore resumes them.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.cancelAll()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) launch(ctx context.Context, e *sessionEntry, sess models.MonitoringSession, strat strategy.Strategy) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		err := r.engine.Run(ctx, sess, strat)
		if err == nil || ctx.Err() != nil {
			return
		}

		key := sess.Key()
		r.log.Error("feed failed, stopping session", logger.String("session", key.String()), logger.Error(err))
		if _, cerr := r.book.close(context.WithoutCancel(ctx), key, models.StopReasonFeedFailure, err.Error(), e); cerr != nil {
			if !errors.Is(cerr, models.ErrSessionNotFound) {
				r.log.Error("recording feed failure", logger.String("session", key.String()), logger.Error(cerr))
			}
			return
		}
		r.metrics.SetActiveSessions(r.book.Len())
	}()
}
