package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"SignalFlow/internal/domain/models"
	drepo "SignalFlow/internal/domain/repository"
	"SignalFlow/pkg/logger"

	"github.com/shopspring/decimal"
)

// ExecutorConfig holds risk limits and the defaults used for auto-trading.
type ExecutorConfig struct {
	MinRisk       float64
	MaxRisk       float64
	AccountEquity float64
	RiskPercent   float64
	QuantityStep  float64
	TradeTTL      time.Duration
	SubmitTimeout time.Duration
}

// TradeExecutor sizes and submits risk-bounded market orders, one at a time
// per symbol across every instance.
type TradeExecutor struct {
	exchange drepo.Exchange
	locker   drepo.Locker
	book     *SessionBook
	metrics  drepo.Metrics
	log      *logger.Logger
	cfg      ExecutorConfig
	now      func() time.Time
}

func NewTradeExecutor(
	exchange drepo.Exchange,
	locker drepo.Locker,
	book *SessionBook,
	metrics drepo.Metrics,
	log *logger.Logger,
	cfg ExecutorConfig,
) *TradeExecutor {
	if cfg.MinRisk <= 0 {
		cfg.MinRisk = 2.0
	}
	if cfg.MaxRisk <= 0 {
		cfg.MaxRisk = 4.0
	}
	if cfg.TradeTTL <= 0 {
		cfg.TradeTTL = 10 * time.Second
	}
	if cfg.SubmitTimeout <= 0 || cfg.SubmitTimeout > cfg.TradeTTL {
		cfg.SubmitTimeout = cfg.TradeTTL
	}
	return &TradeExecutor{
		exchange: exchange,
		locker:   locker,
		book:     book,
		metrics:  metrics,
		log:      log.With(logger.String("component", "trade_executor")),
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ExecuteTrade trades the latest actionable signal of symbol, risking
// riskPercent of accountEquity. Validation happens before any side effect.
func (x *TradeExecutor) ExecuteTrade(ctx context.Context, symbol string, accountEquity, riskPercent float64) (*models.TradeResult, error) {
	if !(riskPercent >= x.cfg.MinRisk && riskPercent <= x.cfg.MaxRisk) {
		x.metrics.RecordTrade("invalid")
		return nil, fmt.Errorf("%w: %.2f not in [%.1f, %.1f]", models.ErrInvalidRisk, riskPercent, x.cfg.MinRisk, x.cfg.MaxRisk)
	}
	if !finite(accountEquity) || accountEquity <= 0 {
		x.metrics.RecordTrade("invalid")
		return nil, fmt.Errorf("%w: account equity %.2f", models.ErrInvalidQuantity, accountEquity)
	}

	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	sig, ok := x.book.LatestSignal(symbol)
	if !ok || !sig.Kind.Actionable() {
		return nil, fmt.Errorf("%w: %s", models.ErrNoActionableSignal, symbol)
	}
	return x.execute(ctx, sig, accountEquity, riskPercent)
}

// ExecuteSignal trades sig with the configured equity and risk.
func (x *TradeExecutor) ExecuteSignal(ctx context.Context, sig models.TradingSignal) (*models.TradeResult, error) {
	if !sig.Kind.Actionable() {
		return nil, fmt.Errorf("%w: %s is %s", models.ErrNoActionableSignal, sig.Symbol, sig.Kind)
	}
	return x.execute(ctx, sig, x.cfg.AccountEquity, x.cfg.RiskPercent)
}

func (x *TradeExecutor) execute(ctx context.Context, sig models.TradingSignal, equity, risk float64) (*models.TradeResult, error) {
	side, _ := models.SideFor(sig.Kind)
	qty, budget, err := PositionSize(equity, risk, sig.StopDistance, x.cfg.QuantityStep)
	if err != nil {
		x.metrics.RecordTrade("invalid")
		return nil, err
	}

	lease, err := x.locker.Acquire(ctx, "trade:"+sig.Symbol, x.cfg.TradeTTL)
	if err != nil {
		if errors.Is(err, models.ErrContended) {
			x.metrics.RecordLock("trade", "contended")
			x.metrics.RecordTrade("contended")
		} else {
			x.metrics.RecordLock("trade", "error")
		}
		return nil, fmt.Errorf("trade lock %s: %w", sig.Symbol, err)
	}
	x.metrics.RecordLock("trade", "acquired")
	defer x.release(ctx, lease)

	// The order must not be abandoned half way because the caller went away.
	bg := context.WithoutCancel(ctx)
	subCtx, cancel := context.WithTimeout(bg, x.cfg.SubmitTimeout)
	start := time.Now()
	ack, err := x.exchange.Submit(subCtx, sig.Symbol, side, qty)
	cancel()
	x.metrics.RecordLatency("submit_order", time.Since(start).Seconds())

	if err != nil {
		x.metrics.RecordTrade("rejected")
		rej := models.TradeRejected{
			Symbol:     sig.Symbol,
			Interval:   sig.Interval,
			Side:       side,
			Quantity:   qty,
			Reason:     err.Error(),
			RejectedAt: x.now(),
		}
		if rerr := x.book.RecordRejection(bg, rej); rerr != nil {
			x.log.Error("trade rejection not recorded", logger.String("symbol", sig.Symbol), logger.Error(rerr))
		}
		return nil, fmt.Errorf("submit %s %s: %w", side, sig.Symbol, err)
	}

	res := models.TradeResult{
		Symbol:        sig.Symbol,
		Interval:      sig.Interval,
		Side:          side,
		Quantity:      qty,
		RiskPercent:   risk,
		RiskBudget:    budget,
		AccountEquity: equity,
		StopDistance:  sig.StopDistance,
		EntryPrice:    sig.Price,
		OrderID:       ack.OrderID,
		Status:        ack.Status,
		Strategy:      sig.Strategy,
		ExecutedAt:    x.now(),
	}
	if ack.AvgPrice > 0 {
		res.EntryPrice = ack.AvgPrice
	}

	if err := x.book.RecordTrade(bg, res); err != nil {
		// The order is live at the exchange; surface the bookkeeping failure.
		x.metrics.RecordError("record_trade")
		return &res, err
	}

	x.metrics.RecordTrade("executed")
	x.log.Info("trade executed",
		logger.String("symbol", res.Symbol),
		logger.String("side", string(res.Side)),
		logger.Float64("quantity", res.Quantity),
		logger.Float64("risk_budget", res.RiskBudget),
		logger.String("order_id", res.OrderID),
	)
	return &res, nil
}

func (x *TradeExecutor) release(ctx context.Context, lease *models.Lease) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := x.locker.Release(rctx, lease); err != nil && !errors.Is(err, models.ErrLeaseLost) {
		x.log.Warn("trade lock release failed", logger.String("key", lease.Key), logger.Error(err))
	}
}

// PositionSize returns the order quantity and risk budget for a trade. The
// quantity is rounded down to step so quantity x stopDistance never exceeds
// the budget (equity x riskPercent / 100).
func PositionSize(equity, riskPercent, stopDistance, step float64) (float64, float64, error) {
	if !finite(equity) || !finite(riskPercent) {
		return 0, 0, fmt.Errorf("%w: equity %v risk %v", models.ErrInvalidQuantity, equity, riskPercent)
	}
	if !finite(stopDistance) || stopDistance <= 0 {
		return 0, 0, fmt.Errorf("%w: stop distance %v", models.ErrInvalidQuantity, stopDistance)
	}
	if !finite(step) {
		return 0, 0, fmt.Errorf("%w: quantity step %v", models.ErrInvalidQuantity, step)
	}
	budget := decimal.NewFromFloat(equity).
		Mul(decimal.NewFromFloat(riskPercent)).
		Div(decimal.NewFromInt(100))
	qty := budget.Div(decimal.NewFromFloat(stopDistance))
	if step > 0 {
		s := decimal.NewFromFloat(step)
		qty = qty.Div(s).Floor().Mul(s)
	} else {
		qty = qty.Truncate(8)
	}
	if !qty.IsPositive() {
		return 0, 0, fmt.Errorf("%w: budget %s over stop %v", models.ErrInvalidQuantity, budget.StringFixed(2), stopDistance)
	}
	return qty.InexactFloat64(), budget.InexactFloat64(), nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
