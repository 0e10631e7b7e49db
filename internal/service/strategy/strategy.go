// Package strategy holds the pluggable signal strategies. A strategy is a
// pure function of the candle window; the engine owns all state.
package strategy

import (
	"fmt"
	"sort"
	"sync"

	"SignalFlow/internal/domain/models"

	"github.com/samber/lo"
)

// Strategy evaluates a window of candles, oldest first, into a signal.
// Implementations must return HOLD when the window is too short.
type Strategy interface {
	Name() string
	Evaluate(window []models.Candle) models.TradingSignal
}

// Factory builds a fresh strategy instance for one session.
type Factory func() Strategy

// Registry maps strategy names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry preloaded with the built-in strategies.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(EmaMomentumName, func() Strategy { return NewEmaMomentum(9, 21, 5) })
	r.Register(SmaCrossoverName, func() Strategy { return NewSmaCrossover(10, 30) })
	r.Register(RsiReversionName, func() Strategy { return NewRsiReversion(14, 30, 70) })
	return r
}

// Register adds or replaces a strategy.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Resolve builds the named strategy.
func (r *Registry) Resolve(name string) (Strategy, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownStrategy, name)
	}
	return f(), nil
}

// Names lists registered strategies in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := lo.Keys(r.factories)
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// hold builds a neutral signal for the last candle of window.
func hold(name string, window []models.Candle) models.TradingSignal {
	return signalFor(name, window, models.SignalHold, 0)
}

func signalFor(name string, window []models.Candle, kind models.SignalKind, confidence float64) models.TradingSignal {
	sig := models.TradingSignal{
		Kind:       kind,
		Confidence: clamp01(confidence),
		Strategy:   name,
	}
	if len(window) == 0 {
		return sig
	}
	last := window[len(window)-1]
	sig.Symbol = last.Symbol
	sig.Interval = last.Interval
	sig.Price = last.Close
	sig.Timestamp = last.CloseTime
	if sig.Timestamp.IsZero() {
		sig.Timestamp = last.OpenTime
	}
	sig.StopDistance = stopDistance(window)
	return sig
}

func clamp01(v float64) float64 {
	return lo.Clamp(v, 0, 1)
}
