package strategy

import (
	"math"

	"SignalFlow/internal/domain/models"
)

const EmaMomentumName = "EmaMomentumScalper"

// EmaMomentum goes with the fast/slow EMA trend when short-term momentum
// agrees with it.
type EmaMomentum struct {
	fast, slow, lookback int
}

func NewEmaMomentum(fast, slow, lookback int) *EmaMomentum {
	return &EmaMomentum{fast: fast, slow: slow, lookback: lookback}
}

func (s *EmaMomentum) Name() string { return EmaMomentumName }

func (s *EmaMomentum) Evaluate(window []models.Candle) models.TradingSignal {
	if len(window) < s.slow+1 || len(window) <= s.lookback {
		return hold(s.Name(), window)
	}
	cs := closes(window)
	fast, slow := ema(cs, s.fast), ema(cs, s.slow)
	last := cs[len(cs)-1]
	ref := cs[len(cs)-1-s.lookback]
	if slow == 0 || ref == 0 {
		return hold(s.Name(), window)
	}
	momentum := (last - ref) / ref
	spread := (fast - slow) / slow

	// confidence saturates at a 0.5% EMA spread plus 1% momentum
	confidence := math.Abs(spread)/0.005*0.5 + math.Abs(momentum)/0.01*0.5

	switch {
	case spread > 0 && momentum > 0:
		return signalFor(s.Name(), window, models.SignalBuy, confidence)
	case spread < 0 && momentum < 0:
		return signalFor(s.Name(), window, models.SignalSell, confidence)
	}
	return signalFor(s.Name(), window, models.SignalHold, 1-clamp01(confidence))
}
