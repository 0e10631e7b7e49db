package strategy

import (
	"math"

	"SignalFlow/internal/domain/models"
)

const SmaCrossoverName = "SmaCrossover"

// SmaCrossover signals on the candle where the fast SMA crosses the slow one.
type SmaCrossover struct {
	fast, slow int
}

func NewSmaCrossover(fast, slow int) *SmaCrossover {
	return &SmaCrossover{fast: fast, slow: slow}
}

func (s *SmaCrossover) Name() string { return SmaCrossoverName }

func (s *SmaCrossover) Evaluate(window []models.Candle) models.TradingSignal {
	if len(window) < s.slow+1 {
		return hold(s.Name(), window)
	}
	cs := closes(window)
	prev := cs[:len(cs)-1]
	fastNow, slowNow := sma(cs, s.fast), sma(cs, s.slow)
	fastPrev, slowPrev := sma(prev, s.fast), sma(prev, s.slow)
	if slowNow == 0 {
		return hold(s.Name(), window)
	}
	confidence := 0.5 + math.Abs(fastNow-slowNow)/slowNow/0.01*0.5

	switch {
	case fastPrev <= slowPrev && fastNow > slowNow:
		return signalFor(s.Name(), window, models.SignalBuy, confidence)
	case fastPrev >= slowPrev && fastNow < slowNow:
		return signalFor(s.Name(), window, models.SignalSell, confidence)
	}
	return hold(s.Name(), window)
}
