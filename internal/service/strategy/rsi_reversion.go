package strategy

import "SignalFlow/internal/domain/models"

const RsiReversionName = "RsiReversion"

// RsiReversion buys oversold and sells overbought conditions.
type RsiReversion struct {
	period           int
	oversold, overbt float64
}

func NewRsiReversion(period int, oversold, overbought float64) *RsiReversion {
	return &RsiReversion{period: period, oversold: oversold, overbt: overbought}
}

func (s *RsiReversion) Name() string { return RsiReversionName }

func (s *RsiReversion) Evaluate(window []models.Candle) models.TradingSignal {
	if len(window) < s.period+1 {
		return hold(s.Name(), window)
	}
	r := rsi(closes(window), s.period)
	switch {
	case r <= s.oversold:
		return signalFor(s.Name(), window, models.SignalBuy, (s.oversold-r)/s.oversold+0.5)
	case r >= s.overbt:
		return signalFor(s.Name(), window, models.SignalSell, (r-s.overbt)/(100-s.overbt)+0.5)
	}
	return hold(s.Name(), window)
}
