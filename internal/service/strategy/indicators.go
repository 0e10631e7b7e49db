package strategy

import (
	"math"

	"SignalFlow/internal/domain/models"

	"github.com/samber/lo"
)

const (
	atrPeriod     = 14
	atrMultiplier = 1.5
	// fallback stop distance as a fraction of price when ATR is unavailable
	minStopFraction = 0.005
)

func closes(window []models.Candle) []float64 {
	return lo.Map(window, func(c models.Candle, _ int) float64 { return c.Close })
}

// sma of the last period values.
func sma(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	return lo.Sum(values[len(values)-period:]) / float64(period)
}

// ema seeded with the SMA of the first period values.
func ema(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	k := 2.0 / float64(period+1)
	e := sma(values[:period], period)
	for _, v := range values[period:] {
		e = v*k + e*(1-k)
	}
	return e
}

// rsi uses Wilder smoothing over the whole series.
func rsi(values []float64, period int) float64 {
	if period <= 0 || len(values) < period+1 {
		return 50
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := values[i] - values[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain, avgLoss := gain/float64(period), loss/float64(period)
	for i := period + 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
	}
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// atr is the simple average true range of the last period candles.
func atr(window []models.Candle, period int) float64 {
	if len(window) < period+1 {
		return 0
	}
	var sum float64
	for i := len(window) - period; i < len(window); i++ {
		c, prev := window[i], window[i-1]
		tr := math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prev.Close), math.Abs(c.Low-prev.Close)))
		sum += tr
	}
	return sum / float64(period)
}

// stopDistance is the absolute distance to a volatility-scaled stop.
func stopDistance(window []models.Candle) float64 {
	last := window[len(window)-1]
	floor := last.Close * minStopFraction
	return math.Max(atr(window, atrPeriod)*atrMultiplier, floor)
}
