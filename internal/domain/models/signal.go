package models

import "time"

type SignalKind string

const (
	SignalBuy  SignalKind = "BUY"
	SignalSell SignalKind = "SELL"
	SignalHold SignalKind = "HOLD"
)

// Actionable reports whether the signal should lead to an order.
func (k SignalKind) Actionable() bool {
	return k == SignalBuy || k == SignalSell
}

// TradingSignal is a strategy recommendation. Treat as immutable.
type TradingSignal struct {
	Symbol     string     `json:"symbol"`
	Interval   string     `json:"interval"`
	Kind       SignalKind `json:"kind"`
	Confidence float64    `json:"confidence"`
	Price      float64    `json:"price"`
	// StopDistance is the absolute price distance to the protective stop,
	// used by the executor to size positions.
	StopDistance float64   `json:"stop_distance"`
	Timestamp    time.Time `json:"timestamp"`
	Strategy     string    `json:"strategy"`
}

// Candle is one OHLCV update from the price feed. Updates for a still-open
// candle share the same OpenTime.
type Candle struct {
	Symbol    string    `json:"symbol"`
	Interval  string    `json:"interval"`
	OpenTime  time.Time `json:"open_time"`
	CloseTime time.Time `json:"close_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Final     bool      `json:"final"`
}
