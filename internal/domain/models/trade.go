package models

import "time"

type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// SideFor maps an actionable signal kind to the order side.
func SideFor(k SignalKind) (OrderSide, bool) {
	switch k {
	case SignalBuy:
		return SideBuy, true
	case SignalSell:
		return SideSell, true
	}
	return "", false
}

// OrderAck is the exchange's acceptance of a submitted order.
type OrderAck struct {
	OrderID  string  `json:"order_id"`
	Status   string  `json:"status"`
	Filled   float64 `json:"filled"`
	AvgPrice float64 `json:"avg_price"`
}

// TradeResult describes a submitted, risk-bounded trade.
type TradeResult struct {
	Symbol        string    `json:"symbol"`
	Interval      string    `json:"interval"`
	Side          OrderSide `json:"side"`
	Quantity      float64   `json:"quantity"`
	RiskPercent   float64   `json:"risk_percent"`
	RiskBudget    float64   `json:"risk_budget"`
	AccountEquity float64   `json:"account_equity"`
	StopDistance  float64   `json:"stop_distance"`
	EntryPrice    float64   `json:"entry_price"`
	OrderID       string    `json:"order_id"`
	Status        string    `json:"status"`
	Strategy      string    `json:"strategy"`
	ExecutedAt    time.Time `json:"executed_at"`
}

// TradeRejected is the payload of a trade.rejected event.
type TradeRejected struct {
	Symbol     string    `json:"symbol"`
	Interval   string    `json:"interval"`
	Side       OrderSide `json:"side"`
	Quantity   float64   `json:"quantity"`
	Reason     string    `json:"reason"`
	RejectedAt time.Time `json:"rejected_at"`
}
