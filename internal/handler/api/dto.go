package api

import (
	"encoding/json"
	"time"

	"SignalFlow/internal/domain/models"
)

// StartMonitoringRequest is the body of POST /api/monitoring.
type StartMonitoringRequest struct {
	Symbol    string `json:"symbol" validate:"required,symbol"`
	Interval  string `json:"interval" validate:"required,interval"`
	Strategy  string `json:"strategy" default:"EmaMomentumScalper"`
	AutoTrade bool   `json:"auto_trade"`
}

// ExecuteTradeRequest is the body of POST /api/trades. Zero values fall back
// to the configured account equity and risk.
type ExecuteTradeRequest struct {
	Symbol        string  `json:"symbol" validate:"required,symbol"`
	AccountEquity float64 `json:"account_equity" validate:"gte=0"`
	RiskPercent   float64 `json:"risk_percent" validate:"gte=0"`
}

// OutboxMessageDTO is a dead-lettered message as returned by the API.
type OutboxMessageDTO struct {
	ID           string          `json:"id"`
	EventType    string          `json:"event_type"`
	AggregateKey string          `json:"aggregate_key"`
	Payload      json.RawMessage `json:"payload"`
	RetryCount   int             `json:"retry_count"`
	LastError    string          `json:"last_error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

func toOutboxDTO(m models.OutboxMessage, _ int) OutboxMessageDTO {
	return OutboxMessageDTO{
		ID:           m.ID,
		EventType:    m.EventType,
		AggregateKey: m.AggregateKey,
		Payload:      json.RawMessage(m.Payload),
		RetryCount:   m.RetryCount,
		LastError:    m.LastError,
		CreatedAt:    m.CreatedAt,
	}
}
