package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "PENDING"
	OutboxProcessing OutboxStatus = "PROCESSING"
	OutboxProcessed  OutboxStatus = "PROCESSED"
	OutboxFailed     OutboxStatus = "FAILED"
)

// Event types. The processor publishes each to "<prefix>.<type>".
const (
	EventMonitoringStarted = "monitoring.started"
	EventMonitoringStopped = "monitoring.stopped"
	EventSignalGenerated   = "signal.generated"
	EventTradeExecuted     = "trade.executed"
	EventTradeRejected     = "trade.rejected"
)

// EventTypes lists every event type the service emits.
var EventTypes = []string{
	EventMonitoringStarted,
	EventMonitoringStopped,
	EventSignalGenerated,
	EventTradeExecuted,
	EventTradeRejected,
}

// allowedFrom maps a target status to the statuses it may be entered from.
// Every outcome of a publish attempt is entered from Processing, so a message
// must be claimed before it can be settled.
var allowedFrom = map[OutboxStatus][]OutboxStatus{
	OutboxProcessing: {OutboxPending},
	OutboxPending:    {OutboxProcessing},
	OutboxProcessed:  {OutboxProcessing},
	OutboxFailed:     {OutboxProcessing},
}

// AllowedFrom returns the statuses from which to may be reached.
func AllowedFrom(to OutboxStatus) []OutboxStatus {
	return allowedFrom[to]
}

// OutboxMessage is a durable event waiting for (or done with) publication.
type OutboxMessage struct {
	ID           string
	EventType    string
	AggregateKey string
	Payload      []byte
	Status       OutboxStatus
	RetryCount   int
	LastError    string
	CreatedAt    time.Time
	ProcessedAt  *time.Time
}

// NewOutboxMessage serialises payload into a Pending message with a
// time-ordered (UUIDv7) id.
func NewOutboxMessage(eventType, aggregateKey string, payload any) (*OutboxMessage, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("outbox id: %w", err)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &OutboxMessage{
		ID:           id.String(),
		EventType:    eventType,
		AggregateKey: aggregateKey,
		Payload:      b,
		Status:       OutboxPending,
		CreatedAt:    time.Now().UTC(),
	}, nil
}
