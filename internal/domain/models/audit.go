package models

import "time"

// AuditRecord is one event as observed by a downstream consumer.
type AuditRecord struct {
	EventID      string
	EventType    string
	AggregateKey string
	Payload      string
	ReceivedAt   time.Time
}
