package repository

import (
	"context"
	"database/sql"
	"fmt"

	"SignalFlow/internal/domain/models"
	"SignalFlow/internal/domain/repository"
)

// AuditSchema creates the audit table. ReplacingMergeTree collapses
// redelivered events that share an event_id.
var AuditSchema = []string{
	`CREATE TABLE IF NOT EXISTS audit_events (
		event_id      String,
		event_type    LowCardinality(String),
		aggregate_key String,
		payload       String,
		received_at   DateTime64(3, 'UTC')
	) ENGINE = ReplacingMergeTree(received_at)
	ORDER BY (event_type, event_id)`,
}

const insertAudit = `INSERT INTO audit_events (event_id, event_type, aggregate_key, payload, received_at) VALUES (?, ?, ?, ?, ?)`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ClickHouseAudit stores every consumed event for later inspection.
type ClickHouseAudit struct {
	db execer
}

func NewClickHouseAudit(db *sql.DB) repository.AuditSink {
	return &ClickHouseAudit{db: db}
}

func (a *ClickHouseAudit) Record(ctx context.Context, rec models.AuditRecord) error {
	if _, err := a.db.ExecContext(ctx, insertAudit,
		rec.EventID, rec.EventType, rec.AggregateKey, rec.Payload, rec.ReceivedAt.UTC(),
	); err != nil {
		return fmt.Errorf("audit insert %s: %w", rec.EventID, err)
	}
	return nil
}
