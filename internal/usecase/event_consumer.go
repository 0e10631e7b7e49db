package usecase

import (
	"context"
	"fmt"
	"time"

	"SignalFlow/internal/domain/models"
	domrepo "SignalFlow/internal/domain/repository"
	pkgkafka "SignalFlow/pkg/kafka"
	"SignalFlow/pkg/logger"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// EventHandler consumes one event topic. The audit write is the delivery
// contract (a failure is retried by the consumer); the notification is
// best effort.
type EventHandler struct {
	topic     string
	eventType string
	audit     domrepo.AuditSink
	notifier  domrepo.Notifier
	dedup     domrepo.Deduper
	dedupTTL  time.Duration
	metrics   domrepo.Metrics
	log       *logger.Logger
}

type EventOption func(*EventHandler)

// WithDedup suppresses repeat notifications for an event id seen within ttl.
// Audit writes are idempotent and always happen.
func WithDedup(d domrepo.Deduper, ttl time.Duration) EventOption {
	return func(h *EventHandler) {
		h.dedup = d
		h.dedupTTL = ttl
	}
}

// NewEventHandlers builds one handler per event type. audit and notifier may
// be nil.
func NewEventHandlers(prefix string, audit domrepo.AuditSink, notifier domrepo.Notifier, metrics domrepo.Metrics, log *logger.Logger, opts ...EventOption) []pkgkafka.MessageHandler {
	log = log.With(logger.String("component", "event_consumer"))
	return lo.Map(models.EventTypes, func(et string, _ int) pkgkafka.MessageHandler {
		h := &EventHandler{
			topic:     Topic(prefix, et),
			eventType: et,
			audit:     audit,
			notifier:  notifier,
			metrics:   metrics,
			log:       log,
		}
		for _, opt := range opts {
			opt(h)
		}
		return h
	})
}

func (h *EventHandler) Topic() string { return h.topic }

func (h *EventHandler) Handle(ctx context.Context, b []byte) error {
	eventID := pkgkafka.HeaderFromContext(ctx, "event_id")
	if eventID == "" {
		// stable id so redelivery still collapses in the audit table
		eventID = uuid.NewSHA1(uuid.NameSpaceOID, append([]byte(h.topic+"|"), b...)).String()
	}

	if h.audit != nil {
		start := time.Now()
		err := h.audit.Record(ctx, models.AuditRecord{
			EventID:      eventID,
			EventType:    h.eventType,
			AggregateKey: pkgkafka.HeaderFromContext(ctx, "aggregate_key"),
			Payload:      string(b),
			ReceivedAt:   time.Now().UTC(),
		})
		h.metrics.RecordLatency("audit_insert", time.Since(start).Seconds())
		if err != nil {
			h.metrics.RecordError("audit_insert")
			return fmt.Errorf("audit %s: %w", eventID, err)
		}
	}

	if h.notifier != nil && h.firstDelivery(ctx, eventID) {
		if err := h.notifier.Notify(ctx, h.eventType, b); err != nil {
			h.metrics.RecordError("notify")
			h.log.Warn("notification failed",
				logger.String("event_id", eventID),
				logger.String("event_type", h.eventType),
				logger.Error(err),
			)
		}
	}
	return nil
}

// firstDelivery fails open: a dedup outage may repeat a notification but
// never drops one.
func (h *EventHandler) firstDelivery(ctx context.Context, eventID string) bool {
	if h.dedup == nil {
		return true
	}
	first, err := h.dedup.MarkSeen(ctx, eventID, h.dedupTTL)
	if err != nil {
		h.metrics.RecordError("dedup")
		h.log.Warn("dedup check failed", logger.String("event_id", eventID), logger.Error(err))
		return true
	}
	if !first {
		h.log.Debug("duplicate delivery, notification skipped", logger.String("event_id", eventID))
	}
	return first
}

var _ pkgkafka.MessageHandler = (*EventHandler)(nil)
