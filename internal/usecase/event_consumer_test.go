package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"SignalFlow/internal/domain/models"
	"SignalFlow/internal/service/cache"
	pkgkafka "SignalFlow/pkg/kafka"
	"SignalFlow/pkg/logger"
	"SignalFlow/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memAudit struct {
	mu   sync.Mutex
	recs []models.AuditRecord
	err  error
}

func (a *memAudit) Record(_ context.Context, rec models.AuditRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.recs = append(a.recs, rec)
	return nil
}

type memNotifier struct {
	events []string
	err    error
}

func (n *memNotifier) Notify(_ context.Context, eventType string, _ []byte) error {
	n.events = append(n.events, eventType)
	return n.err
}

func handlerFor(t *testing.T, hs []pkgkafka.MessageHandler, topic string) pkgkafka.MessageHandler {
	t.Helper()
	for _, h := range hs {
		if h.Topic() == topic {
			return h
		}
	}
	t.Fatalf("no handler for %s", topic)
	return nil
}

func TestEventHandlersCoverEveryEventType(t *testing.T) {
	hs := NewEventHandlers("signalflow", nil, nil, metrics.NewWithRegisterer(prometheus.NewRegistry()), logger.Nop())
	require.Len(t, hs, len(models.EventTypes))
	for _, et := range models.EventTypes {
		handlerFor(t, hs, "signalflow."+et)
	}
}

func TestEventHandlerAuditsAndNotifies(t *testing.T) {
	audit := &memAudit{}
	notifier := &memNotifier{err: errors.New("webhook down")}
	hs := NewEventHandlers("signalflow", audit, notifier, metrics.NewWithRegisterer(prometheus.NewRegistry()), logger.Nop())
	h := handlerFor(t, hs, "signalflow.trade.executed")

	ctx := pkgkafka.WithHeaders(context.Background(), []kafka.Header{
		{Key: "event_id", Value: []byte("0190c1d2-0000-7000-8000-000000000001")},
		{Key: "aggregate_key", Value: []byte("ETHUSDT")},
	})
	// notification failure is not a delivery failure
	require.NoError(t, h.Handle(ctx, []byte(`{"symbol":"ETHUSDT"}`)))

	require.Len(t, audit.recs, 1)
	rec := audit.recs[0]
	assert.Equal(t, "0190c1d2-0000-7000-8000-000000000001", rec.EventID)
	assert.Equal(t, models.EventTradeExecuted, rec.EventType)
	assert.Equal(t, "ETHUSDT", rec.AggregateKey)
	assert.JSONEq(t, `{"symbol":"ETHUSDT"}`, rec.Payload)
	assert.Equal(t, []string{models.EventTradeExecuted}, notifier.events)
}

func TestEventHandlerAuditFailureIsRetried(t *testing.T) {
	audit := &memAudit{err: errors.New("clickhouse: connection refused")}
	notifier := &memNotifier{}
	hs := NewEventHandlers("signalflow", audit, notifier, metrics.NewWithRegisterer(prometheus.NewRegistry()), logger.Nop())
	h := handlerFor(t, hs, "signalflow.signal.generated")

	err := h.Handle(context.Background(), []byte(`{}`))
	require.Error(t, err)
	assert.Empty(t, notifier.events)
}

func TestEventHandlerDerivesStableIDWithoutHeader(t *testing.T) {
	audit := &memAudit{}
	hs := NewEventHandlers("signalflow", audit, nil, metrics.NewWithRegisterer(prometheus.NewRegistry()), logger.Nop())
	h := handlerFor(t, hs, "signalflow.signal.generated")

	require.NoError(t, h.Handle(context.Background(), []byte(`{"a":1}`)))
	require.NoError(t, h.Handle(context.Background(), []byte(`{"a":1}`)))
	require.NoError(t, h.Handle(context.Background(), []byte(`{"a":2}`)))

	require.Len(t, audit.recs, 3)
	assert.NotEmpty(t, audit.recs[0].EventID)
	assert.Equal(t, audit.recs[0].EventID, audit.recs[1].EventID)
	assert.NotEqual(t, audit.recs[0].EventID, audit.recs[2].EventID)
}

type failingDedup struct{}

func (failingDedup) MarkSeen(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func TestEventHandlerNotifiesOncePerEventID(t *testing.T) {
	audit := &memAudit{}
	notifier := &memNotifier{}
	hs := NewEventHandlers("signalflow", audit, notifier, metrics.NewWithRegisterer(prometheus.NewRegistry()), logger.Nop(),
		WithDedup(cache.NewTTLCache(), time.Hour))
	h := handlerFor(t, hs, "signalflow.trade.executed")

	ctx := pkgkafka.WithHeaders(context.Background(), []kafka.Header{
		{Key: "event_id", Value: []byte("0190c1d2-0000-7000-8000-000000000002")},
	})
	require.NoError(t, h.Handle(ctx, []byte(`{}`)))
	require.NoError(t, h.Handle(ctx, []byte(`{}`)))

	assert.Len(t, audit.recs, 2, "audit is idempotent downstream and always written")
	assert.Equal(t, []string{"trade.executed"}, notifier.events)
}

func TestEventHandlerDedupFailureStillNotifies(t *testing.T) {
	notifier := &memNotifier{}
	hs := NewEventHandlers("signalflow", nil, notifier, metrics.NewWithRegisterer(prometheus.NewRegistry()), logger.Nop(),
		WithDedup(failingDedup{}, time.Hour))
	h := handlerFor(t, hs, "signalflow.signal.generated")

	require.NoError(t, h.Handle(context.Background(), []byte(`{}`)))
	require.NoError(t, h.Handle(context.Background(), []byte(`{}`)))
	assert.Len(t, notifier.events, 2)
}
