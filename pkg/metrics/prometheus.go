package metrics

import (
	"SignalFlow/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	signals        *prometheus.CounterVec
	trades         *prometheus.CounterVec
	published      *prometheus.CounterVec
	locks          *prometheus.CounterVec
	reconnects     *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	activeSessions prometheus.Gauge
	outboxBacklog  prometheus.Gauge
}

// New registers the recorder on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers on reg; tests pass a fresh prometheus.NewRegistry().
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		signals: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalflow_signals_generated_total",
				Help: "Signals produced by strategy evaluations",
			},
			[]string{"strategy", "kind"},
		),
		trades: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalflow_trades_total",
				Help: "Trade execution attempts by result",
			},
			[]string{"result"},
		),
		published: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalflow_outbox_published_total",
				Help: "Outbox publication attempts by event type and result",
			},
			[]string{"event_type", "result"},
		),
		locks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalflow_lock_acquire_total",
				Help: "Lock acquisition attempts by lock name and result",
			},
			[]string{"name", "result"},
		),
		reconnects: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalflow_feed_reconnects_total",
				Help: "Price feed reconnect attempts",
			},
			[]string{"symbol"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalflow_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signalflow_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		activeSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "signalflow_active_sessions",
			Help: "Monitoring sessions currently active",
		}),
		outboxBacklog: f.NewGauge(prometheus.GaugeOpts{
			Name: "signalflow_outbox_batch_size",
			Help: "Pending messages fetched by the last drain cycle",
		}),
	}
}

func (r *Recorder) RecordSignal(strategy string, kind models.SignalKind) {
	r.signals.WithLabelValues(strategy, string(kind)).Inc()
}

func (r *Recorder) RecordTrade(result string) {
	r.trades.WithLabelValues(result).Inc()
}

func (r *Recorder) RecordPublish(eventType, result string) {
	r.published.WithLabelValues(eventType, result).Inc()
}

func (r *Recorder) RecordLock(name, result string) {
	r.locks.WithLabelValues(name, result).Inc()
}

func (r *Recorder) RecordFeedReconnect(symbol string) {
	r.reconnects.WithLabelValues(symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) SetActiveSessions(n int) {
	r.activeSessions.Set(float64(n))
}

func (r *Recorder) SetOutboxBacklog(n int) {
	r.outboxBacklog.Set(float64(n))
}
