package kafka

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsOnce       sync.Once
	metricsRegisterer prometheus.Registerer = prometheus.DefaultRegisterer

	producerMessages *prometheus.CounterVec
	producerBytes    *prometheus.CounterVec
	producerLatency  *prometheus.HistogramVec

	consumerHandled       *prometheus.CounterVec
	consumerQueueDepth    *prometheus.GaugeVec
	consumerHandleLatency *prometheus.HistogramVec
)

// SetMetricsRegisterer must be called before the first producer or consumer
// is created.
func SetMetricsRegisterer(reg prometheus.Registerer) { metricsRegisterer = reg }

func initMetrics() {
	metricsOnce.Do(func() {
		f := promauto.With(metricsRegisterer)

		producerMessages = f.NewCounterVec(
			prometheus.CounterOpts{Name: "signalflow_kafka_producer_messages_total", Help: "Messages published by result"},
			[]string{"topic", "compression", "result"},
		)
		producerBytes = f.NewCounterVec(
			prometheus.CounterOpts{Name: "signalflow_kafka_producer_bytes_total", Help: "Payload bytes acknowledged by the broker"},
			[]string{"topic"},
		)
		producerLatency = f.NewHistogramVec(
			prometheus.HistogramOpts{Name: "signalflow_kafka_producer_publish_seconds", Help: "Publish latency until ack", Buckets: prometheus.DefBuckets},
			[]string{"topic"},
		)

		consumerHandled = f.NewCounterVec(
			prometheus.CounterOpts{Name: "signalflow_kafka_consumer_messages_total", Help: "Consumed messages by outcome"},
			[]string{"topic", "result"},
		)
		consumerQueueDepth = f.NewGaugeVec(
			prometheus.GaugeOpts{Name: "signalflow_kafka_consumer_queue_depth", Help: "Messages waiting per worker"},
			[]string{"worker"},
		)
		consumerHandleLatency = f.NewHistogramVec(
			prometheus.HistogramOpts{Name: "signalflow_kafka_consumer_handle_seconds", Help: "Handling time per message, retries included"},
			[]string{"topic"},
		)
	})
}

func observePublish(topic, comp string, size int, d time.Duration, err error) {
	initMetrics()
	if err != nil {
		producerMessages.WithLabelValues(topic, comp, "error").Inc()
		return
	}
	producerMessages.WithLabelValues(topic, comp, "ok").Inc()
	producerBytes.WithLabelValues(topic).Add(float64(size))
	producerLatency.WithLabelValues(topic).Observe(d.Seconds())
}
