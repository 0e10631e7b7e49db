package metrics

import (
	"testing"

	"SignalFlow/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegisterer(reg)

	r.RecordSignal("EmaMomentumScalper", models.SignalBuy)
	r.RecordSignal("EmaMomentumScalper", models.SignalBuy)
	r.RecordLock("outbox-drain", "contended")
	r.SetActiveSessions(3)

	if got := testutil.ToFloat64(r.signals.WithLabelValues("EmaMomentumScalper", "BUY")); got != 2 {
		t.Fatalf("signals = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.locks.WithLabelValues("outbox-drain", "contended")); got != 1 {
		t.Fatalf("locks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.activeSessions); got != 3 {
		t.Fatalf("active sessions = %v, want 3", got)
	}
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	NewWithRegisterer(prometheus.NewRegistry())
	NewWithRegisterer(prometheus.NewRegistry())
}
