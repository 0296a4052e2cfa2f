package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()

	m := New(prometheus.NewRegistry())

	m.Reservation("ok")
	m.Reservation("ok")
	m.Reservation("insufficient_funds")
	m.Settlement("failed", "failed")
	m.SettlementInconsistent()

	if got := testutil.ToFloat64(m.reservations.WithLabelValues("ok")); got != 2 {
		t.Fatalf("reservations{ok} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.settlements.WithLabelValues("failed", "failed")); got != 1 {
		t.Fatalf("settlements = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.inconsistent); got != 1 {
		t.Fatalf("inconsistent = %v, want 1", got)
	}

	at := time.Unix(1_700_000_000, 0)
	m.SweepRun("ok", at)
	if got := testutil.ToFloat64(m.sweepLastRunUnix); got != float64(at.Unix()) {
		t.Fatalf("last run = %v", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics

	m.Reservation("ok")
	m.Settlement("success", "completed")
	m.SettlementInconsistent()
	m.GatewayCall("vtpass", "pay", "success", time.Second)
	m.SweepRun("ok", time.Now())
	m.SweepResolved("refunded")
	m.HTTPRequest("GET", "/healthz", "200", time.Millisecond)
	m.CacheLookup("hit")
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	t.Parallel()

	// Registering twice on distinct registries must not panic.
	_ = New(prometheus.NewRegistry())
	_ = New(prometheus.NewRegistry())
}
