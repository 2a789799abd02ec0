package observability

import (
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestOrderMetrics(t *testing.T) {
	m := Orders()
	before := testutil.ToFloat64(m.calls.WithLabelValues("submit", "ok"))
	m.RecordCall("submit", "", 5*time.Millisecond)
	if got := testutil.ToFloat64(m.calls.WithLabelValues("submit", "ok")); got != before+1 {
		t.Fatalf("expected submit counter to grow by one, got %v -> %v", before, got)
	}
	m.RecordCall("complete", "timing", time.Millisecond)
	if got := testutil.ToFloat64(m.calls.WithLabelValues("complete", "timing")); got < 1 {
		t.Fatalf("expected timing outcome recorded")
	}

	m.SetEscrowHeld(big.NewInt(11_000_000))
	if got := testutil.ToFloat64(m.escrowHeld); got != 11_000_000 {
		t.Fatalf("unexpected escrow gauge %v", got)
	}
	m.SetHeight(42)
	if got := testutil.ToFloat64(m.height); got != 42 {
		t.Fatalf("unexpected height gauge %v", got)
	}
}

func TestModuleMetricsObserve(t *testing.T) {
	m := ModuleMetrics()
	m.Observe("orders", "orders_getOrder", 404, time.Millisecond)
	if got := testutil.ToFloat64(m.errors.WithLabelValues("orders", "orders_getOrder", "404")); got < 1 {
		t.Fatalf("expected error counter, got %v", got)
	}
	m.RecordThrottle("", "")
	if got := testutil.ToFloat64(m.throttles.WithLabelValues("unknown", "unspecified")); got < 1 {
		t.Fatalf("expected throttle counter, got %v", got)
	}
}

func TestEventAndIndexerMetrics(t *testing.T) {
	Events().RecordEvent("Orders.Submitted")
	if got := testutil.ToFloat64(Events().emitted.WithLabelValues("orders.submitted")); got < 1 {
		t.Fatalf("expected normalized event label, got %v", got)
	}
	idx := Indexer()
	idx.RecordEvent("", 9)
	idx.RecordReconnect()
	if got := testutil.ToFloat64(idx.lastBlock); got != 9 {
		t.Fatalf("unexpected last height %v", got)
	}
	if bigToFloat(nil) != 0 {
		t.Fatalf("nil amounts must render as zero")
	}
}
