package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCell(t *testing.T) {
	before := testutil.ToFloat64(CellsTotal.WithLabelValues("test-engine", "succeeded"))
	ObserveCell("test-engine", "succeeded", 10*time.Millisecond)
	ObserveCell("test-engine", "succeeded", 20*time.Millisecond)
	after := testutil.ToFloat64(CellsTotal.WithLabelValues("test-engine", "succeeded"))
	if after-before != 2 {
		t.Errorf("counter grew by %v, want 2", after-before)
	}

	ObserveCell("", "failed", time.Millisecond)
	if got := testutil.ToFloat64(CellsTotal.WithLabelValues("unknown", "failed")); got < 1 {
		t.Errorf("empty engine label not mapped to unknown: %v", got)
	}
}
