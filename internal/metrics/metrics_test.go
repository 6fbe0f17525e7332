package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg, "jarrarium")

	c.RecordCycle("ok", 3*time.Second, time.Unix(1700000000, 0))
	c.RecordInsert("RecordedInput", "success")
	c.RecordInsert("RecordedInput", "connectivity_lost")
	c.RecordInsert("RecordedInput", "connectivity_lost")
	c.SetBacklog(2, 1)
	c.RecordBacklogDiscarded(2, 1)
	c.RecordCapture("usb", true)
	c.RecordCapture("ribbon", false)
	c.RecordUpload(true)
	c.RecordReading("ph")
	c.RecordRotation()

	if got := testutil.ToFloat64(c.CyclesTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("cycles_total{ok} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.InsertsTotal.WithLabelValues("RecordedInput", "connectivity_lost")); got != 2 {
		t.Errorf("inserts connectivity_lost = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.BacklogPending.WithLabelValues("readings")); got != 2 {
		t.Errorf("backlog readings = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.CapturesTotal.WithLabelValues("ribbon", "failure")); got != 1 {
		t.Errorf("ribbon failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.LastCycle); got != 1700000000 {
		t.Errorf("last cycle = %v", got)
	}
	if got := testutil.ToFloat64(c.SessionRotation); got != 1 {
		t.Errorf("rotations = %v, want 1", got)
	}

	if n, err := testutil.GatherAndCount(reg); err != nil || n == 0 {
		t.Errorf("GatherAndCount = %d, %v", n, err)
	}
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	c.RecordCycle("ok", time.Second, time.Now())
	c.RecordInsert("RecordedErrors", "success")
	c.SetBacklog(1, 1)
	c.RecordBacklogDiscarded(1, 1)
	c.RecordCapture("usb", true)
	c.RecordUpload(false)
	c.RecordReading("ph")
	c.RecordRotation()
}
