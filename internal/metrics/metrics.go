// Package metrics exposes Prometheus instruments for the daemon. A nil
// *Collector is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the daemon's metrics.
type Collector struct {
	CyclesTotal     *prometheus.CounterVec
	CycleDuration   prometheus.Histogram
	InsertsTotal    *prometheus.CounterVec
	BacklogPending  *prometheus.GaugeVec
	BacklogCleared  *prometheus.CounterVec
	CapturesTotal   *prometheus.CounterVec
	UploadsTotal    *prometheus.CounterVec
	SensorReadings  *prometheus.CounterVec
	SessionRotation prometheus.Counter
	LastCycle       prometheus.Gauge
}

// NewCollector registers the daemon's metrics with reg under namespace.
func NewCollector(reg prometheus.Registerer, namespace string) *Collector {
	f := promauto.With(reg)
	return &Collector{
		CyclesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_total",
				Help:      "Sampling cycles run, by outcome",
			},
			[]string{"outcome"},
		),
		CycleDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cycle_duration_seconds",
				Help:      "Duration of one sampling cycle",
				Buckets:   []float64{1, 5, 10, 20, 30, 60, 120, 300},
			},
		),
		InsertsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_inserts_total",
				Help:      "Store insert attempts by table and result",
			},
			[]string{"table", "result"},
		),
		BacklogPending: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "backlog_pending",
				Help:      "Records waiting in the local backlog",
			},
			[]string{"kind"},
		),
		BacklogCleared: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backlog_discarded_total",
				Help:      "Backlog records discarded at segment rotation",
			},
			[]string{"kind"},
		),
		CapturesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "captures_total",
				Help:      "Photo captures by camera and result",
			},
			[]string{"camera", "result"},
		),
		UploadsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploads_total",
				Help:      "Photo uploads by result",
			},
			[]string{"result"},
		),
		SensorReadings: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sensor_readings_total",
				Help:      "Valid sensor readings by kind",
			},
			[]string{"kind"},
		),
		SessionRotation: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_rotations_total",
				Help:      "Resource session rotations after a long sleep",
			},
		),
		LastCycle: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_cycle_timestamp_seconds",
				Help:      "Unix time the last cycle finished",
			},
		),
	}
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// RecordCycle records a finished cycle.
func (c *Collector) RecordCycle(outcome string, took time.Duration, at time.Time) {
	if c == nil {
		return
	}
	c.CyclesTotal.WithLabelValues(outcome).Inc()
	c.CycleDuration.Observe(took.Seconds())
	c.LastCycle.Set(float64(at.Unix()))
}

// RecordInsert records one store insert attempt. status is a store.Status name.
func (c *Collector) RecordInsert(table, status string) {
	if c == nil {
		return
	}
	c.InsertsTotal.WithLabelValues(table, status).Inc()
}

// SetBacklog updates the pending backlog gauges.
func (c *Collector) SetBacklog(readings, errors int) {
	if c == nil {
		return
	}
	c.BacklogPending.WithLabelValues("readings").Set(float64(readings))
	c.BacklogPending.WithLabelValues("errors").Set(float64(errors))
}

// RecordBacklogDiscarded records entries dropped by a rotation.
func (c *Collector) RecordBacklogDiscarded(readings, errors int) {
	if c == nil {
		return
	}
	c.BacklogCleared.WithLabelValues("readings").Add(float64(readings))
	c.BacklogCleared.WithLabelValues("errors").Add(float64(errors))
}

// RecordCapture records one camera capture attempt.
func (c *Collector) RecordCapture(camera string, ok bool) {
	if c == nil {
		return
	}
	c.CapturesTotal.WithLabelValues(camera, result(ok)).Inc()
}

// RecordUpload records one photo upload attempt.
func (c *Collector) RecordUpload(ok bool) {
	if c == nil {
		return
	}
	c.UploadsTotal.WithLabelValues(result(ok)).Inc()
}

// RecordReading records a valid sensor reading.
func (c *Collector) RecordReading(kind string) {
	if c == nil {
		return
	}
	c.SensorReadings.WithLabelValues(kind).Inc()
}

// RecordRotation records a session rotation.
func (c *Collector) RecordRotation() {
	if c == nil {
		return
	}
	c.SessionRotation.Inc()
}
