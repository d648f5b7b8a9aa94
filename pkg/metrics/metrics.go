// Package metrics exposes Prometheus instrumentation for detection cycles.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "streamguard"

// Metrics groups the detection collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Cycles            *prometheus.CounterVec
	CycleDuration     prometheus.Histogram
	Anomalies         *prometheus.CounterVec
	Suppressed        *prometheus.CounterVec
	InsufficientData  *prometheus.CounterVec
	UndetectableSpans prometheus.Counter
	EvictedEntries    prometheus.Counter
}

// New creates the collectors and registers them on reg when reg is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_total",
				Help:      "Detection cycles by outcome",
			},
			[]string{"result"},
		),
		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cycle_duration_seconds",
				Help:      "Detection cycle duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
			},
		),
		Anomalies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "anomalies_total",
				Help:      "Anomalies surviving suppression",
			},
			[]string{"algorithm"},
		),
		Suppressed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "suppressed_anomalies_total",
				Help:      "Anomalies removed by a suppressor",
			},
			[]string{"algorithm", "suppressor"},
		),
		InsufficientData: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "insufficient_data_total",
				Help:      "Detections skipped for lack of history",
			},
			[]string{"algorithm"},
		),
		UndetectableSpans: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "undetectable_spans_total",
				Help:      "Leading spans left undetected for lack of context",
			},
		),
		EvictedEntries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evicted_cache_entries_total",
				Help:      "Cache entries removed by maintenance",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.Cycles,
			m.CycleDuration,
			m.Anomalies,
			m.Suppressed,
			m.InsufficientData,
			m.UndetectableSpans,
			m.EvictedEntries,
		)
	}
	return m
}

// ObserveCycle records a finished cycle.
func (m *Metrics) ObserveCycle(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Cycles.WithLabelValues(result).Inc()
	m.CycleDuration.Observe(d.Seconds())
}

// AddAnomalies counts surviving anomalies of an algorithm instance.
func (m *Metrics) AddAnomalies(algorithm string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Anomalies.WithLabelValues(algorithm).Add(float64(n))
}

// AddSuppressed counts anomalies removed by a suppressor.
func (m *Metrics) AddSuppressed(algorithm, suppressor string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Suppressed.WithLabelValues(algorithm, suppressor).Add(float64(n))
}

// IncInsufficientData counts a skipped detection.
func (m *Metrics) IncInsufficientData(algorithm string) {
	if m == nil {
		return
	}
	m.InsufficientData.WithLabelValues(algorithm).Inc()
}

// IncUndetectable counts an undetectable leading span.
func (m *Metrics) IncUndetectable() {
	if m == nil {
		return
	}
	m.UndetectableSpans.Inc()
}

// AddEvicted counts entries removed by maintenance.
func (m *Metrics) AddEvicted(n int) {
	if m == nil || n == 0 {
		return
	}
	m.EvictedEntries.Add(float64(n))
}
