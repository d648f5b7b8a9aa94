package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveCycle("ok", 10*time.Millisecond)
	m.AddAnomalies("0", 3)
	m.AddSuppressed("0", "transient", 2)
	m.AddSuppressed("0", "transient", 0)
	m.IncInsufficientData("1")
	m.IncUndetectable()
	m.AddEvicted(4)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Cycles.WithLabelValues("ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Anomalies.WithLabelValues("0")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Suppressed.WithLabelValues("0", "transient")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InsufficientData.WithLabelValues("1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UndetectableSpans))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.EvictedEntries))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCycle("ok", time.Second)
		m.AddAnomalies("0", 1)
		m.AddSuppressed("0", "bound", 1)
		m.IncInsufficientData("0")
		m.IncUndetectable()
		m.AddEvicted(1)
	})
}
