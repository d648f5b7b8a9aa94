package severity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/streamguard/pkg/cache"
	"github.com/hed1ad/streamguard/pkg/series"
)

const instance = "severity_level"

var (
	index   = series.Range(time.Date(2022, 6, 10, 0, 0, 0, 0, time.UTC), time.Minute, 6)
	weights = map[string]float64{"threshold": 1, "incremental": 0, "differentiate": 0.85}
)

func seededStore() *cache.Store {
	s := cache.NewStore()
	seed := map[string]time.Time{
		"0": time.Date(2022, 6, 7, 11, 20, 0, 0, time.UTC),
		"1": time.Date(2022, 6, 9, 23, 20, 0, 0, time.UTC),
		"2": time.Date(2022, 6, 9, 10, 20, 0, 0, time.UTC),
	}
	for col, ts := range seed {
		s.Set(cache.Severity, cache.Key(instance, "History", col), ts)
	}
	return s
}

func at(rows ...int) []time.Time {
	out := make([]time.Time, len(rows))
	for i, r := range rows {
		out[i] = index[r]
	}
	return out
}

func TestByAlgorithm(t *testing.T) {
	m := NewByAlgorithm(weights)

	tests := []struct {
		name   string
		target Target
		want   []float64
	}{
		{name: "weighted", target: Target{Algorithm: "differentiate", Column: "0", Anomalies: at(0, 2, 5)}, want: []float64{0.85, 0.85, 0.85}},
		{name: "single", target: Target{Algorithm: "differentiate", Column: "2", Anomalies: at(2)}, want: []float64{0.85}},
		{name: "unknown algorithm", target: Target{Algorithm: "value_change", Column: "2", Anomalies: at(1, 2)}, want: []float64{0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Score(tt.target))
		})
	}
}

func TestByHistory(t *testing.T) {
	store := seededStore()
	m := NewByHistory(store, instance, 48*time.Hour)

	assert.Equal(t, []float64{1, 0, 0}, m.Score(Target{Column: "0", Anomalies: at(0, 2, 5)}))
	assert.Equal(t, []float64{0}, m.Score(Target{Column: "2", Anomalies: at(2)}))
	assert.Equal(t, []float64{1}, m.Score(Target{Column: "new", Anomalies: at(3)}))

	last, ok := cache.Lookup[time.Time](store, cache.Severity, cache.Key(instance, "History", "0"))
	require.True(t, ok)
	assert.Equal(t, index[5], last)
}

func TestByHistoryGapWithinBatch(t *testing.T) {
	m := NewByHistory(cache.NewStore(), instance, time.Minute)
	assert.Equal(t, []float64{1, 0, 1}, m.Score(Target{Column: "x", Anomalies: at(0, 1, 4)}))
}

func TestCombiner(t *testing.T) {
	labels := series.Zeros[bool](index, []string{"0", "1", "2", "3"})
	labels.Values[0][0] = true
	labels.Values[0][2] = true
	labels.Values[0][5] = true
	labels.Values[2][2] = true

	c := NewCombiner("differentiate",
		NewByAlgorithm(weights),
		NewByHistory(seededStore(), instance, 48*time.Hour),
	)
	got := c.Run(series.Detection{Label: labels})

	require.NotNil(t, got.Level)
	assert.Equal(t, index, got.Level.Index)
	assert.Equal(t, []float64{1, -1, 0.85, -1, -1, 0.85}, got.Level.Values[0])
	assert.Equal(t, []float64{-1, -1, -1, -1, -1, -1}, got.Level.Values[1])
	assert.Equal(t, []float64{-1, -1, 0.85, -1, -1, -1}, got.Level.Values[2])
	assert.Equal(t, []float64{-1, -1, -1, -1, -1, -1}, got.Level.Values[3])
}

func TestCombinerWithoutMethods(t *testing.T) {
	labels := series.Zeros[bool](index, []string{"0"})
	labels.Values[0][1] = true

	got := NewCombiner("differentiate").Run(series.Detection{Label: labels})
	assert.Nil(t, got.Level)
}

func TestCombinerWithoutAnomalies(t *testing.T) {
	labels := series.Zeros[bool](index, []string{"0"})

	got := NewCombiner("threshold", NewByAlgorithm(weights)).Run(series.Detection{Label: labels})
	require.NotNil(t, got.Level)
	assert.Equal(t, []float64{-1, -1, -1, -1, -1, -1}, got.Level.Values[0])
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("history")
	require.NoError(t, err)
	assert.Equal(t, KindHistory, k)

	_, err = ParseKind("his_anomaly")
	assert.Error(t, err)
}
