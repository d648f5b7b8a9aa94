package threshold

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/streamguard/pkg/cache"
	"github.com/hed1ad/streamguard/pkg/series"
)

var start = time.Date(2022, 6, 10, 0, 0, 0, 0, time.UTC)

func frame(offset int, columns []string, values ...[]float64) *series.Frame {
	return &series.Frame{
		Index:   series.Range(start.Add(time.Duration(offset)*time.Minute), time.Minute, len(values[0])),
		Columns: columns,
		Values:  values,
	}
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func anomalies(l *series.Labels, c int) []int {
	var out []int
	for i, v := range l.Values[c] {
		if v {
			out = append(out, i)
		}
	}
	return out
}

func TestSigma(t *testing.T) {
	values := append(constant(9, 1), 100)

	tests := []struct {
		name string
		k    float64
		want []int
	}{
		{name: "two sigma flags the spike", k: 2, want: []int{9}},
		{name: "four sigma keeps it", k: 4, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			labels := NewSigma(tt.k).Threshold(frame(0, []string{"cpu"}, values))
			assert.Equal(t, tt.want, anomalies(labels, 0))
		})
	}
}

func TestSigmaEWMWarmUp(t *testing.T) {
	store := cache.NewStore()
	m := NewSigmaEWM(store, "0", DefaultSigma, DefaultWindow)

	labels := m.Threshold(frame(0, []string{"cpu"}, constant(100, 3)))
	assert.Empty(t, anomalies(labels, 0))

	st, ok := m.State("cpu")
	require.True(t, ok)
	assert.Equal(t, 100, st.Counter)
	assert.Equal(t, 3.0, st.EMA)
	assert.Zero(t, st.EMVar)

	labels = m.Threshold(frame(100, []string{"cpu"}, []float64{3}))
	assert.Empty(t, anomalies(labels, 0), "no deviation, no anomaly")

	labels = m.Threshold(frame(101, []string{"cpu"}, []float64{1000}))
	assert.Equal(t, []int{0}, anomalies(labels, 0))
}

func TestSigmaEWMNoAnomalyBeforeWindow(t *testing.T) {
	m := NewSigmaEWM(cache.NewStore(), "0", 1, 10)
	values := []float64{0, 100, -100, 1000, -1000, 5, 5, 5, 5}

	labels := m.Threshold(frame(0, []string{"cpu"}, values))
	assert.Empty(t, anomalies(labels, 0))

	st, _ := m.State("cpu")
	assert.Equal(t, len(values), st.Counter)
}

func TestSigmaEWMBatchSplit(t *testing.T) {
	values := append(constant(100, 1), 1000, 1, 1, 950)
	for i := range values {
		values[i] += math.Sin(float64(i))
	}

	whole := NewSigmaEWM(cache.NewStore(), "0", DefaultSigma, DefaultWindow)
	want := whole.Threshold(frame(0, []string{"cpu"}, values))

	split := NewSigmaEWM(cache.NewStore(), "0", DefaultSigma, DefaultWindow)
	first := split.Threshold(frame(0, []string{"cpu"}, values[:60]))
	second := split.Threshold(frame(60, []string{"cpu"}, values[60:]))

	got := append(first.Values[0], second.Values[0]...)
	assert.Equal(t, want.Values[0], got)
	assert.Contains(t, anomalies(want, 0), 100)
}

func TestModuleSaveLoad(t *testing.T) {
	store := cache.NewStore()
	m, err := NewModule(DefaultParams(), store, "0")
	require.NoError(t, err)
	m.Threshold(frame(0, []string{"cpu", "mem"}, constant(5, 1), constant(5, 2)))

	blob, err := m.Save()
	require.NoError(t, err)

	restored := cache.NewStore()
	other, err := NewModule(DefaultParams(), restored, "0")
	require.NoError(t, err)
	require.NoError(t, other.Load(blob))
	assert.Equal(t, store.Keys(cache.SigmaEWM), restored.Keys(cache.SigmaEWM))

	st, ok := cache.Lookup[State](restored, cache.SigmaEWM, cache.Key("0", "SigmaEWM", "mem"))
	require.True(t, ok)
	assert.Equal(t, 5, st.Counter)
	assert.Equal(t, 2.0, st.EMA)
}

func TestModuleSigmaIsStateless(t *testing.T) {
	m, err := NewModule(Params{Kind: KindSigma}, cache.NewStore(), "0")
	require.NoError(t, err)

	blob, err := m.Save()
	require.NoError(t, err)
	assert.Nil(t, blob)
	assert.Error(t, m.Load([]byte{1}))
}

func TestModuleRoundsScores(t *testing.T) {
	store := cache.NewStore()
	m, err := NewModule(Params{Kind: KindSigmaEWM, Sigma: 1, Window: 2}, store, "0")
	require.NoError(t, err)

	// residual noise below the fifth decimal collapses to a constant series
	labels := m.Threshold(frame(0, []string{"cpu"}, []float64{1, 1.000001, 0.999999, 1.000002}))
	assert.Empty(t, anomalies(labels, 0))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("sigma_ewm")
	require.NoError(t, err)
	assert.Equal(t, KindSigmaEWM, k)
	assert.Equal(t, "sigma", KindSigma.String())

	_, err = ParseKind("percentile")
	assert.Error(t, err)
}
