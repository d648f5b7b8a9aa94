package unchanged

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/streamguard/pkg/cache"
	"github.com/hed1ad/streamguard/pkg/detectors"
	"github.com/hed1ad/streamguard/pkg/series"
	"github.com/hed1ad/streamguard/pkg/stream"
)

var start = time.Date(2022, 6, 10, 0, 0, 0, 0, time.UTC)

func batch(offset int, values []float64) *series.Frame {
	return &series.Frame{
		Index:   series.Range(start.Add(time.Duration(offset)*time.Minute), time.Minute, len(values)),
		Columns: []string{"cpu"},
		Values:  [][]float64{values},
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name   string
		window int
		values []float64
		want   []bool
	}{
		{
			name:   "one sample warm-up",
			window: 1,
			values: []float64{1, 1, 2, 2, 2, 3},
			want:   []bool{true, false, true, true, false},
		},
		{
			name:   "no warm-up leaves first row unflagged",
			window: 0,
			values: []float64{4, 4, 5},
			want:   []bool{false, true, false},
		},
		{
			name:   "longer warm-up",
			window: 3,
			values: []float64{7, 7, 7, 7, 8},
			want:   []bool{true, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New("0", stream.New(cache.NewStore()), tt.window)
			assert.Equal(t, detectors.KindValueChange, d.Kind())

			origin := batch(0, tt.values)
			got, err := d.Detect(series.Detection{Origin: origin})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Label.Values[0])
			assert.Equal(t, origin.Index[tt.window:], got.Label.Index)
		})
	}
}

func TestDetectAcrossBatches(t *testing.T) {
	store := cache.NewStore()
	engine := stream.New(store)
	d := New("0", engine, 2)

	first := batch(0, []float64{1, 2, 3, 3})
	_, err := d.Detect(series.Detection{Origin: first})
	require.NoError(t, err)
	engine.Update(2, first)

	// the first new sample repeats the last committed one
	second := batch(4, []float64{3, 4})
	got, err := d.Detect(series.Detection{Origin: second})
	require.NoError(t, err)
	assert.Equal(t, second.Index, got.Label.Index)
	assert.Equal(t, []bool{true, false}, got.Label.Values[0])
}
