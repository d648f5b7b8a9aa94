package incremental

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/streamguard/pkg/cache"
	"github.com/hed1ad/streamguard/pkg/errdefs"
	"github.com/hed1ad/streamguard/pkg/limits"
	"github.com/hed1ad/streamguard/pkg/series"
	"github.com/hed1ad/streamguard/pkg/stream"
)

func batch(values []float64) *series.Frame {
	return &series.Frame{
		Index:   series.Range(time.Date(2022, 6, 10, 0, 0, 0, 0, time.UTC), time.Minute, len(values)),
		Columns: []string{"cpu"},
		Values:  [][]float64{values},
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		cfg        Config
		wantWindow int
		wantErr    bool
	}{
		{name: "window from blocks", cfg: Config{WindowSize: 2, WindowNumber: 2}, wantWindow: 5},
		{name: "single block", cfg: Config{WindowSize: 3, WindowNumber: 1}, wantWindow: 5},
		{name: "missing size", cfg: Config{WindowNumber: 2}, wantErr: true},
		{name: "missing number", cfg: Config{WindowSize: 2}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New("0", stream.New(cache.NewStore()), tt.cfg)
			if tt.wantErr {
				assert.ErrorIs(t, err, errdefs.ErrMissingParameter)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantWindow, d.Window())
		})
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		upper  *limits.Limit
		lower  *limits.Limit
		want   []bool
	}{
		{
			name:   "rising above upper bound",
			values: []float64{10, 11, 12, 13, 14, 15, 16, 17},
			upper:  limits.Scalar(5),
			want:   []bool{true, true, true},
		},
		{
			name:   "rising below upper bound",
			values: []float64{10, 11, 12, 13, 14, 15, 16, 17},
			upper:  limits.Scalar(50),
			want:   []bool{false, false, false},
		},
		{
			name:   "trailing block straddles upper bound",
			values: []float64{10, 11, 12, 13, 14, 15, 16, 17},
			upper:  limits.Scalar(15),
			want:   []bool{false, false, true},
		},
		{
			name:   "falling below lower bound",
			values: []float64{17, 16, 15, 14, 13, 12, 11, 10},
			lower:  limits.Scalar(20),
			upper:  limits.Scalar(5),
			want:   []bool{true, true, true},
		},
		{
			name:   "flat series",
			values: []float64{9, 9, 9, 9, 9, 9, 9, 9},
			upper:  limits.Scalar(5),
			want:   []bool{false, false, false},
		},
		{
			name:   "no bounds",
			values: []float64{10, 11, 12, 13, 14, 15, 16, 17},
			want:   []bool{false, false, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New("0", stream.New(cache.NewStore()), Config{
				WindowSize:   2,
				WindowNumber: 2,
				Upper:        tt.upper,
				Lower:        tt.lower,
			})
			require.NoError(t, err)

			origin := batch(tt.values)
			got, err := d.Detect(series.Detection{Origin: origin})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Label.Values[0])
			assert.Equal(t, origin.Index[5:], got.Label.Index)
		})
	}
}

func TestDetectInsufficientData(t *testing.T) {
	d, err := New("0", stream.New(cache.NewStore()), Config{WindowSize: 2, WindowNumber: 2, Upper: limits.Scalar(1)})
	require.NoError(t, err)

	_, err = d.Detect(series.Detection{Origin: batch([]float64{1, 2, 3, 4, 5})})
	assert.ErrorIs(t, err, errdefs.ErrInsufficientData)
}
