package io

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/streamguard/pkg/series"
)

func TestResults(t *testing.T) {
	start := time.Date(2022, 8, 24, 0, 0, 0, 0, time.UTC)
	index := series.Range(start, time.Minute, 4)

	origin := &series.Frame{
		Index:   index[2:],
		Columns: []string{"cpu", "mem"},
		Values:  [][]float64{{30, 40}, {3, 4}},
	}
	labels := series.Zeros[bool](index, []string{"cpu", "mem"})
	labels.Values[0][0] = true // history row, already reported
	labels.Values[0][3] = true
	labels.Values[1][2] = true
	levels := series.Zeros[float64](index, []string{"cpu", "mem"})
	levels.Values[0][3] = 1
	levels.Values[1][2] = 0.5

	tests := []struct {
		name  string
		det   series.Detection
		want  int
		level bool
	}{
		{name: "no labels", det: series.Detection{Origin: origin}, want: 0},
		{name: "labels", det: series.Detection{Origin: origin, Label: labels}, want: 2},
		{name: "levels", det: series.Detection{Origin: origin, Label: labels, Level: levels}, want: 2, level: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Results("algorithm_0", "threshold", tt.det)
			require.Len(t, got, tt.want)
			if tt.want == 0 {
				return
			}
			assert.Equal(t, index[3], got[0].Timestamp)
			assert.Equal(t, "cpu", got[0].Column)
			assert.Equal(t, 40.0, got[0].Value)
			assert.Equal(t, "mem", got[1].Column)
			assert.Equal(t, 3.0, got[1].Value)
			if tt.level {
				require.NotNil(t, got[0].Severity)
				assert.Equal(t, 1.0, *got[0].Severity)
			} else {
				assert.Nil(t, got[0].Severity)
			}
		})
	}
}
