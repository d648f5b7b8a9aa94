package suppress

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/hed1ad/streamguard/pkg/series"
)

const variationEpsilon = 1e-9

// VariationRatio drops an anomaly whose value deviates from both the maximum
// and the minimum of the HistoryLength preceding samples of the batch by a
// relative amount below Threshold.
type VariationRatio struct {
	historyLength int
	threshold     float64
}

// NewVariationRatio creates a variation-ratio suppressor.
func NewVariationRatio(historyLength int, threshold float64) *VariationRatio {
	return &VariationRatio{historyLength: historyLength, threshold: threshold}
}

// Kind implements Suppressor.
func (s *VariationRatio) Kind() Kind {
	return KindVariationRatio
}

// Suppress implements Suppressor. Anomalies at timestamps absent from origin
// and anomalies without preceding samples are kept.
func (s *VariationRatio) Suppress(labels *series.Labels, origin *series.Frame) *series.Labels {
	cols := targets(labels)
	if len(cols) == 0 || origin == nil || origin.Len() <= 1 {
		return labels
	}

	out := labels.Clone()
	for _, c := range cols {
		values, ok := origin.Column(out.Columns[c])
		if !ok {
			continue
		}
		for i, v := range out.Values[c] {
			if !v {
				continue
			}
			p := origin.Row(out.Index[i])
			if p <= 0 {
				continue
			}
			history := values[max(p-s.historyLength, 0):p]
			if Variation(history, values[p]) < s.threshold {
				out.Values[c][i] = false
			}
		}
	}
	return out
}

// Variation returns the larger relative deviation of target from the maximum
// and from the minimum of history.
func Variation(history []float64, target float64) float64 {
	hi, lo := floats.Max(history), floats.Min(history)
	return max(
		math.Abs(target-hi)/(math.Abs(hi)+variationEpsilon),
		math.Abs(target-lo)/(math.Abs(lo)+variationEpsilon),
	)
}
