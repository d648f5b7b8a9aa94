package threshold

import (
	"gonum.org/v1/gonum/stat"

	"github.com/hed1ad/streamguard/pkg/series"
)

// Sigma bounds every column by mean ± k·std over the rows it is given.
type Sigma struct {
	k float64
}

// NewSigma creates a static sigma model.
func NewSigma(k float64) *Sigma {
	return &Sigma{k: k}
}

// Threshold implements Thresholder.
func (s *Sigma) Threshold(score *series.Frame) *series.Labels {
	labels := series.Zeros[bool](score.Index, score.Columns)
	for c, col := range score.Values {
		if len(col) == 0 {
			continue
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		upper, lower := mean+s.k*std, mean-s.k*std
		for i, v := range col {
			labels.Values[c][i] = outside(v, upper, lower)
		}
	}
	return labels
}
