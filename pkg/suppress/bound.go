package suppress

import (
	"github.com/hed1ad/streamguard/pkg/limits"
	"github.com/hed1ad/streamguard/pkg/series"
)

// Bound keeps only anomalies whose value lies strictly below Lower or
// strictly above Upper. A missing side imposes no constraint of its own; a
// column with neither bound keeps its anomalies.
type Bound struct {
	upper *limits.Limit
	lower *limits.Limit
}

// NewBound creates a bound suppressor.
func NewBound(upper, lower *limits.Limit) *Bound {
	return &Bound{upper: upper, lower: lower}
}

// Kind implements Suppressor.
func (s *Bound) Kind() Kind {
	return KindBound
}

// Suppress implements Suppressor. Anomalies at timestamps absent from origin are kept.
func (s *Bound) Suppress(labels *series.Labels, origin *series.Frame) *series.Labels {
	cols := targets(labels)
	if len(cols) == 0 || origin == nil {
		return labels
	}

	out := labels.Clone()
	for _, c := range cols {
		name := out.Columns[c]
		values, ok := origin.Column(name)
		if !ok {
			continue
		}
		ub, hasUpper := s.upper.For(name)
		lb, hasLower := s.lower.For(name)
		if !hasUpper && !hasLower {
			continue
		}
		for i, v := range out.Values[c] {
			if !v {
				continue
			}
			p := origin.Row(out.Index[i])
			if p < 0 {
				continue
			}
			x := values[p]
			out.Values[c][i] = (hasUpper && x > ub) || (hasLower && x < lb)
		}
	}
	return out
}
