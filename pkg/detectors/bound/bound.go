// Package bound implements the fixed-bound detection rule.
package bound

import (
	"github.com/hed1ad/streamguard/pkg/detectors"
	"github.com/hed1ad/streamguard/pkg/limits"
	"github.com/hed1ad/streamguard/pkg/series"
	"github.com/hed1ad/streamguard/pkg/stream"
)

// Config holds the rule parameters.
type Config struct {
	Window int
	Upper  *limits.Limit
	Lower  *limits.Limit
}

// Detector flags values above Upper or below Lower. A column without a bound
// on one side is never flagged on that side.
type Detector struct {
	detectors.Base
	upper *limits.Limit
	lower *limits.Limit
}

// New creates a fixed-bound detector.
func New(name string, engine *stream.Engine, cfg Config) *Detector {
	return &Detector{
		Base:  detectors.NewBase(name, detectors.KindThreshold, cfg.Window, engine),
		upper: cfg.Upper,
		lower: cfg.Lower,
	}
}

// Detect implements detectors.Detector.
func (d *Detector) Detect(det series.Detection) (series.Detection, error) {
	data, err := d.Enrich(det.Origin)
	if err != nil {
		return det, err
	}
	det.Label = Label(data, d.upper, d.lower)
	return det, nil
}

// Label marks the cells of data lying outside the bounds.
func Label(data *series.Frame, upper, lower *limits.Limit) *series.Labels {
	labels := series.Zeros[bool](data.Index, data.Columns)
	for c, name := range data.Columns {
		ub, hasUpper := upper.For(name)
		lb, hasLower := lower.For(name)
		if !hasUpper && !hasLower {
			continue
		}
		for i, v := range data.Values[c] {
			labels.Values[c][i] = (hasUpper && v > ub) || (hasLower && v < lb)
		}
	}
	return labels
}
