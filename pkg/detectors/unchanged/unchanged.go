// Package unchanged implements the value-unchanged detection rule.
package unchanged

import (
	"github.com/hed1ad/streamguard/pkg/detectors"
	"github.com/hed1ad/streamguard/pkg/series"
	"github.com/hed1ad/streamguard/pkg/stream"
)

// Detector flags samples equal to the previous sample of the same column.
// The first Window rows of the enriched batch are warm-up and not labeled.
type Detector struct {
	detectors.Base
}

// New creates a value-unchanged detector.
func New(name string, engine *stream.Engine, window int) *Detector {
	return &Detector{
		Base: detectors.NewBase(name, detectors.KindValueChange, window, engine),
	}
}

// Detect implements detectors.Detector.
func (d *Detector) Detect(det series.Detection) (series.Detection, error) {
	data, err := d.Enrich(det.Origin)
	if err != nil {
		return det, err
	}

	start := min(d.Window(), data.Len())
	labels := series.Zeros[bool](data.Index[start:], data.Columns)
	for c, values := range data.Values {
		for i := max(start, 1); i < len(values); i++ {
			labels.Values[c][i-start] = values[i] == values[i-1]
		}
	}
	det.Label = labels
	return det, nil
}
