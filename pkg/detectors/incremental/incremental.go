// Package incremental implements the incremental-bound detection rule.
//
// A point is an upper breach when the rolling maximum and the rolling minimum
// both rose across each of the last WindowNumber blocks of WindowSize samples,
// and every sample of the trailing block lies above the upper bound. Lower
// breaches mirror this with falling extremes below the lower bound.
package incremental

import (
	"math"

	"github.com/hed1ad/streamguard/pkg/detectors"
	"github.com/hed1ad/streamguard/pkg/errdefs"
	"github.com/hed1ad/streamguard/pkg/limits"
	"github.com/hed1ad/streamguard/pkg/series"
	"github.com/hed1ad/streamguard/pkg/stream"
)

// Config holds the rule parameters.
type Config struct {
	WindowSize   int
	WindowNumber int
	Upper        *limits.Limit
	Lower        *limits.Limit
}

// Detector implements the incremental-bound rule.
type Detector struct {
	detectors.Base
	size   int
	number int
	upper  *limits.Limit
	lower  *limits.Limit
}

// New creates an incremental-bound detector. Its window is
// (WindowNumber+1)·WindowSize - 1.
func New(name string, engine *stream.Engine, cfg Config) (*Detector, error) {
	if cfg.WindowSize <= 0 {
		return nil, errdefs.MissingParameter("incremental: window_size must be positive")
	}
	if cfg.WindowNumber <= 0 {
		return nil, errdefs.MissingParameter("incremental: window_number must be positive")
	}
	window := (cfg.WindowNumber+1)*cfg.WindowSize - 1
	return &Detector{
		Base:   detectors.NewBase(name, detectors.KindIncremental, window, engine),
		size:   cfg.WindowSize,
		number: cfg.WindowNumber,
		upper:  cfg.Upper,
		lower:  cfg.Lower,
	}, nil
}

// Detect implements detectors.Detector.
func (d *Detector) Detect(det series.Detection) (series.Detection, error) {
	data, err := d.Enrich(det.Origin)
	if err != nil {
		return det, err
	}
	if need := d.size * (d.number + 1); data.Len() < need {
		return det, errdefs.InsufficientData("incremental %s needs %d rows, has %d", d.Name(), need, data.Len())
	}

	start := d.size*(d.number+1) - 1
	labels := series.Zeros[bool](data.Index[start:], data.Columns)
	for c, name := range data.Columns {
		ub, hasUpper := d.upper.For(name)
		lb, hasLower := d.lower.For(name)
		if !hasUpper && !hasLower {
			continue
		}

		values := data.Values[c]
		rmax, rmin := rolling(values, d.size)
		dmax, dmin := lagDiff(rmax, d.size), lagDiff(rmin, d.size)

		for i := start; i < len(values); i++ {
			hiMax, loMax := d.blockExtremes(dmax, i)
			hiMin, loMin := d.blockExtremes(dmin, i)
			rowMax, rowMin := rmax[i], rmin[i]

			up := hasUpper && loMax > 0 && loMin > 0 && rowMin > ub
			down := hasLower && hiMax < 0 && hiMin < 0 && rowMax < lb
			labels.Values[c][i-start] = up || down
		}
	}
	det.Label = labels
	return det, nil
}

// blockExtremes returns the max and min of diffs sampled every block back from i.
func (d *Detector) blockExtremes(diffs []float64, i int) (hi, lo float64) {
	hi, lo = math.Inf(-1), math.Inf(1)
	for k := 0; k < d.number; k++ {
		v := diffs[i-k*d.size]
		if math.IsNaN(v) {
			return math.NaN(), math.NaN()
		}
		hi = max(hi, v)
		lo = min(lo, v)
	}
	return hi, lo
}

// rolling returns trailing max and min over size samples. Positions without a
// full window, or whose window holds NaN, are NaN.
func rolling(values []float64, size int) (rmax, rmin []float64) {
	rmax = make([]float64, len(values))
	rmin = make([]float64, len(values))
	for i := range values {
		if i < size-1 {
			rmax[i], rmin[i] = math.NaN(), math.NaN()
			continue
		}
		hi, lo := math.Inf(-1), math.Inf(1)
		for _, v := range values[i-size+1 : i+1] {
			if math.IsNaN(v) {
				hi, lo = math.NaN(), math.NaN()
				break
			}
			hi = max(hi, v)
			lo = min(lo, v)
		}
		rmax[i], rmin[i] = hi, lo
	}
	return rmax, rmin
}

// lagDiff returns values[i] - values[i-lag], NaN where undefined.
func lagDiff(values []float64, lag int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if i < lag {
			out[i] = math.NaN()
			continue
		}
		out[i] = values[i] - values[i-lag]
	}
	return out
}
