// Package differentiate implements the differentiate detection rule.
package differentiate

import (
	"math"

	"github.com/hed1ad/streamguard/pkg/cache"
	"github.com/hed1ad/streamguard/pkg/detectors"
	"github.com/hed1ad/streamguard/pkg/errdefs"
	"github.com/hed1ad/streamguard/pkg/series"
	"github.com/hed1ad/streamguard/pkg/stream"
	"github.com/hed1ad/streamguard/pkg/threshold"
)

// Config holds the rule parameters.
type Config struct {
	Window    int
	Threshold threshold.Params
}

// DefaultConfig returns a one-lag rule with the default threshold model.
func DefaultConfig() Config {
	return Config{
		Window:    1,
		Threshold: threshold.DefaultParams(),
	}
}

// Detector scores each sample by the sum of its absolute differences to the
// Window previous samples and labels the scores with a threshold model.
type Detector struct {
	detectors.Base
	thresholder *threshold.Module
}

// New creates a differentiate detector. kind selects the name it reports and
// must be KindDifferentiate or KindBatchDifferentiate.
func New(name string, kind detectors.Kind, engine *stream.Engine, store *cache.Store, cfg Config) (*Detector, error) {
	if cfg.Window <= 0 {
		return nil, errdefs.MissingParameter("differentiate: window must be positive")
	}
	m, err := threshold.NewModule(cfg.Threshold, store, name)
	if err != nil {
		return nil, err
	}
	return &Detector{
		Base:        detectors.NewBase(name, kind, cfg.Window, engine),
		thresholder: m,
	}, nil
}

// Detect implements detectors.Detector.
func (d *Detector) Detect(det series.Detection) (series.Detection, error) {
	data, err := d.Enrich(det.Origin)
	if err != nil {
		return det, err
	}
	det.Label = d.thresholder.Threshold(Score(data, d.Window()))
	return det, nil
}

// Save implements detectors.Detector.
func (d *Detector) Save() ([]byte, error) {
	return d.thresholder.Save()
}

// Load implements detectors.Detector.
func (d *Detector) Load(data []byte) error {
	return d.thresholder.Load(data)
}

// Score returns, for every row from window on, the sum of absolute differences
// at lags 1..window. Rows with a NaN score in any column are dropped.
func Score(data *series.Frame, window int) *series.Frame {
	out := &series.Frame{
		Columns: append([]string(nil), data.Columns...),
		Values:  make([][]float64, data.Width()),
	}
	for i := window; i < data.Len(); i++ {
		row := make([]float64, data.Width())
		valid := true
		for c, values := range data.Values {
			var sum float64
			for lag := 1; lag <= window; lag++ {
				sum += math.Abs(values[i] - values[i-lag])
			}
			if math.IsNaN(sum) {
				valid = false
				break
			}
			row[c] = sum
		}
		if !valid {
			continue
		}
		out.Index = append(out.Index, data.Index[i])
		for c, v := range row {
			out.Values[c] = append(out.Values[c], v)
		}
	}
	return out
}
