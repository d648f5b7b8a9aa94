// Package preprocess validates raw batches and regularizes them before detection.
package preprocess

import (
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/hed1ad/streamguard/pkg/errdefs"
	"github.com/hed1ad/streamguard/pkg/series"
)

// Config configures a Preprocessor.
type Config struct {
	// MissMaxRate is the highest tolerated share of missing values in any column.
	MissMaxRate float64
	// Interval is the resampling interval. Zero infers it from the batch.
	Interval time.Duration
}

// Preprocessor validates and regularizes batches.
type Preprocessor struct {
	cfg    Config
	logger *zap.Logger
}

// Option configures a Preprocessor.
type Option func(*Preprocessor)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Preprocessor) {
		p.logger = l
	}
}

// New creates a Preprocessor.
func New(cfg Config, opts ...Option) *Preprocessor {
	p := &Preprocessor{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process validates f and returns a regular, finite copy of it.
func (p *Preprocessor) Process(f *series.Frame) (*series.Frame, error) {
	out, err := p.Validate(f)
	if err != nil {
		return nil, err
	}

	rows := out.Len()
	out = p.resample(out)
	if out.Len() != rows {
		p.logger.Debug("resampled batch", zap.Int("rows_in", rows), zap.Int("rows_out", out.Len()))
	}
	Fill(out)
	NanToNum(out)
	return out, nil
}

// Validate orders f by time, keeps the first of duplicated timestamps and
// checks the missing-value rate. It fails with ErrDataQuality when a column
// misses more than the configured share of values.
func (p *Preprocessor) Validate(f *series.Frame) (*series.Frame, error) {
	out := Sort(f)
	rate := MissRate(out)
	if rate > p.cfg.MissMaxRate {
		return nil, errdefs.DataQuality("missing value rate %.4g exceeds %.4g", rate, p.cfg.MissMaxRate)
	}
	return out, nil
}

func (p *Preprocessor) resample(f *series.Frame) *series.Frame {
	if f.Len() <= 1 {
		return f
	}
	if p.cfg.Interval > 0 {
		return Resample(f, p.cfg.Interval)
	}
	if f.Width() == 1 {
		return DropMissing(f)
	}
	step, ok := ModeInterval(f.Index)
	if !ok {
		return f
	}
	return Resample(f, step)
}

// Sort returns f ordered by time with duplicated timestamps removed, keeping
// the first occurrence. The index of f may be unordered.
func Sort(f *series.Frame) *series.Frame {
	order := make([]int, f.Len())
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return f.Index[order[a]].Before(f.Index[order[b]])
	})

	keep := order[:0]
	for _, i := range order {
		if len(keep) > 0 && f.Index[keep[len(keep)-1]].Equal(f.Index[i]) {
			continue
		}
		keep = append(keep, i)
	}

	out := &series.Frame{
		Index:   make([]time.Time, len(keep)),
		Columns: append([]string(nil), f.Columns...),
		Values:  make([][]float64, f.Width()),
	}
	for c := range out.Values {
		out.Values[c] = make([]float64, len(keep))
	}
	for r, i := range keep {
		out.Index[r] = f.Index[i]
		for c := range out.Values {
			out.Values[c][r] = f.Values[c][i]
		}
	}
	return out
}

// MissRate returns the largest share of NaN values among the columns of f.
// An empty frame has rate 1.
func MissRate(f *series.Frame) float64 {
	if f.Len() == 0 {
		return 1
	}
	worst := 0
	for _, col := range f.Values {
		n := 0
		for _, v := range col {
			if math.IsNaN(v) {
				n++
			}
		}
		worst = max(worst, n)
	}
	return float64(worst) / float64(f.Len())
}

// ModeInterval returns the most frequent spacing of index, preferring the
// shortest on ties.
func ModeInterval(index []time.Time) (time.Duration, bool) {
	counts := make(map[time.Duration]int)
	for i := 1; i < len(index); i++ {
		counts[index[i].Sub(index[i-1])]++
	}
	var (
		best  time.Duration
		votes int
	)
	for d, n := range counts {
		if d <= 0 {
			continue
		}
		if n > votes || (n == votes && d < best) {
			best, votes = d, n
		}
	}
	return best, votes > 0
}

// Resample buckets f into bins of width step, labelled by their left edge,
// averaging the present values of each bin. Empty bins hold NaN.
func Resample(f *series.Frame, step time.Duration) *series.Frame {
	if f.Empty() {
		return f
	}
	first := f.First().Truncate(step)
	n := int(f.Last().Truncate(step).Sub(first)/step) + 1
	index := series.Range(first, step, n)

	out := series.Zeros[float64](index, f.Columns)
	for c, col := range f.Values {
		bins := make([][]float64, n)
		for r, v := range col {
			if math.IsNaN(v) {
				continue
			}
			b := int(f.Index[r].Truncate(step).Sub(first) / step)
			bins[b] = append(bins[b], v)
		}
		for b, vals := range bins {
			if len(vals) == 0 {
				out.Values[c][b] = math.NaN()
				continue
			}
			out.Values[c][b] = stat.Mean(vals, nil)
		}
	}
	return out
}

// DropMissing removes the rows holding a NaN in any column.
func DropMissing(f *series.Frame) *series.Frame {
	var keep []int
	for r := range f.Index {
		ok := true
		for _, col := range f.Values {
			if math.IsNaN(col[r]) {
				ok = false
				break
			}
		}
		if ok {
			keep = append(keep, r)
		}
	}
	if len(keep) == f.Len() {
		return f
	}

	out := &series.Frame{
		Index:   make([]time.Time, len(keep)),
		Columns: f.Columns,
		Values:  make([][]float64, f.Width()),
	}
	for c := range out.Values {
		out.Values[c] = make([]float64, len(keep))
	}
	for i, r := range keep {
		out.Index[i] = f.Index[r]
		for c := range out.Values {
			out.Values[c][i] = f.Values[c][r]
		}
	}
	return out
}

// Fill replaces NaN values in place: linearly between present values by row
// position, and with the nearest present value at either end. Columns
// without any present value are left untouched.
func Fill(f *series.Frame) {
	for _, col := range f.Values {
		fillColumn(col)
	}
}

func fillColumn(col []float64) {
	prev := -1
	for i, v := range col {
		if math.IsNaN(v) {
			continue
		}
		switch {
		case prev == -1:
			for j := 0; j < i; j++ {
				col[j] = v
			}
		case i-prev > 1:
			step := (v - col[prev]) / float64(i-prev)
			for j := prev + 1; j < i; j++ {
				col[j] = col[prev] + step*float64(j-prev)
			}
		}
		prev = i
	}
	if prev == -1 {
		return
	}
	for j := prev + 1; j < len(col); j++ {
		col[j] = col[prev]
	}
}

// NanToNum replaces NaN with 0 and infinities with the largest finite values, in place.
func NanToNum(f *series.Frame) {
	for _, col := range f.Values {
		for i, v := range col {
			switch {
			case math.IsNaN(v):
				col[i] = 0
			case math.IsInf(v, 1):
				col[i] = math.MaxFloat64
			case math.IsInf(v, -1):
				col[i] = -math.MaxFloat64
			}
		}
	}
}
