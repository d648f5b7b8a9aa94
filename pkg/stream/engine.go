// Package stream rebuilds the historical context each batch needs so windowed
// detectors behave as if they had seen one continuous stream.
//
// All columns of a batch are assumed to share one logical clock: the
// high-water mark of a batch is the maximum of its columns' marks. Batches
// mixing columns that advanced at different paces give unspecified results.
package stream

import (
	"time"

	"go.uber.org/zap"

	"github.com/hed1ad/streamguard/pkg/cache"
	"github.com/hed1ad/streamguard/pkg/errdefs"
	"github.com/hed1ad/streamguard/pkg/history"
	"github.com/hed1ad/streamguard/pkg/metrics"
	"github.com/hed1ad/streamguard/pkg/series"
)

// Engine reads and commits per-column history held in a cache store.
type Engine struct {
	store   *cache.Store
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for undetectable span reports.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New creates an Engine over store.
func New(store *cache.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LatestIndex returns the maximum last processed timestamp among columns that have one.
func (e *Engine) LatestIndex(columns []string) (time.Time, bool) {
	var latest time.Time
	found := false
	for _, col := range columns {
		ts, ok := cache.Lookup[time.Time](e.store, cache.StreamFilter, col)
		if !ok {
			continue
		}
		if !found || ts.After(latest) {
			latest = ts
			found = true
		}
	}
	return latest, found
}

// GetData returns f enriched with enough leading rows for a detector needing
// window prior samples. A zero latest means the stream has no history yet.
func (e *Engine) GetData(f *series.Frame, latest time.Time, window int) (*series.Frame, error) {
	if latest.IsZero() {
		if f.Len() < window+1 {
			return nil, errdefs.InsufficientData("cold start needs %d rows, batch has %d", window+1, f.Len())
		}
		if window > 0 {
			e.undetectable(f.Index[0], f.Index[window], "cold start")
		}
		return f, nil
	}

	start := f.SearchAfter(latest)
	newRows := f.Len() - start
	oldRows := start
	if oldRows >= window {
		return f.Tail(newRows + window), nil
	}
	if newRows == 0 {
		return nil, errdefs.NoNewData("batch ends at %s, history at %s", f.Last(), latest)
	}
	return e.withHistory(f, latest, window, start)
}

func (e *Engine) withHistory(f *series.Frame, latest time.Time, window, start int) (*series.Frame, error) {
	newRows := f.Len() - start
	oldRows := start
	required := max(window+1-newRows, 0)

	tails, columns, err := e.historyTails(required, f.Columns, window)
	if err != nil {
		if f.Len() < window+1 {
			return nil, err
		}
		e.undetectable(f.Index[start], spanEnd(f.Index, window), "history too short")
		return f, nil
	}

	historyRows := len(tails[0])
	if historyRows <= oldRows {
		e.undetectable(f.Index[start], spanEnd(f.Index, window), "history not longer than batch context")
		return f, nil
	}

	fresh := f.Slice(start, f.Len()).Select(columns)
	step, ok := fresh.InferInterval()
	if !ok {
		step = fresh.First().Sub(latest)
	}
	index := series.Range(fresh.First().Add(-time.Duration(historyRows)*step), step, historyRows)
	index = append(index, fresh.Index...)

	values := make([][]float64, len(columns))
	for c := range columns {
		values[c] = append(tails[c], fresh.Values[c]...)
	}
	out := &series.Frame{Index: index, Columns: columns, Values: values}

	if historyRows < window {
		e.undetectable(fresh.First(), out.Index[window], "history shorter than window")
	}
	return out, nil
}

// historyTails returns, for every column whose buffer holds at least required
// values, its most recent values. All tails share the shortest qualifying
// length, capped at window.
func (e *Engine) historyTails(required int, columns []string, window int) ([][]float64, []string, error) {
	var (
		tails     [][]float64
		qualified []string
	)
	shortest := window
	for _, col := range columns {
		buf, ok := cache.Lookup[*history.Buffer[float64]](e.store, cache.DataCache, col)
		if !ok || buf.Len() < required {
			continue
		}
		tails = append(tails, buf.AlignedToEnd(buf.Len()))
		qualified = append(qualified, col)
		shortest = min(shortest, buf.Len())
	}
	if len(tails) == 0 {
		return nil, nil, errdefs.InsufficientData("no column has %d values of history", required)
	}
	for i, tail := range tails {
		tails[i] = append([]float64(nil), tail[len(tail)-shortest:]...)
	}
	return tails, qualified, nil
}

// Update commits the rows of f newer than the current high-water mark into
// the history buffers, creating buffers of capacity window when absent.
func (e *Engine) Update(window int, f *series.Frame) {
	if window <= 0 || f.Empty() {
		return
	}
	if latest, ok := e.LatestIndex(f.Columns); ok {
		f = f.After(latest)
	}
	if f.Len() == 0 {
		return
	}

	last := f.Last()
	for c, col := range f.Columns {
		buf, ok := cache.Lookup[*history.Buffer[float64]](e.store, cache.DataCache, col)
		if !ok {
			buf = history.New[float64](window)
			e.store.Set(cache.DataCache, col, buf)
		}
		buf.Append(f.Values[c])
		e.store.Set(cache.StreamFilter, col, last)
	}
}

// FilterDisordered drops the columns whose history already reaches the last
// timestamp of f. It fails with ErrNoNewData when no column is left.
func (e *Engine) FilterDisordered(f *series.Frame) (*series.Frame, error) {
	if f.Empty() {
		return nil, errdefs.NoNewData("empty batch")
	}

	last := f.Last()
	var stale []string
	for _, col := range f.Columns {
		ts, ok := cache.Lookup[time.Time](e.store, cache.StreamFilter, col)
		if ok && !ts.Before(last) {
			stale = append(stale, col)
		}
	}
	if len(stale) == f.Width() {
		return nil, errdefs.NoNewData("all %d columns already processed up to %s", len(stale), last)
	}
	if len(stale) > 0 {
		e.logger.Debug("dropping disordered columns",
			zap.Strings("columns", stale),
			zap.Time("batch_end", last),
		)
		return f.Drop(stale), nil
	}
	return f, nil
}

func (e *Engine) undetectable(begin, end time.Time, cause string) {
	e.logger.Info("points left undetected",
		zap.Time("from", begin),
		zap.Time("until", end),
		zap.String("cause", cause),
	)
	e.metrics.IncUndetectable()
}

func spanEnd(index []time.Time, i int) time.Time {
	if i >= len(index) {
		return index[len(index)-1]
	}
	return index[i]
}
