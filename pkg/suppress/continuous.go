package suppress

import (
	"time"

	"github.com/hed1ad/streamguard/pkg/cache"
	"github.com/hed1ad/streamguard/pkg/series"
)

// Continuous keeps, per column, the first anomaly of every episode: an
// anomaly within Gap of the last kept one is dropped.
type Continuous struct {
	store    *cache.Store
	instance string
	gap      time.Duration
}

// NewContinuous creates a continuous suppressor. A zero gap disables it.
func NewContinuous(store *cache.Store, instance string, gap time.Duration) *Continuous {
	return &Continuous{store: store, instance: instance, gap: gap}
}

// Kind implements Suppressor.
func (s *Continuous) Kind() Kind {
	return KindContinuous
}

func (s *Continuous) key(column string) string {
	return cache.Key(s.instance, "Continuous", column)
}

// Suppress implements Suppressor.
func (s *Continuous) Suppress(labels *series.Labels, _ *series.Frame) *series.Labels {
	if s.gap == 0 {
		return labels
	}
	cols := targets(labels)
	if len(cols) == 0 {
		return labels
	}

	out := labels.Clone()
	for _, c := range cols {
		key := s.key(out.Columns[c])
		last, seen := cache.Lookup[time.Time](s.store, cache.Suppress, key)
		for i, v := range out.Values[c] {
			if !v {
				continue
			}
			ts := out.Index[i]
			if seen && ts.Sub(last) <= s.gap {
				out.Values[c][i] = false
				continue
			}
			last, seen = ts, true
		}
		s.store.Set(cache.Suppress, key, last)
	}
	return out
}
