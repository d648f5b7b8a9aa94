package suppress

import (
	"time"

	"github.com/hed1ad/streamguard/pkg/cache"
	"github.com/hed1ad/streamguard/pkg/history"
	"github.com/hed1ad/streamguard/pkg/series"
)

// Transient keeps an anomaly only when at least Anomalies of the Window
// samples ending at it, previous batches included, are anomalous.
type Transient struct {
	store     *cache.Store
	instance  string
	window    int
	anomalies int
}

// NewTransient creates a transient suppressor. It is disabled when window or
// anomalies is at most one.
func NewTransient(store *cache.Store, instance string, window, anomalies int) *Transient {
	return &Transient{
		store:     store,
		instance:  instance,
		window:    window,
		anomalies: anomalies,
	}
}

// Kind implements Suppressor.
func (s *Transient) Kind() Kind {
	return KindTransient
}

func (s *Transient) key(column string) string {
	return cache.Key(s.instance, "Transient", column)
}

// transientState is the trailing label history of one column and the
// timestamp of the last row folded into it.
type transientState struct {
	buf    *history.Buffer[bool]
	folded time.Time
}

func (s *Transient) state(column string) *transientState {
	key := s.key(column)
	st, ok := cache.Lookup[*transientState](s.store, cache.Suppress, key)
	if !ok {
		st = &transientState{buf: history.New[bool](s.window + 1)}
		s.store.Set(cache.Suppress, key, st)
	}
	return st
}

// fresh returns the first row of labels not yet folded into st.
func (st *transientState) fresh(labels *series.Labels) int {
	if st.folded.IsZero() {
		return 0
	}
	return labels.SearchAfter(st.folded)
}

func (st *transientState) fold(labels *series.Labels, values []bool) {
	st.buf.Overwrite(values)
	if labels.Len() > 0 && labels.Last().After(st.folded) {
		st.folded = labels.Last()
	}
}

// Suppress implements Suppressor. Columns without anomalies still refresh
// their trailing history. Rows folded by an earlier batch are not counted
// again and are never reported.
func (s *Transient) Suppress(labels *series.Labels, _ *series.Frame) *series.Labels {
	if s.anomalies <= 1 || s.window <= 1 {
		return labels
	}

	cols := targets(labels)
	isTarget := make(map[int]bool, len(cols))
	for _, c := range cols {
		isTarget[c] = true
	}
	for c, col := range labels.Values {
		if !isTarget[c] {
			st := s.state(labels.Columns[c])
			st.fold(labels, append(st.buf.Filled(), col[st.fresh(labels):]...))
		}
	}
	if len(cols) == 0 {
		return labels
	}

	out := labels.Clone()
	for _, c := range cols {
		st := s.state(out.Columns[c])
		from := st.fresh(labels)
		for i := 0; i < from; i++ {
			out.Values[c][i] = false
		}

		rows := labels.Values[c][from:]
		concat := append(st.buf.Filled(), rows...)
		offset := len(concat) - len(rows)

		count := 0
		for j, v := range concat {
			if v {
				count++
			}
			if j >= s.window && concat[j-s.window] {
				count--
			}
			if j >= offset {
				out.Values[c][from+j-offset] = v && count >= s.anomalies
			}
		}
		st.fold(labels, concat)
	}
	return out
}
