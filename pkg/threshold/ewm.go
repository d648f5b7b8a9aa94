package threshold

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"strings"

	"github.com/hed1ad/streamguard/pkg/cache"
	"github.com/hed1ad/streamguard/pkg/series"
)

const stateKind = "SigmaEWM"

// State is the running statistics of one column.
type State struct {
	EMA     float64
	EMVar   float64
	Counter int
}

// SigmaEWM bounds each sample by ema ± k·sqrt(emvar) of the samples before
// and including it. No sample is anomalous until window samples were seen.
type SigmaEWM struct {
	store    *cache.Store
	instance string
	k        float64
	window   int
	alpha    float64
}

// NewSigmaEWM creates an incremental sigma model storing its state in store.
func NewSigmaEWM(store *cache.Store, instance string, k float64, window int) *SigmaEWM {
	return &SigmaEWM{
		store:    store,
		instance: instance,
		k:        k,
		window:   window,
		alpha:    2 / float64(window+1),
	}
}

func (s *SigmaEWM) key(column string) string {
	return cache.Key(s.instance, stateKind, column)
}

// State returns the stored state of a column.
func (s *SigmaEWM) State(column string) (State, bool) {
	return cache.Lookup[State](s.store, cache.SigmaEWM, s.key(column))
}

// Threshold implements Thresholder and persists the state reached after the last row.
func (s *SigmaEWM) Threshold(score *series.Frame) *series.Labels {
	labels := series.Zeros[bool](score.Index, score.Columns)
	for c, col := range score.Values {
		if len(col) == 0 {
			continue
		}
		st, ok := s.State(score.Columns[c])
		if !ok {
			st = State{EMA: col[0]}
		}
		for i, v := range col {
			st = s.step(st, v)
			upper, lower := math.Inf(1), math.Inf(-1)
			if st.Counter == s.window {
				spread := s.k * math.Sqrt(st.EMVar)
				upper, lower = st.EMA+spread, st.EMA-spread
			}
			labels.Values[c][i] = outside(v, upper, lower)
		}
		s.store.Set(cache.SigmaEWM, s.key(score.Columns[c]), st)
	}
	return labels
}

func (s *SigmaEWM) step(st State, v float64) State {
	delta := v - st.EMA
	st.EMA += s.alpha * delta
	st.EMVar = (1 - s.alpha) * (st.EMVar + s.alpha*delta*delta)
	st.Counter = min(s.window, st.Counter+1)
	return st
}

// Save gob-encodes the state of every column of this instance.
func (s *SigmaEWM) Save() ([]byte, error) {
	prefix := s.key("")
	states := make(map[string]State)
	for _, key := range s.store.Keys(cache.SigmaEWM) {
		column, ok := strings.CutPrefix(key, prefix)
		if !ok {
			continue
		}
		if st, ok := cache.Lookup[State](s.store, cache.SigmaEWM, key); ok {
			states[column] = st
		}
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(states); err != nil {
		return nil, fmt.Errorf("encode sigma_ewm state: %w", err)
	}
	return buf.Bytes(), nil
}

// Load restores the states written by Save.
func (s *SigmaEWM) Load(data []byte) error {
	var states map[string]State
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&states); err != nil {
		return fmt.Errorf("decode sigma_ewm state: %w", err)
	}
	for column, st := range states {
		s.store.Set(cache.SigmaEWM, s.key(column), st)
	}
	return nil
}
