// Package severity scores the anomalies that survived suppression.
package severity

import (
	"fmt"
	"time"

	"github.com/hed1ad/streamguard/pkg/cache"
	"github.com/hed1ad/streamguard/pkg/series"
)

// NotApplicable is the level of a cell that is not anomalous.
const NotApplicable = -1.0

// Kind identifies a scoring method.
type Kind int

const (
	// KindAlgorithm scores by the originating algorithm.
	KindAlgorithm Kind = iota
	// KindHistory scores the first anomaly of a new episode.
	KindHistory
)

var kindNames = map[Kind]string{
	KindAlgorithm: "algorithm",
	KindHistory:   "history",
}

// String returns the configuration name of the kind.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind parses a configuration name.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown severity method %q", s)
}

// Target is the set of anomalies of one column to score.
type Target struct {
	Algorithm string
	Column    string
	// Anomalies holds the anomalous timestamps in increasing order.
	Anomalies []time.Time
}

// Method scores every anomaly of a target.
type Method interface {
	Kind() Kind
	Score(t Target) []float64
}

// ByAlgorithm gives every anomaly the weight of its algorithm, or 0.
type ByAlgorithm struct {
	weights map[string]float64
}

// NewByAlgorithm creates an algorithm-weight method.
func NewByAlgorithm(weights map[string]float64) *ByAlgorithm {
	return &ByAlgorithm{weights: weights}
}

// Kind implements Method.
func (m *ByAlgorithm) Kind() Kind {
	return KindAlgorithm
}

// Score implements Method.
func (m *ByAlgorithm) Score(t Target) []float64 {
	w := m.weights[t.Algorithm]
	out := make([]float64, len(t.Anomalies))
	for i := range out {
		out[i] = w
	}
	return out
}

// ByHistory scores 1 for an anomaly more than Gap after the previous anomaly
// of its column, earlier batches included, and 0 otherwise.
type ByHistory struct {
	store    *cache.Store
	instance string
	gap      time.Duration
}

// NewByHistory creates a history method keeping state under instance.
func NewByHistory(store *cache.Store, instance string, gap time.Duration) *ByHistory {
	return &ByHistory{store: store, instance: instance, gap: gap}
}

// Kind implements Method.
func (m *ByHistory) Kind() Kind {
	return KindHistory
}

func (m *ByHistory) key(column string) string {
	return cache.Key(m.instance, "History", column)
}

// Score implements Method and records the last anomaly of the target.
func (m *ByHistory) Score(t Target) []float64 {
	out := make([]float64, len(t.Anomalies))
	if len(out) == 0 {
		return out
	}

	key := m.key(t.Column)
	last, ok := cache.Lookup[time.Time](m.store, cache.Severity, key)
	if !ok || t.Anomalies[0].Sub(last) > m.gap {
		out[0] = 1
	}
	for i := 1; i < len(t.Anomalies); i++ {
		if t.Anomalies[i].Sub(t.Anomalies[i-1]) > m.gap {
			out[i] = 1
		}
	}
	m.store.Set(cache.Severity, key, t.Anomalies[len(t.Anomalies)-1])
	return out
}

// Combiner folds the scores of several methods by element-wise maximum.
type Combiner struct {
	algorithm string
	methods   []Method
}

// NewCombiner creates a combiner for the anomalies of algorithm.
func NewCombiner(algorithm string, methods ...Method) *Combiner {
	return &Combiner{algorithm: algorithm, methods: methods}
}

// Len returns the number of methods.
func (c *Combiner) Len() int {
	return len(c.methods)
}

// Run sets the Level slot of d from its labels. Without methods, or without
// labels, d is returned unchanged.
func (c *Combiner) Run(d series.Detection) series.Detection {
	if len(c.methods) == 0 || d.Label == nil {
		return d
	}

	labels := d.Label
	levels := series.Zeros[float64](labels.Index, labels.Columns)
	for col, flags := range labels.Values {
		var (
			rows      []int
			anomalies []time.Time
		)
		for i, v := range flags {
			if v {
				rows = append(rows, i)
				anomalies = append(anomalies, labels.Index[i])
			} else {
				levels.Values[col][i] = NotApplicable
			}
		}
		if len(rows) == 0 {
			continue
		}

		target := Target{Algorithm: c.algorithm, Column: labels.Columns[col], Anomalies: anomalies}
		combined := make([]float64, len(rows))
		for m, method := range c.methods {
			for i, s := range method.Score(target) {
				if m == 0 || s > combined[i] {
					combined[i] = s
				}
			}
		}
		for i, r := range rows {
			levels.Values[col][r] = combined[i]
		}
	}
	d.Level = levels
	return d
}
