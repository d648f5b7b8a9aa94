// Package suppress removes false positives from anomaly labels using state
// carried across batches.
package suppress

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/hed1ad/streamguard/pkg/metrics"
	"github.com/hed1ad/streamguard/pkg/series"
)

// Suppressor clears some true cells of a label table. Implementations never
// set a cell and never modify their inputs.
type Suppressor interface {
	// Kind returns the suppressor variant.
	Kind() Kind

	// Suppress returns the filtered labels. origin is the batch under
	// detection and is only read by value-based suppressors.
	Suppress(labels *series.Labels, origin *series.Frame) *series.Labels
}

// Kind identifies a suppressor variant.
type Kind int

const (
	// KindContinuous drops anomalies within a gap of the last kept one.
	KindContinuous Kind = iota
	// KindTransient drops anomalies not backed by enough recent ones.
	KindTransient
	// KindVariationRatio drops anomalies close to their recent range.
	KindVariationRatio
	// KindBound drops anomalies whose value lies inside a band.
	KindBound
)

var kindNames = map[Kind]string{
	KindContinuous:     "continuous",
	KindTransient:      "transient",
	KindVariationRatio: "variation_ratio",
	KindBound:          "bound",
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
	return 0, fmt.Errorf("unknown suppressor %q", s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Chain applies suppressors in order, feeding each the output of the previous one.
type Chain struct {
	instance    string
	suppressors []Suppressor
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithLogger sets the logger reporting suppressed anomalies.
func WithLogger(l *zap.Logger) ChainOption {
	return func(c *Chain) {
		c.logger = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) ChainOption {
	return func(c *Chain) {
		c.metrics = m
	}
}

// NewChain creates a chain for a detector instance.
func NewChain(instance string, suppressors []Suppressor, opts ...ChainOption) *Chain {
	c := &Chain{
		instance:    instance,
		suppressors: suppressors,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Len returns the number of suppressors.
func (c *Chain) Len() int {
	return len(c.suppressors)
}

// Suppress runs every suppressor over labels.
func (c *Chain) Suppress(labels *series.Labels, origin *series.Frame) *series.Labels {
	if labels == nil {
		return nil
	}
	for _, s := range c.suppressors {
		before := columnCounts(labels)
		labels = s.Suppress(labels, origin)
		c.report(s.Kind(), before, columnCounts(labels))
	}
	return labels
}

// report logs how many anomalies a suppressor removed and from which columns.
// Values are never logged.
func (c *Chain) report(kind Kind, before, after map[string]int) {
	total := 0
	var columns []string
	for col, n := range before {
		if removed := n - after[col]; removed > 0 {
			total += removed
			columns = append(columns, col)
		}
	}
	if total == 0 {
		return
	}
	slices.Sort(columns)
	c.metrics.AddSuppressed(c.instance, kind.String(), total)
	c.logger.Debug("suppressed anomalies",
		zap.String("instance", c.instance),
		zap.Stringer("suppressor", kind),
		zap.Strings("columns", columns),
		zap.Int("count", total),
	)
}

func columnCounts(l *series.Labels) map[string]int {
	out := make(map[string]int, l.Width())
	for c, col := range l.Values {
		n := 0
		for _, v := range col {
			if v {
				n++
			}
		}
		if n > 0 {
			out[l.Columns[c]] = n
		}
	}
	return out
}

// targets returns the positions of columns holding at least one anomaly.
func targets(l *series.Labels) []int {
	var out []int
	for c, col := range l.Values {
		for _, v := range col {
			if v {
				out = append(out, c)
				break
			}
		}
	}
	return out
}
