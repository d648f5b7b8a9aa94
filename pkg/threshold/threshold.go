// Package threshold turns score tables into anomaly labels using sigma bounds.
package threshold

import (
	"fmt"

	"gonum.org/v1/gonum/floats/scalar"

	"github.com/hed1ad/streamguard/pkg/cache"
	"github.com/hed1ad/streamguard/pkg/series"
)

// Default parameters.
const (
	DefaultSigma  = 4.0
	DefaultWindow = 100
)

// scorePrecision is the number of decimals kept before comparing against bounds.
const scorePrecision = 5

// Kind selects a threshold model.
type Kind int

const (
	// KindSigma is the static sigma model.
	KindSigma Kind = iota
	// KindSigmaEWM is the incremental exponentially weighted sigma model.
	KindSigmaEWM
)

var kindNames = map[Kind]string{
	KindSigma:    "sigma",
	KindSigmaEWM: "sigma_ewm",
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
	return 0, fmt.Errorf("unknown threshold model %q", s)
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

// Thresholder labels the cells of a score table lying outside its bounds.
type Thresholder interface {
	Threshold(score *series.Frame) *series.Labels
}

// Params configures a threshold model.
type Params struct {
	Kind   Kind    `yaml:"kind"`
	Sigma  float64 `yaml:"sigma"`
	Window int     `yaml:"window"`
}

// DefaultParams returns the incremental model with default parameters.
func DefaultParams() Params {
	return Params{
		Kind:   KindSigmaEWM,
		Sigma:  DefaultSigma,
		Window: DefaultWindow,
	}
}

// Module rounds scores and delegates to the selected model.
type Module struct {
	kind Kind
	core Thresholder
}

// NewModule creates the model selected by p. The incremental model keeps its
// state in store under the instance name.
func NewModule(p Params, store *cache.Store, instance string) (*Module, error) {
	if p.Sigma == 0 {
		p.Sigma = DefaultSigma
	}
	if p.Window == 0 {
		p.Window = DefaultWindow
	}

	m := &Module{kind: p.Kind}
	switch p.Kind {
	case KindSigma:
		m.core = NewSigma(p.Sigma)
	case KindSigmaEWM:
		if p.Window < 0 {
			return nil, fmt.Errorf("sigma_ewm window must be positive, got %d", p.Window)
		}
		m.core = NewSigmaEWM(store, instance, p.Sigma, p.Window)
	default:
		return nil, fmt.Errorf("unsupported threshold model %s", p.Kind)
	}
	return m, nil
}

// Kind returns the selected model.
func (m *Module) Kind() Kind {
	return m.kind
}

// Threshold labels score after rounding it to a fixed precision.
func (m *Module) Threshold(score *series.Frame) *series.Labels {
	rounded := score.Clone()
	for _, col := range rounded.Values {
		for i, v := range col {
			col[i] = scalar.Round(v, scorePrecision)
		}
	}
	return m.core.Threshold(rounded)
}

// Save snapshots the model state. Stateless models return nil.
func (m *Module) Save() ([]byte, error) {
	if ewm, ok := m.core.(*SigmaEWM); ok {
		return ewm.Save()
	}
	return nil, nil
}

// Load restores a snapshot produced by Save.
func (m *Module) Load(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	ewm, ok := m.core.(*SigmaEWM)
	if !ok {
		return fmt.Errorf("%s model has no state to load", m.kind)
	}
	return ewm.Load(data)
}

// outside labels value v against bounds. NaN is never anomalous.
func outside(v, upper, lower float64) bool {
	return v > upper || v < lower
}
