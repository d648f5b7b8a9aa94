// Package detectors provides windowed streaming anomaly detection rules.
package detectors

import (
	"fmt"

	"github.com/hed1ad/streamguard/pkg/series"
	"github.com/hed1ad/streamguard/pkg/stream"
)

// Detector is the common interface for all detection rules.
type Detector interface {
	// Name returns the instance name used to scope cached state.
	Name() string

	// Kind returns the rule implemented by the detector.
	Kind() Kind

	// Window returns the number of prior samples the rule needs per point.
	Window() int

	// Detect sets the Label slot of d from its Origin.
	// It fails with errdefs.ErrInsufficientData when context is too short.
	Detect(d series.Detection) (series.Detection, error)

	// Save serializes the detector state to bytes. Stateless rules return nil.
	Save() ([]byte, error)

	// Load restores state produced by Save.
	Load(data []byte) error
}

// Kind identifies a detection rule.
type Kind int

const (
	// KindThreshold flags values outside fixed bounds.
	KindThreshold Kind = iota
	// KindIncremental flags sustained monotonic drifts beyond fixed bounds.
	KindIncremental
	// KindValueChange flags values equal to the previous sample.
	KindValueChange
	// KindDifferentiate thresholds the sum of absolute lagged differences.
	KindDifferentiate
	// KindBatchDifferentiate is KindDifferentiate under its batch name.
	KindBatchDifferentiate
)

var kindNames = map[Kind]string{
	KindThreshold:          "threshold",
	KindIncremental:        "incremental",
	KindValueChange:        "value_change",
	KindDifferentiate:      "differentiate",
	KindBatchDifferentiate: "batch_differentiate",
}

// String returns the configuration name of the rule.
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
	return 0, fmt.Errorf("unknown detection algorithm %q", s)
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

// Base carries the fields shared by every rule and fetches enriched batches.
type Base struct {
	name   string
	kind   Kind
	window int
	engine *stream.Engine
}

// NewBase creates a Base.
func NewBase(name string, kind Kind, window int, engine *stream.Engine) Base {
	return Base{
		name:   name,
		kind:   kind,
		window: window,
		engine: engine,
	}
}

// Name implements Detector.
func (b *Base) Name() string {
	return b.name
}

// Kind implements Detector.
func (b *Base) Kind() Kind {
	return b.kind
}

// Window implements Detector.
func (b *Base) Window() int {
	return b.window
}

// Enrich returns origin extended with the history the rule window needs.
func (b *Base) Enrich(origin *series.Frame) (*series.Frame, error) {
	latest, _ := b.engine.LatestIndex(origin.Columns)
	return b.engine.GetData(origin, latest, b.window)
}

// Save implements Detector for stateless rules.
func (b *Base) Save() ([]byte, error) {
	return nil, nil
}

// Load implements Detector for stateless rules.
func (b *Base) Load([]byte) error {
	return nil
}
