// Package limits resolves scalar or per-column bounds.
package limits

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Limit is an optional bound. A per-column value wins over the scalar.
//
// In YAML a Limit is either a number or a mapping:
//
//	upper_bound: 20
//	upper_bound: {value: 20, columns: {cpu: 95}}
type Limit struct {
	Scalar   *float64           `yaml:"value,omitempty"`
	ByColumn map[string]float64 `yaml:"columns,omitempty"`
}

// Scalar returns a Limit holding only a scalar bound.
func Scalar(v float64) *Limit {
	return &Limit{Scalar: &v}
}

// PerColumn returns a Limit holding only per-column bounds.
func PerColumn(m map[string]float64) *Limit {
	return &Limit{ByColumn: m}
}

// For returns the bound of a column, if any.
func (l *Limit) For(column string) (float64, bool) {
	if l == nil {
		return 0, false
	}
	if v, ok := l.ByColumn[column]; ok {
		return v, true
	}
	if l.Scalar != nil {
		return *l.Scalar, true
	}
	return 0, false
}

// IsSet reports whether any bound is configured.
func (l *Limit) IsSet() bool {
	return l != nil && (l.Scalar != nil || len(l.ByColumn) > 0)
}

// UnmarshalYAML accepts a bare number or the mapping form.
func (l *Limit) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var v float64
		if err := node.Decode(&v); err != nil {
			return fmt.Errorf("bound: %w", err)
		}
		l.Scalar = &v
		return nil
	}

	type plain Limit
	var p plain
	if err := node.Decode(&p); err != nil {
		return fmt.Errorf("bound: %w", err)
	}
	*l = Limit(p)
	return nil
}
