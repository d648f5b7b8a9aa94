// Package config loads the detection configuration.
//
// The detection document is YAML decoded with unknown keys rejected. Column
// names used as keys keep their case.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hed1ad/streamguard/pkg/detectors"
	"github.com/hed1ad/streamguard/pkg/limits"
	"github.com/hed1ad/streamguard/pkg/suppress"
	"github.com/hed1ad/streamguard/pkg/threshold"
)

// CommonSuppress is the suppress key used by algorithms without their own chain.
const CommonSuppress = "common"

// Config is the immutable detection configuration.
type Config struct {
	Validation Validation              `yaml:"validate"`
	Preprocess Preprocess              `yaml:"preprocess"`
	Algorithms []Algorithm             `yaml:"algorithms"`
	Suppress   map[string][]Suppressor `yaml:"suppress"`
	Severity   Severity                `yaml:"severity"`
}

// Validation configures batch validation.
type Validation struct {
	// MissMaxRate is the highest tolerated share of missing values per column.
	MissMaxRate float64 `yaml:"miss_max_rate"`
}

// Preprocess configures batch preprocessing.
type Preprocess struct {
	// Interval is the expected sampling interval. Zero accepts any.
	Interval Duration `yaml:"interval"`
}

// Algorithm configures one detection pipeline.
type Algorithm struct {
	Kind         *detectors.Kind `yaml:"kind"`
	Window       int             `yaml:"window"`
	WindowSize   int             `yaml:"window_size"`
	WindowNumber int             `yaml:"window_number"`
	UpperBound   *limits.Limit   `yaml:"upper_bound"`
	LowerBound   *limits.Limit   `yaml:"lower_bound"`
	Threshold    *Threshold      `yaml:"threshold"`
}

// Threshold configures the threshold model of a differentiate algorithm.
type Threshold struct {
	Kind   *threshold.Kind `yaml:"kind"`
	Sigma  float64         `yaml:"sigma"`
	Window int             `yaml:"window"`
}

// Params returns the model parameters with defaults applied.
func (t *Threshold) Params() threshold.Params {
	p := threshold.DefaultParams()
	if t == nil {
		return p
	}
	if t.Kind != nil {
		p.Kind = *t.Kind
	}
	if t.Sigma != 0 {
		p.Sigma = t.Sigma
	}
	if t.Window != 0 {
		p.Window = t.Window
	}
	return p
}

// Suppressor configures one suppressor of a chain.
type Suppressor struct {
	Kind          *suppress.Kind `yaml:"kind"`
	Gap           Duration       `yaml:"gap"`
	Window        int            `yaml:"window"`
	Anomalies     int            `yaml:"anomalies"`
	HistoryLength int            `yaml:"history_length"`
	Threshold     float64        `yaml:"threshold"`
	UpperBound    *limits.Limit  `yaml:"upper_bound"`
	LowerBound    *limits.Limit  `yaml:"lower_bound"`
}

// Severity configures the scoring methods. Absent methods are not run.
type Severity struct {
	Algorithm map[string]float64 `yaml:"algorithm"`
	History   *HistorySeverity   `yaml:"history"`
}

// HistorySeverity configures scoring by anomaly history.
type HistorySeverity struct {
	Gap Duration `yaml:"gap"`
}

// DefaultConfig returns a configuration without algorithms.
func DefaultConfig() Config {
	return Config{
		Validation: Validation{MissMaxRate: 0},
		Suppress:   map[string][]Suppressor{},
	}
}

// Load reads and validates a configuration file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML configuration.
func Parse(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SuppressorsFor returns the chain of an algorithm, falling back to the common one.
func (c *Config) SuppressorsFor(kind detectors.Kind) []Suppressor {
	if chain, ok := c.Suppress[kind.String()]; ok {
		return chain
	}
	return c.Suppress[CommonSuppress]
}
