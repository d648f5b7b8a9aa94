package config

import (
	"errors"
	"fmt"

	"github.com/hed1ad/streamguard/pkg/detectors"
	"github.com/hed1ad/streamguard/pkg/errdefs"
	"github.com/hed1ad/streamguard/pkg/suppress"
	"github.com/hed1ad/streamguard/pkg/threshold"
)

// ValidationError reports an invalid or missing configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets callers match errdefs.ErrMissingParameter.
func (e *ValidationError) Unwrap() error {
	return errdefs.ErrMissingParameter
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate checks every section and joins the failures.
func (c *Config) Validate() error {
	var errs []error

	if c.Validation.MissMaxRate < 0 || c.Validation.MissMaxRate > 1 {
		errs = append(errs, invalid("validate.miss_max_rate", "must be within [0, 1], got %v", c.Validation.MissMaxRate))
	}
	if c.Preprocess.Interval < 0 {
		errs = append(errs, invalid("preprocess.interval", "must not be negative"))
	}

	for i, a := range c.Algorithms {
		errs = append(errs, a.validate(fmt.Sprintf("algorithms[%d]", i))...)
	}

	for name, chain := range c.Suppress {
		if name != CommonSuppress {
			if _, err := detectors.ParseKind(name); err != nil {
				errs = append(errs, invalid("suppress."+name, "not an algorithm kind or %q", CommonSuppress))
			}
		}
		for i, s := range chain {
			errs = append(errs, s.validate(fmt.Sprintf("suppress.%s[%d]", name, i))...)
		}
	}

	for name := range c.Severity.Algorithm {
		if _, err := detectors.ParseKind(name); err != nil {
			errs = append(errs, invalid("severity.algorithm."+name, "unknown algorithm kind"))
		}
	}
	if h := c.Severity.History; h != nil && h.Gap < 0 {
		errs = append(errs, invalid("severity.history.gap", "must not be negative"))
	}

	return errors.Join(errs...)
}

func (a Algorithm) validate(field string) []error {
	if a.Kind == nil {
		return []error{invalid(field+".kind", "required")}
	}

	var errs []error
	switch *a.Kind {
	case detectors.KindThreshold:
		if a.Window < 0 {
			errs = append(errs, invalid(field+".window", "must not be negative"))
		}
		if !a.UpperBound.IsSet() && !a.LowerBound.IsSet() {
			errs = append(errs, invalid(field, "threshold needs upper_bound or lower_bound"))
		}
	case detectors.KindIncremental:
		if a.WindowSize <= 0 {
			errs = append(errs, invalid(field+".window_size", "must be positive"))
		}
		if a.WindowNumber <= 0 {
			errs = append(errs, invalid(field+".window_number", "must be positive"))
		}
		if !a.UpperBound.IsSet() && !a.LowerBound.IsSet() {
			errs = append(errs, invalid(field, "incremental needs upper_bound or lower_bound"))
		}
	case detectors.KindValueChange:
		if a.Window < 0 {
			errs = append(errs, invalid(field+".window", "must not be negative"))
		}
	case detectors.KindDifferentiate, detectors.KindBatchDifferentiate:
		if a.Window <= 0 {
			errs = append(errs, invalid(field+".window", "must be positive"))
		}
		p := a.Threshold.Params()
		if p.Sigma <= 0 {
			errs = append(errs, invalid(field+".threshold.sigma", "must be positive"))
		}
		if p.Kind == threshold.KindSigmaEWM && p.Window <= 0 {
			errs = append(errs, invalid(field+".threshold.window", "must be positive"))
		}
	}
	return errs
}

func (s Suppressor) validate(field string) []error {
	if s.Kind == nil {
		return []error{invalid(field+".kind", "required")}
	}

	var errs []error
	switch *s.Kind {
	case suppress.KindContinuous:
		if s.Gap < 0 {
			errs = append(errs, invalid(field+".gap", "must not be negative"))
		}
	case suppress.KindTransient:
		if s.Window <= 0 {
			errs = append(errs, invalid(field+".window", "must be positive"))
		}
		if s.Anomalies <= 0 || s.Anomalies > s.Window {
			errs = append(errs, invalid(field+".anomalies", "must be within [1, window]"))
		}
	case suppress.KindVariationRatio:
		if s.HistoryLength <= 0 {
			errs = append(errs, invalid(field+".history_length", "must be positive"))
		}
		if s.Threshold < 0 {
			errs = append(errs, invalid(field+".threshold", "must not be negative"))
		}
	case suppress.KindBound:
		if !s.UpperBound.IsSet() && !s.LowerBound.IsSet() {
			errs = append(errs, invalid(field, "bound needs upper_bound or lower_bound"))
		}
	}
	return errs
}
