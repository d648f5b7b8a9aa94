package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time span that also accepts frequency strings such as
// "10D", "5T", "30S", "2H" or "1min".
type Duration time.Duration

var freqPattern = regexp.MustCompile(`^(\d*)\s*([A-Za-z]+)$`)

var freqUnits = map[string]time.Duration{
	"d":    24 * time.Hour,
	"day":  24 * time.Hour,
	"days": 24 * time.Hour,
	"h":    time.Hour,
	"hour": time.Hour,
	"t":    time.Minute,
	"min":  time.Minute,
	"m":    time.Minute,
	"s":    time.Second,
	"sec":  time.Second,
	"l":    time.Millisecond,
	"ms":   time.Millisecond,
}

// ParseDuration parses Go duration syntax or a frequency string.
func ParseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return Duration(d), nil
	}

	m := freqPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	unit, ok := freqUnits[strings.ToLower(m[2])]
	if !ok {
		return 0, fmt.Errorf("invalid duration unit in %q", s)
	}
	n := 1
	if m[1] != "" {
		var err error
		if n, err = strconv.Atoi(m[1]); err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
	}
	return Duration(time.Duration(n) * unit), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String implements fmt.Stringer.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}
