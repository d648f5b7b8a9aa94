// Package io provides input/output utilities for telemetry ingestion and
// anomaly reporting.
package io

import (
	"context"
	"time"

	"github.com/hed1ad/streamguard/pkg/series"
)

// Reader is the interface for reading telemetry from various sources.
type Reader interface {
	// Read returns the complete dataset as one frame.
	Read() (*series.Frame, error)

	// Stream returns a channel of batches for real-time processing.
	Stream(ctx context.Context) (<-chan *series.Frame, error)

	// Err returns the error that ended the last stream, once its channel is closed.
	Err() error

	// Close releases resources.
	Close() error
}

// Writer is the interface for writing detection results.
type Writer interface {
	// Write outputs a single result.
	Write(result Result) error

	// WriteAll outputs multiple results.
	WriteAll(results []Result) error

	// Close releases resources.
	Close() error
}

// Result is one anomalous cell reported by a pipeline.
type Result struct {
	Timestamp time.Time `json:"timestamp"`
	Instance  string    `json:"instance"`
	Algorithm string    `json:"algorithm"`
	Column    string    `json:"column"`
	Value     float64   `json:"value"`
	Severity  *float64  `json:"severity,omitempty"`
}

// Results lists the anomalies of d that fall inside its origin batch.
// Anomalies on history rows were reported by an earlier batch and are skipped.
func Results(instance, algorithm string, d series.Detection) []Result {
	if d.Label == nil || d.Origin == nil {
		return nil
	}

	var out []Result
	for c, col := range d.Label.Columns {
		oc := d.Origin.ColumnIndex(col)
		if oc < 0 {
			continue
		}
		for i, v := range d.Label.Values[c] {
			if !v {
				continue
			}
			ts := d.Label.Index[i]
			row := d.Origin.Row(ts)
			if row < 0 {
				continue
			}
			r := Result{
				Timestamp: ts,
				Instance:  instance,
				Algorithm: algorithm,
				Column:    col,
				Value:     d.Origin.Values[oc][row],
			}
			if d.Level != nil {
				level := d.Level.Values[c][i]
				r.Severity = &level
			}
			out = append(out, r)
		}
	}
	return out
}
