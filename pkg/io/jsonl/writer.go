// Package jsonl writes detection results as JSON lines.
package jsonl

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	sgio "github.com/hed1ad/streamguard/pkg/io"
)

// Writer writes one JSON object per result.
type Writer struct {
	enc    *json.Encoder
	closer io.Closer
}

var _ sgio.Writer = (*Writer)(nil)

// NewWriter creates a writer on w. Close does not close w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w)}
}

// Create creates or truncates filename and writes to it. "-" writes to stdout.
func Create(filename string) (*Writer, error) {
	if filename == "-" {
		return NewWriter(os.Stdout), nil
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	return &Writer{enc: json.NewEncoder(f), closer: f}, nil
}

// Write implements io.Writer.
func (w *Writer) Write(result sgio.Result) error {
	return w.enc.Encode(result)
}

// WriteAll implements io.Writer.
func (w *Writer) WriteAll(results []sgio.Result) error {
	for _, r := range results {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// Close implements io.Writer.
func (w *Writer) Close() error {
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}
