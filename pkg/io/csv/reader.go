// Package csv reads timestamped telemetry from CSV files.
//
// The first column holds the timestamp and every other column one series:
//
//	timestamp,cpu,mem
//	2022-08-24T00:00:00Z,0.31,512
//
// Empty or non-numeric cells are read as missing values.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hed1ad/streamguard/pkg/series"
)

// DefaultBatchSize is the number of rows per streamed batch.
const DefaultBatchSize = 60

// Reader reads telemetry from a CSV file.
type Reader struct {
	file      *os.File
	reader    *csv.Reader
	layout    string
	batchSize int
	columns   []string
	logger    *zap.Logger
	err       error
}

// Option configures a CSV reader.
type Option func(*Reader)

// WithTimeLayout sets the timestamp layout. The default accepts RFC 3339 and
// Unix seconds.
func WithTimeLayout(layout string) Option {
	return func(r *Reader) {
		r.layout = layout
	}
}

// WithBatchSize sets the number of rows per streamed batch.
func WithBatchSize(n int) Option {
	return func(r *Reader) {
		r.batchSize = n
	}
}

// WithLogger sets the logger reporting skipped rows.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reader) {
		r.logger = l
	}
}

// NewReader opens filename and reads its header row.
func NewReader(filename string, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		file:      file,
		reader:    csv.NewReader(file),
		batchSize: DefaultBatchSize,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.batchSize <= 0 {
		file.Close()
		return nil, fmt.Errorf("batch size must be positive, got %d", r.batchSize)
	}

	headers, err := r.reader.Read()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(headers) < 2 {
		file.Close()
		return nil, errors.New("header needs a timestamp column and at least one series")
	}
	r.columns = headers[1:]
	r.reader.FieldsPerRecord = len(headers)

	return r, nil
}

// Columns returns the series names.
func (r *Reader) Columns() []string {
	return r.columns
}

// Read returns all remaining rows as one frame, in file order.
func (r *Reader) Read() (*series.Frame, error) {
	f := r.newFrame(0)
	for {
		record, err := r.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if r.skip(err) {
				continue
			}
			return nil, err
		}
		r.appendRecord(f, record)
	}
	return f, nil
}

// Stream returns a channel of frames holding up to the batch size rows each.
// Malformed rows are skipped. A read error closes the channel and is
// reported by Err.
func (r *Reader) Stream(ctx context.Context) (<-chan *series.Frame, error) {
	out := make(chan *series.Frame, 1)

	go func() {
		defer close(out)
		batch := r.newFrame(r.batchSize)
		emit := func() bool {
			if batch.Len() == 0 {
				return true
			}
			select {
			case out <- batch:
				batch = r.newFrame(r.batchSize)
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			if ctx.Err() != nil {
				return
			}
			record, err := r.reader.Read()
			if err == io.EOF {
				emit()
				return
			}
			if err != nil {
				if r.skip(err) {
					continue
				}
				r.err = err
				emit()
				return
			}
			r.appendRecord(batch, record)
			if batch.Len() == r.batchSize && !emit() {
				return
			}
		}
	}()

	return out, nil
}

// Err returns the error that ended the last stream. It is valid once the
// stream channel is closed.
func (r *Reader) Err() error {
	return r.err
}

// skip reports whether err only concerns the current row, logging it.
func (r *Reader) skip(err error) bool {
	var perr *csv.ParseError
	if !errors.As(err, &perr) {
		return false
	}
	r.logger.Debug("skipping malformed row", zap.Int("line", perr.Line), zap.Error(err))
	return true
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

func (r *Reader) newFrame(capacity int) *series.Frame {
	f := &series.Frame{
		Index:   make([]time.Time, 0, capacity),
		Columns: append([]string(nil), r.columns...),
		Values:  make([][]float64, len(r.columns)),
	}
	for c := range f.Values {
		f.Values[c] = make([]float64, 0, capacity)
	}
	return f
}

// appendRecord adds a row to f. Rows with an unreadable timestamp are skipped.
func (r *Reader) appendRecord(f *series.Frame, record []string) {
	ts, err := r.parseTime(record[0])
	if err != nil {
		r.logger.Debug("skipping row with invalid timestamp", zap.Error(err))
		return
	}
	f.Index = append(f.Index, ts)
	for c, cell := range record[1:] {
		f.Values[c] = append(f.Values[c], parseValue(cell))
	}
}

func (r *Reader) parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if r.layout != "" {
		return time.Parse(r.layout, s)
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC(), nil
}

func parseValue(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
