// Package series provides the time-indexed tables passed between detection stages.
package series

import (
	"errors"
	"fmt"
	"time"
)

// Table is a time-indexed table of values stored column-major.
// Index is strictly increasing and Columns are distinct.
type Table[T any] struct {
	Index   []time.Time
	Columns []string
	// Values[c][r] holds the value of column c at row r.
	Values [][]T
}

// Frame is a batch of numeric samples.
type Frame = Table[float64]

// Labels marks anomalous cells.
type Labels = Table[bool]

// Levels holds severity scores.
type Levels = Table[float64]

// New creates a table and validates its shape.
func New[T any](index []time.Time, columns []string, values [][]T) (*Table[T], error) {
	t := &Table[T]{Index: index, Columns: columns, Values: values}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Zeros creates a table filled with the zero value of T.
func Zeros[T any](index []time.Time, columns []string) *Table[T] {
	values := make([][]T, len(columns))
	for c := range values {
		values[c] = make([]T, len(index))
	}
	return &Table[T]{
		Index:   append([]time.Time(nil), index...),
		Columns: append([]string(nil), columns...),
		Values:  values,
	}
}

// Validate checks row ordering, column uniqueness and shape.
func (t *Table[T]) Validate() error {
	if len(t.Values) != len(t.Columns) {
		return fmt.Errorf("table has %d columns but %d value slices", len(t.Columns), len(t.Values))
	}
	seen := make(map[string]struct{}, len(t.Columns))
	for c, name := range t.Columns {
		if _, ok := seen[name]; ok {
			return fmt.Errorf("duplicate column %q", name)
		}
		seen[name] = struct{}{}
		if len(t.Values[c]) != len(t.Index) {
			return fmt.Errorf("column %q has %d rows, index has %d", name, len(t.Values[c]), len(t.Index))
		}
	}
	for i := 1; i < len(t.Index); i++ {
		if !t.Index[i].After(t.Index[i-1]) {
			return errors.New("index is not strictly increasing")
		}
	}
	return nil
}

// Len returns the number of rows.
func (t *Table[T]) Len() int {
	return len(t.Index)
}

// Width returns the number of columns.
func (t *Table[T]) Width() int {
	return len(t.Columns)
}

// Empty reports whether the table has no rows or no columns.
func (t *Table[T]) Empty() bool {
	return t == nil || len(t.Index) == 0 || len(t.Columns) == 0
}

// ColumnIndex returns the position of a column, or -1.
func (t *Table[T]) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns the values of a column.
func (t *Table[T]) Column(name string) ([]T, bool) {
	i := t.ColumnIndex(name)
	if i < 0 {
		return nil, false
	}
	return t.Values[i], true
}

// First returns the first timestamp.
func (t *Table[T]) First() time.Time {
	return t.Index[0]
}

// Last returns the last timestamp.
func (t *Table[T]) Last() time.Time {
	return t.Index[len(t.Index)-1]
}

// Clone returns a deep copy.
func (t *Table[T]) Clone() *Table[T] {
	return t.Slice(0, t.Len())
}

// Slice returns a deep copy of rows [from, to).
func (t *Table[T]) Slice(from, to int) *Table[T] {
	if from < 0 {
		from = 0
	}
	if to > t.Len() {
		to = t.Len()
	}
	if from > to {
		from = to
	}
	values := make([][]T, len(t.Values))
	for c, col := range t.Values {
		values[c] = append([]T(nil), col[from:to]...)
	}
	return &Table[T]{
		Index:   append([]time.Time(nil), t.Index[from:to]...),
		Columns: append([]string(nil), t.Columns...),
		Values:  values,
	}
}

// Tail returns a copy of the last n rows.
func (t *Table[T]) Tail(n int) *Table[T] {
	return t.Slice(t.Len()-n, t.Len())
}

// After returns a copy of the rows whose timestamp is after ts.
func (t *Table[T]) After(ts time.Time) *Table[T] {
	return t.Slice(t.SearchAfter(ts), t.Len())
}

// SearchAfter returns the first row whose timestamp is after ts.
func (t *Table[T]) SearchAfter(ts time.Time) int {
	lo, hi := 0, len(t.Index)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if t.Index[mid].After(ts) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// Row returns the row position of a timestamp, or -1.
func (t *Table[T]) Row(ts time.Time) int {
	i := t.SearchAfter(ts) - 1
	if i >= 0 && t.Index[i].Equal(ts) {
		return i
	}
	return -1
}

// Select returns a copy restricted to the given columns, in that order.
// Unknown columns are ignored.
func (t *Table[T]) Select(columns []string) *Table[T] {
	out := &Table[T]{Index: append([]time.Time(nil), t.Index...)}
	for _, name := range columns {
		if col, ok := t.Column(name); ok {
			out.Columns = append(out.Columns, name)
			out.Values = append(out.Values, append([]T(nil), col...))
		}
	}
	return out
}

// Drop returns a copy without the given columns.
func (t *Table[T]) Drop(columns []string) *Table[T] {
	drop := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		drop[c] = struct{}{}
	}
	keep := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if _, ok := drop[c]; !ok {
			keep = append(keep, c)
		}
	}
	return t.Select(keep)
}

// InferInterval returns the sampling interval when the index has at least
// three evenly spaced rows.
func (t *Table[T]) InferInterval() (time.Duration, bool) {
	return InferInterval(t.Index)
}

// InferInterval returns the common spacing of at least three evenly spaced timestamps.
func InferInterval(index []time.Time) (time.Duration, bool) {
	if len(index) < 3 {
		return 0, false
	}
	step := index[1].Sub(index[0])
	if step <= 0 {
		return 0, false
	}
	for i := 2; i < len(index); i++ {
		if index[i].Sub(index[i-1]) != step {
			return 0, false
		}
	}
	return step, true
}

// Range builds n timestamps spaced by step, starting at start.
func Range(start time.Time, step time.Duration, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * step)
	}
	return out
}

// AnyColumns returns the columns holding at least one true cell.
func AnyColumns(l *Labels) []string {
	var out []string
	for c, col := range l.Values {
		for _, v := range col {
			if v {
				out = append(out, l.Columns[c])
				break
			}
		}
	}
	return out
}

// Count returns the number of true cells.
func Count(l *Labels) int {
	if l == nil {
		return 0
	}
	n := 0
	for _, col := range l.Values {
		for _, v := range col {
			if v {
				n++
			}
		}
	}
	return n
}

// Detection carries one batch through a detection pipeline. A nil slot is absent.
type Detection struct {
	// Origin is the batch under detection and must not be modified by stages.
	Origin *Frame
	// Label marks anomalies over a trailing span of the enriched batch.
	Label *Labels
	// Level holds severity scores aligned with Label.
	Level *Levels
}
