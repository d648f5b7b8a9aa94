// Package history provides the fixed-capacity per-column tail of a stream.
package history

// Buffer keeps the most recent values of one column, oldest first.
// When partially filled only the first Len() slots are meaningful.
type Buffer[T any] struct {
	data   []T
	length int
}

// New creates an empty buffer holding at most capacity values.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer[T]{data: make([]T, capacity)}
}

// Cap returns the capacity.
func (b *Buffer[T]) Cap() int {
	return len(b.data)
}

// Len returns the number of valid values.
func (b *Buffer[T]) Len() int {
	return b.length
}

// IsFull reports whether the buffer holds Cap() values.
func (b *Buffer[T]) IsFull() bool {
	return b.length >= len(b.data)
}

// Data returns the internal array as-is.
func (b *Buffer[T]) Data() []T {
	return b.data
}

// Filled returns a copy of the valid values, oldest first.
func (b *Buffer[T]) Filled() []T {
	return append([]T(nil), b.data[:b.length]...)
}

// Append adds values at the tail, evicting the oldest ones to make room.
// An input at least as long as the capacity replaces the whole content.
func (b *Buffer[T]) Append(values []T) {
	size := len(b.data)
	n := len(values)
	free := size - b.length
	switch {
	case size <= n:
		b.length = 0
	case n > free:
		shift := n - free
		copy(b.data[0:b.length-shift], b.data[shift:b.length])
		b.length -= shift
	}
	n = min(n, size)
	copy(b.data[b.length:b.length+n], values[len(values)-n:])
	b.length += n
}

// AlignedToEnd returns an array of Cap() slots whose last n slots hold the
// most recent n valid values, so it can be indexed from the end whatever the
// fill state. The stored array is returned unchanged when full.
func (b *Buffer[T]) AlignedToEnd(n int) []T {
	if b.IsFull() {
		return b.data
	}
	n = min(n, b.length)
	out := append([]T(nil), b.data...)
	copy(out[len(out)-n:], b.data[b.length-n:b.length])
	return out
}

// Overwrite replaces the content, keeping at most the last Cap() values.
func (b *Buffer[T]) Overwrite(values []T) {
	size := len(b.data)
	if len(values) < size {
		copy(b.data, values)
		b.length = len(values)
		return
	}
	copy(b.data, values[len(values)-size:])
	b.length = size
}

// Reset empties the buffer.
func (b *Buffer[T]) Reset() {
	clear(b.data)
	b.length = 0
}
