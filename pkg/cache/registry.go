package cache

import (
	"maps"
	"slices"
	"sync"
	"sync/atomic"
)

// Registry collects the columns seen since the last maintenance pass.
type Registry struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{keys: make(map[string]struct{})}
}

// Record marks columns as active.
func (r *Registry) Record(columns ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range columns {
		r.keys[c] = struct{}{}
	}
}

// Keys returns the active columns, sorted.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Sorted(maps.Keys(r.keys))
}

// Reset forgets every column.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.keys)
}

// Signal is a maintenance request flag raised by an external controller and
// consumed once by the detection loop.
type Signal struct {
	raised atomic.Bool
}

// Raise requests maintenance.
func (s *Signal) Raise() {
	s.raised.Store(true)
}

// Raised reports whether maintenance is pending.
func (s *Signal) Raised() bool {
	return s.raised.Load()
}

// Consume clears the flag and reports whether it was set.
func (s *Signal) Consume() bool {
	return s.raised.Swap(false)
}

// Maintain evicts state of columns not recorded in reg when sig was raised,
// then resets reg. It returns the number of evicted entries and whether
// maintenance ran.
func Maintain(s *Store, reg *Registry, sig *Signal) (int, bool) {
	if !sig.Consume() {
		return 0, false
	}
	removed := s.Evict(reg.Keys())
	reg.Reset()
	return removed, true
}
