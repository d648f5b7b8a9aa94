// Package cache provides the partitioned key/value store holding all
// cross-batch detection state.
package cache

import (
	"maps"
	"slices"
	"strings"
	"sync"
)

// Partition names a key space of the store.
type Partition string

// Partitions used by the detection stages.
const (
	// DataCache maps a column to its history buffer.
	DataCache Partition = "DataCache"
	// StreamFilter maps a column to its last processed timestamp.
	StreamFilter Partition = "StreamFilter"
	// SigmaEWM holds incremental threshold state.
	SigmaEWM Partition = "SigmaEWM"
	// Suppress holds suppressor state.
	Suppress Partition = "Suppress"
	// Severity holds severity state.
	Severity Partition = "Severity"
	// ErrorInfo records the last detection failure per instance.
	ErrorInfo Partition = "ErrorInfo"
)

// Retention selects how a partition decides which entries survive eviction.
type Retention int

const (
	// Exact keeps an entry iff its key is in the retain set.
	Exact Retention = iota
	// Suffix keeps an entry iff its key ends with a member of the retain set.
	Suffix
)

// Spec declares a partition.
type Spec struct {
	Name      Partition
	Retention Retention
}

// DefaultPartitions returns the partitions used by a detection pipeline.
func DefaultPartitions() []Spec {
	return []Spec{
		{Name: DataCache, Retention: Exact},
		{Name: StreamFilter, Retention: Exact},
		{Name: SigmaEWM, Retention: Suffix},
		{Name: Suppress, Retention: Suffix},
		{Name: Severity, Retention: Suffix},
		{Name: ErrorInfo, Retention: Suffix},
	}
}

type partition struct {
	retention Retention
	entries   map[string]any
}

// Store is a set of named partitions declared once at construction.
// All methods are safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	partitions map[Partition]*partition
}

// NewStore creates a store with the given partitions, or the default ones.
func NewStore(specs ...Spec) *Store {
	if len(specs) == 0 {
		specs = DefaultPartitions()
	}
	s := &Store{partitions: make(map[Partition]*partition, len(specs))}
	for _, spec := range specs {
		s.partitions[spec.Name] = &partition{
			retention: spec.Retention,
			entries:   make(map[string]any),
		}
	}
	return s
}

// Key builds the composite key <instance>_<kind><column>.
func Key(instance, kind, column string) string {
	return instance + "_" + kind + column
}

// Get returns the value under key, or def when absent.
// Reading an undeclared partition also yields def.
func (s *Store) Get(p Partition, key string, def any) any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	part, ok := s.partitions[p]
	if !ok {
		return def
	}
	v, ok := part.entries[key]
	if !ok {
		return def
	}
	return v
}

// Lookup returns the value under key typed as T.
func Lookup[T any](s *Store, p Partition, key string) (T, bool) {
	v, ok := s.Get(p, key, nil).(T)
	return v, ok
}

// Set stores a value. Writes to an undeclared partition are dropped.
func (s *Store) Set(p Partition, key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if part, ok := s.partitions[p]; ok {
		part.entries[key] = value
	}
}

// BulkSet stores all values of m.
func (s *Store) BulkSet(p Partition, m map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if part, ok := s.partitions[p]; ok {
		maps.Copy(part.entries, m)
	}
}

// Delete removes a key.
func (s *Store) Delete(p Partition, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if part, ok := s.partitions[p]; ok {
		delete(part.entries, key)
	}
}

// EvictExcept removes every entry whose key is not in retain.
func (s *Store) EvictExcept(p Partition, retain []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	part, ok := s.partitions[p]
	if !ok {
		return 0
	}
	return part.evict(retain, Exact)
}

// EvictMatching removes every entry whose key ends with none of retainSuffixes.
func (s *Store) EvictMatching(p Partition, retainSuffixes []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	part, ok := s.partitions[p]
	if !ok {
		return 0
	}
	return part.evict(retainSuffixes, Suffix)
}

// Evict applies each partition's own retention to retain and returns the
// number of removed entries.
func (s *Store) Evict(retain []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, part := range s.partitions {
		removed += part.evict(retain, part.retention)
	}
	return removed
}

func (p *partition) evict(retain []string, mode Retention) int {
	removed := 0
	switch mode {
	case Exact:
		keep := make(map[string]struct{}, len(retain))
		for _, k := range retain {
			keep[k] = struct{}{}
		}
		for key := range p.entries {
			if _, ok := keep[key]; !ok {
				delete(p.entries, key)
				removed++
			}
		}
	case Suffix:
		for key := range p.entries {
			if !slices.ContainsFunc(retain, func(suffix string) bool {
				return strings.HasSuffix(key, suffix)
			}) {
				delete(p.entries, key)
				removed++
			}
		}
	}
	return removed
}

// Clear empties one partition.
func (s *Store) Clear(p Partition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if part, ok := s.partitions[p]; ok {
		clear(part.entries)
	}
}

// ClearAll empties every partition.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, part := range s.partitions {
		clear(part.entries)
	}
}

// Keys returns the sorted keys of a partition.
func (s *Store) Keys(p Partition) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	part, ok := s.partitions[p]
	if !ok {
		return nil
	}
	return slices.Sorted(maps.Keys(part.entries))
}

// Len returns the number of entries in a partition.
func (s *Store) Len(p Partition) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if part, ok := s.partitions[p]; ok {
		return len(part.entries)
	}
	return 0
}
