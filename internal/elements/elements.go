// Package elements implements the Element Deduplicator (C3): the
// master-authoritative URL→set(ElementId) map, and the slave-side
// probabilistic ElementIdFilter used to suppress redundant upward reports.
package elements

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// ID is an opaque, stable identifier for one auditable element (a form
// field, link parameter, cookie, header, ...) within the scope of the
// audit (spec.md §GLOSSARY).
type ID = string

// Map is the ElementIdMap: URL -> set<ElementId>. It grows monotonically
// during the crawl phase and is frozen before partitioning. Handler
// invocations within one instance are serialized (spec.md §5), so the only
// concurrent access this needs to tolerate is a background audit task
// reading a frozen snapshot while the crawl callback is still mutating it.
type Map struct {
	mu   sync.Mutex
	byURL map[string]map[ID]struct{}
}

// NewMap constructs an empty Map.
func NewMap() *Map {
	return &Map{byURL: make(map[string]map[ID]struct{})}
}

// Record merges ids into the set for url (set union), growing the map.
func (m *Map) Record(url string, ids []ID) {
	if len(ids) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.byURL[url]
	if !ok {
		set = make(map[ID]struct{}, len(ids))
		m.byURL[url] = set
	}
	for _, id := range ids {
		set[id] = struct{}{}
	}
}

// IDsFor returns the recorded element ids for url.
func (m *Map) IDsFor(url string) []ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.byURL[url]
	out := make([]ID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// URLs returns every URL currently recorded, order unspecified.
func (m *Map) URLs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.byURL))
	for u := range m.byURL {
		out = append(out, u)
	}
	return out
}

// Snapshot returns a deep copy of the whole URL->ids map, for handing to
// the Workload Partitioner (which must see a frozen view).
func (m *Map) Snapshot() map[string][]ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]ID, len(m.byURL))
	for u, set := range m.byURL {
		ids := make([]ID, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		out[u] = ids
	}
	return out
}

// Filter is the slave-side ElementIdFilter: a probabilistic set of
// ElementIds already forwarded upstream, used to suppress redundant
// upward reports (spec.md §4.3). Sized for ~1e6 elements at a target
// false-positive rate of 0.1%, per spec.md §9.
type Filter struct {
	mu sync.Mutex
	bf *bloom.BloomFilter
}

// DefaultCapacity and DefaultFalsePositiveRate are the sizing choice named
// in spec.md §9 ("1e6 elements @ 0.1% FPR").
const (
	DefaultCapacity         = 1_000_000
	DefaultFalsePositiveRate = 0.001
)

// NewFilter constructs a Filter sized for capacity elements at the given
// false-positive rate.
func NewFilter(capacity uint, falsePositiveRate float64) *Filter {
	return &Filter{bf: bloom.NewWithEstimates(capacity, falsePositiveRate)}
}

// NewDefaultFilter constructs a Filter using spec.md §9's sizing guidance.
func NewDefaultFilter() *Filter {
	return NewFilter(DefaultCapacity, DefaultFalsePositiveRate)
}

// Apply removes any id already present in the filter from ids, returning
// only the remainder, and inserts that remainder into the filter. This is
// the slave-side pre-filtering step before an id is forwarded upstream.
func (f *Filter) Apply(ids []ID) []ID {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ID, 0, len(ids))
	for _, id := range ids {
		b := []byte(id)
		if f.bf.Test(b) {
			continue
		}
		f.bf.Add(b)
		out = append(out, id)
	}
	return out
}
