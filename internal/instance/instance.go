// Package instance models a peer grid member (C2 Instance Registry): its
// address/token handle, and the master-side bookkeeping of which enslaved
// instances are still running versus done.
package instance

import "sync"

// Instance identifies one peer by its RPC address and auth token. Per
// spec.md §9 ("Weak/back references"), this is a value type: there is no
// in-memory handle to the peer's own state, only its address-level
// coordinates.
type Instance struct {
	URL   string
	Token string
}

// Registry tracks the master's enslaved Instances and their liveness.
// Handler invocations within one instance are serialized (spec.md §5), so
// the mutex here exists only to guard against the Registry being read from
// a concurrently-running background audit task; it is never contended on
// the handler path.
type Registry struct {
	mu   sync.Mutex
	list []Instance
	done map[string]struct{} // URLs that have reported slave_done
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{done: make(map[string]struct{})}
}

// Add registers a newly enslaved Instance. Instances are created by enslave
// and never destroyed during a scan.
func (r *Registry) Add(i Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, i)
}

// List returns a snapshot of all registered Instances.
func (r *Registry) List() []Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Instance, len(r.list))
	copy(out, r.list)
	return out
}

// MarkDone records that the slave at url has completed its local audit.
// Idempotent over the done set (a second call is a no-op), satisfying the
// "slave_done calls must be idempotent" ordering guarantee in spec.md §5.
func (r *Registry) MarkDone(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done[url] = struct{}{}
}

// Done reports whether url has already reported slave_done (or was folded
// into the done set by the liveness deadline).
func (r *Registry) Done(url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.done[url]
	return ok
}

// AllDone reports whether every registered Instance's URL is in the done
// set: running_slaves == done_slaves, as sets of URLs (spec.md §4.2).
func (r *Registry) AllDone() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.list {
		if _, ok := r.done[i.URL]; !ok {
			return false
		}
	}
	return true
}

// DoneCount returns how many registered instances have reported done, for
// diagnostics/logging.
func (r *Registry) DoneCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.done)
}

// Len returns the number of registered instances.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.list)
}
