// Package registry implements the remote-collection subsystem of
// spec.md §4.3: a process-wide handle -> descriptor table, a
// size-keyed free-list of scratch buffers, and the RemoteEnable /
// RemoteStart / RemoteStop triple that brackets a remote collection
// window.
//
// Grounded on internal/queue/pool.go's package-global sync.Pool
// bucket style, generalized to a struct-owned map because the
// registry needs lookup/delete by key, not just get/put (spec.md §9:
// "implementers should represent the registry as an indexed table and
// entries as values owned by that table, not by the descriptor").
package registry

import (
	"sync"

	"github.com/kbarlow/kcov/internal/descriptor"
)

// Registry is the process-wide handle table and scratch-buffer
// free-list of spec.md §4.3. The zero value is not usable; use New.
type Registry struct {
	mu      sync.Mutex
	entries map[uint64]*descriptor.Descriptor
	free    map[uint64][][]byte // sizeWords -> stack of scratch buffers
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		entries: make(map[uint64]*descriptor.Descriptor),
		free:    make(map[uint64][][]byte),
	}
}

// lookup returns the descriptor registered under handle, if any.
func (r *Registry) lookup(handle uint64) (*descriptor.Descriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.entries[handle]
	return d, ok
}

// insert adds handle -> d, failing with false if handle is already
// registered (spec.md §8 property 9: handle uniqueness).
func (r *Registry) insert(handle uint64, d *descriptor.Descriptor) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[handle]; exists {
		return false
	}
	r.entries[handle] = d
	return true
}

// Purge removes every handle in handles, regardless of which
// descriptor they point at. Installed as the purge-on-disable hook
// (descriptor.SetHandles) and also called by RemoteEnable's rollback;
// the close-time safety-net scan is PurgeDescriptor.
func (r *Registry) Purge(handles []uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range handles {
		delete(r.entries, h)
	}
}

// PurgeDescriptor scans the whole table and removes every handle that
// still points at d. This is the safety-net scan spec.md §4.5
// describes running on a descriptor's final decrement; normal teardown
// purges via Disable's handle list instead, so in steady state this
// finds nothing.
func (r *Registry) PurgeDescriptor(d *descriptor.Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for h, entry := range r.entries {
		if entry == d {
			delete(r.entries, h)
		}
	}
}

// HandleCount returns the number of handles currently registered, for
// metrics and tests.
func (r *Registry) HandleCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
