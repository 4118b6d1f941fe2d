// Package descriptor implements the per-session coverage state
// machine (spec.md §4.1), the per-task acquire/release-visible
// collection state trace sinks read (spec.md §4.2, §9), and the
// merge operation the remote registry invokes to fold a scratch
// buffer into a descriptor's shared buffer (spec.md §4.4).
//
// Descriptor and Task live in the same package, not split across a
// descriptor/sink boundary, because they are as tightly coupled as
// the teacher's Runner and its hot-path completion handling in
// internal/queue — the fast path reads fields the control path
// writes, and keeping them apart would just mean exporting internals.
package descriptor

import (
	"sync"
	"sync/atomic"

	"github.com/kbarlow/kcov/internal/area"
	"github.com/kbarlow/kcov/internal/barrier"
	"github.com/kbarlow/kcov/internal/logging"
	"github.com/kbarlow/kcov/internal/wire"
)

// taskBuf is the snapshot of buffer state a Task publishes atomically
// when it is attached to a descriptor. Holding it behind a single
// pointer keeps the publish a single atomic store instead of three
// races against each other.
type taskBuf struct {
	buf      []byte
	size     uint64 // capacity in words
	sequence uint64
}

// Task is the per-task coverage state spec.md §3 describes: a
// back-reference to the descriptor currently being fed, cached
// size/area/sequence, and the single-word mode trace sinks read with
// acquire semantics. There is no goroutine-local storage in Go, so
// callers (compiler-instrumentation stand-ins, background executors)
// own and pass their own *Task explicitly; see DESIGN.md's Open
// Question resolution.
type Task struct {
	mode atomic.Uint32
	info atomic.Pointer[taskBuf]

	// desc is touched only by the task's own sequential
	// attach/detach path (a task is attached at most once at a time,
	// per spec.md §4.3), never concurrently with itself.
	desc *Descriptor
}

// Mode returns the task's currently published mode, with acquire
// semantics — the read trace sinks perform before deciding whether to
// record.
func (t *Task) Mode() wire.Mode {
	return wire.Mode(t.mode.Load())
}

// Attached reports whether this task currently holds an attachment to
// any descriptor. ENABLE and remote_start both require this to be
// false for the calling task.
func (t *Task) Attached() bool {
	return t.desc != nil
}

// publish sets the per-task cache fields and then the mode, in that
// order, with release semantics — buffer pointers before mode on
// enable, per spec.md §9's never-reverse rule.
func (t *Task) publish(desc *Descriptor, buf []byte, size, sequence uint64, mode wire.Mode) {
	t.info.Store(&taskBuf{buf: buf, size: size, sequence: sequence})
	barrier.Fence()
	t.desc = desc
	t.mode.Store(uint32(mode))
}

// clear detaches the task: mode to DISABLED first, then buffer
// pointers, the reverse of publish, per spec.md §9.
func (t *Task) clear() {
	t.mode.Store(uint32(wire.ModeDisabled))
	barrier.Fence()
	t.desc = nil
	t.info.Store(nil)
}

// Descriptor is the coverage session object of spec.md §3.
type Descriptor struct {
	mu sync.Mutex

	mode       wire.Mode
	size       uint64 // words
	area       *area.Area
	mapped     bool
	ownerTask  *Task
	remote     bool
	remoteSize uint64
	sequence   atomic.Uint64
	refcount   atomic.Int32

	// handles lists the handles currently registered against this
	// descriptor under the registry's map; the registry's table
	// remains the authoritative store — this is a weak back-pointer
	// used only to drive the purge-on-disable safety net.
	handles      []uint64
	purgeHandles func(handles []uint64)

	logger *logging.Logger
}

// Mode returns the descriptor's current state-machine mode.
func (d *Descriptor) Mode() wire.Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// Refcount returns the descriptor's current reference count, for
// tests and diagnostics.
func (d *Descriptor) Refcount() int32 {
	return d.refcount.Load()
}

// Sequence returns the descriptor's current sequence counter.
func (d *Descriptor) Sequence() uint64 {
	return d.sequence.Load()
}

// Size returns the descriptor's declared capacity in words.
func (d *Descriptor) Size() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}

// Buffer exposes the descriptor's mapped shared buffer, for a control
// plane to hand to userspace. Returns nil if unmapped.
func (d *Descriptor) Buffer() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.area == nil {
		return nil
	}
	return d.area.Bytes()
}

// SetHandles installs the registry's purge-on-disable hook and
// records which handles this descriptor currently backs. Called by
// internal/registry's RemoteEnable after a successful registration.
func (d *Descriptor) SetHandles(handles []uint64, purge func([]uint64)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handles = append([]uint64(nil), handles...)
	d.purgeHandles = purge
}

// Handles returns a copy of the handles currently registered against
// this descriptor.
func (d *Descriptor) Handles() []uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint64(nil), d.handles...)
}
