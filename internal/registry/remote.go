package registry

import (
	"fmt"

	"github.com/kbarlow/kcov/internal/descriptor"
	"github.com/kbarlow/kcov/internal/wire"
)

// DuplicateHandleError reports which handle a REMOTE_ENABLE call
// collided on, so callers can surface it without re-parsing an error
// string.
type DuplicateHandleError struct {
	Handle uint64
}

func (e *DuplicateHandleError) Error() string {
	return fmt.Sprintf("remote_enable: handle %d already registered", e.Handle)
}

func (e *DuplicateHandleError) Unwrap() error {
	return wire.ErrExists
}

// RemoteEnable is the REMOTE_ENABLE request of spec.md §6 / §4.1: it
// attaches the calling task to d exactly as Enable would, then
// registers every handle in handles against d. Any duplicate handle
// (even within the same call, per spec.md §8 property 9) rolls the
// whole call back: handles already inserted under this call are
// purged and the descriptor is disabled again.
func (r *Registry) RemoteEnable(d *descriptor.Descriptor, task *descriptor.Task, mode wire.Mode, remoteSizeWords uint64, handles []uint64) error {
	if len(handles) > wire.MaxHandles {
		return fmt.Errorf("remote_enable: %d handles exceeds max %d: %w", len(handles), wire.MaxHandles, wire.ErrInvalidArgument)
	}

	if err := d.RemoteEnable(task, mode, remoteSizeWords); err != nil {
		return err
	}

	inserted := make([]uint64, 0, len(handles))
	for _, h := range handles {
		if !r.insert(h, d) {
			r.Purge(inserted)
			_ = d.Disable(task)
			return &DuplicateHandleError{Handle: h}
		}
		inserted = append(inserted, h)
	}

	d.SetHandles(inserted, r.Purge)
	return nil
}

// RemoteStart is the remote_start contract of spec.md §4.3: called by
// a background executor beginning work attributable to handle.
// Silently no-ops if the caller is not eligible (already attached, or
// handle is not registered) or if scratch-buffer allocation fails,
// per spec.md §7's "these paths cannot fail loudly" policy.
func (r *Registry) RemoteStart(task *descriptor.Task, handle uint64) {
	if task.Attached() {
		return
	}

	d, ok := r.lookup(handle)
	if !ok {
		return
	}

	mode, remoteSizeWords, sequence, ok := d.RemoteSnapshot()
	if !ok {
		return
	}

	buf, fromFree := r.getScratch(remoteSizeWords)
	if !fromFree {
		allocated, err := newScratch(remoteSizeWords)
		if err != nil {
			d.ReleaseRefcount()
			return
		}
		buf = allocated
	}

	wire.StoreCount(buf, 0)
	d.AttachRemote(task, buf, remoteSizeWords, sequence, mode)
}

// RemoteStop is the matching release of spec.md §4.3. A no-op if task
// holds no attachment. It detaches the task, then merges the scratch
// buffer into the owning descriptor's shared buffer iff the window is
// still valid (sequence unchanged and the descriptor is still remote);
// otherwise the records are silently discarded. The scratch buffer is
// always returned to the free-list and the refcount always released.
// merged reports whether Descriptor.Merge applied the records (false
// for an invalidated window or a rejected destination) and srcRecords
// reports how many records the scratch buffer held, for callers
// tracking facility-wide stats (spec.md §8 property 6).
func (r *Registry) RemoteStop(task *descriptor.Task) (merged bool, srcRecords uint64) {
	buf, sizeWords, sequence, ok := task.Snapshot()
	if !ok {
		return false, 0
	}

	d := descriptor.DetachRemote(task)
	if d == nil {
		return false, 0
	}

	srcRecords = wire.LoadCount(buf)
	merged = d.Merge(sequence, buf, srcRecords)
	r.putScratch(sizeWords, buf)
	d.ReleaseRefcount()
	return merged, srcRecords
}

// newScratch allocates a fresh scratch buffer of sizeWords words, zero
// the non-sleeping-allocator way spec.md §5 requires on the
// remote-start path: make() never blocks on I/O, matching a
// non-sleeping kernel allocator's contract closely enough for this
// stand-in.
func newScratch(sizeWords uint64) ([]byte, error) {
	if sizeWords < wire.MinSizeWords {
		return nil, fmt.Errorf("registry: scratch size %d below minimum %d", sizeWords, wire.MinSizeWords)
	}
	return make([]byte, sizeWords*wire.WordSize), nil
}
