package descriptor

import (
	"fmt"

	"github.com/kbarlow/kcov/internal/area"
	"github.com/kbarlow/kcov/internal/logging"
	"github.com/kbarlow/kcov/internal/wire"
)

// New opens a descriptor in DISABLED mode with refcount 1, matching
// the "open" operation of spec.md §4.5.
func New(logger *logging.Logger) *Descriptor {
	if logger == nil {
		logger = logging.Default()
	}
	d := &Descriptor{mode: wire.ModeDisabled, logger: logger}
	d.refcount.Store(1)
	return d
}

// Init is the INIT_TRACE request of spec.md §6: DISABLED -> INIT with
// the given capacity.
func (d *Descriptor) Init(sizeWords uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.mode != wire.ModeDisabled {
		return fmt.Errorf("init: descriptor not disabled: %w", wire.ErrBusy)
	}
	if sizeWords < wire.MinSizeWords || sizeWords > wire.MaxSizeWords {
		return fmt.Errorf("init: size %d out of range [%d,%d]: %w", sizeWords, wire.MinSizeWords, wire.MaxSizeWords, wire.ErrInvalidArgument)
	}
	d.size = sizeWords
	d.mode = wire.ModeInit
	return nil
}

// Map is the MAP request of spec.md §6. It requires mode=INIT, a zero
// offset (implicit: this API has no offset parameter, matching the
// teacher's single-region mmap) and a length of exactly size*word
// bytes. Per spec.md §9's open question, a descriptor that already has
// a mapping silently discards a freshly allocated candidate region and
// returns success — this is the observed behavior, not a resolved
// design choice.
func (d *Descriptor) Map(lengthBytes uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.mode != wire.ModeInit {
		return fmt.Errorf("map: descriptor not in init: %w", wire.ErrInvalidArgument)
	}
	want := d.size * wire.WordSize
	if lengthBytes != want {
		return fmt.Errorf("map: length %d != size*word %d: %w", lengthBytes, want, wire.ErrInvalidArgument)
	}

	candidate, err := area.New(d.size)
	if err != nil {
		return fmt.Errorf("map: %w: %v", wire.ErrNoMemory, err)
	}
	if d.mapped {
		// Already mapped: discard the candidate and return success,
		// per spec.md §9.
		_ = candidate.Close()
		return nil
	}
	d.area = candidate
	d.mapped = true
	return nil
}

// Enable is the ENABLE request of spec.md §6 / §4.1: attaches task as
// owner, publishes mode and buffer pointers, and acquires one
// refcount.
func (d *Descriptor) Enable(task *Task, mode wire.Mode) error {
	if mode != wire.ModeTracePC && mode != wire.ModeTraceCmp {
		return fmt.Errorf("enable: invalid mode %v: %w", mode, wire.ErrInvalidArgument)
	}
	return d.attach(task, mode, false, 0)
}

// RemoteEnable performs the attach half of the remote_enable contract
// of spec.md §4.1 / §4.3: same as Enable, but marks the descriptor
// remote and records remoteSize. Handle registration is the
// registry's responsibility (internal/registry.RemoteEnable), which
// calls this first and rolls back via Disable on failure.
func (d *Descriptor) RemoteEnable(task *Task, mode wire.Mode, remoteSizeWords uint64) error {
	if mode != wire.ModeTracePC && mode != wire.ModeTraceCmp {
		return fmt.Errorf("remote_enable: invalid mode %v: %w", mode, wire.ErrInvalidArgument)
	}
	return d.attach(task, mode, true, remoteSizeWords)
}

func (d *Descriptor) attach(task *Task, mode wire.Mode, remote bool, remoteSizeWords uint64) error {
	if task.Attached() {
		return fmt.Errorf("enable: task already attached: %w", wire.ErrBusy)
	}

	d.mu.Lock()
	if d.ownerTask != nil {
		d.mu.Unlock()
		return fmt.Errorf("enable: descriptor already attached: %w", wire.ErrBusy)
	}
	if d.mode != wire.ModeInit {
		d.mu.Unlock()
		return fmt.Errorf("enable: descriptor not in init: %w", wire.ErrInvalidArgument)
	}
	if d.area == nil {
		d.mu.Unlock()
		return fmt.Errorf("enable: no buffer mapped: %w", wire.ErrInvalidArgument)
	}

	d.ownerTask = task
	d.remote = remote
	d.remoteSize = remoteSizeWords
	d.mode = mode
	buf := d.area.Bytes()
	size := d.size
	seq := d.sequence.Load()
	d.refcount.Add(1)
	d.mu.Unlock()

	task.publish(d, buf, size, seq, mode)
	return nil
}

// Disable is the DISABLE request of spec.md §6 / §4.1: requires the
// caller to be the current owner, clears per-task state, resets
// descriptor fields, bumps sequence, and releases one refcount.
func (d *Descriptor) Disable(task *Task) error {
	d.mu.Lock()
	if d.ownerTask != task {
		d.mu.Unlock()
		return fmt.Errorf("disable: caller is not owner: %w", wire.ErrInvalidArgument)
	}
	d.resetLocked()
	d.mu.Unlock()

	task.clear()
	d.release()
	return nil
}

// resetLocked clears the attachment and remote state and bumps
// sequence, purging any registered handles. Caller holds d.mu.
func (d *Descriptor) resetLocked() {
	d.ownerTask = nil
	d.mode = wire.ModeInit
	wasRemote := d.remote
	d.remote = false
	d.remoteSize = 0
	d.sequence.Add(1)

	if wasRemote && d.purgeHandles != nil && len(d.handles) > 0 {
		handles := d.handles
		d.handles = nil
		purge := d.purgeHandles
		d.purgeHandles = nil
		// Called with d.mu held, matching spec.md §5's descriptor
		// lock -> registry lock ordering: the registry's purge
		// function takes only the registry lock.
		purge(handles)
	}
}

// release drops one refcount; on the final decrement the descriptor
// frees its area. Returns true if this call freed the descriptor.
func (d *Descriptor) release() bool {
	if d.refcount.Add(-1) != 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.area != nil {
		if err := d.area.Close(); err != nil {
			d.logger.WithOp("close").Warn("area close failed", "error", err)
		}
		d.area = nil
	}
	return true
}

// Close is the close operation of spec.md §4.5: releases the open
// refcount.
func (d *Descriptor) Close() {
	d.release()
}

// TaskExit is the task-exit teardown hook of spec.md §4.5. The
// runtime calls it whenever a task terminates; it is a package-level
// function, not a Descriptor method, because the runtime knows only
// the exiting task, not which descriptor (if any) it was feeding —
// exactly the back-reference task.desc exists to answer. A no-op if
// the task holds no attachment.
func TaskExit(task *Task) {
	d := task.desc
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.ownerTask != task {
		// Invariant violation (spec.md §7): log a warning and
		// continue, still tearing the attachment down so the
		// refcount it holds is released. The warning is logged on
		// every occurrence, not only the first.
		d.logger.WithOp("task exit").Warn("owner mismatch")
	}
	d.resetLocked()
	d.mu.Unlock()

	task.clear()
	d.release()
}

// RemoteSnapshot is the linearization-point snapshot remote_start
// takes of spec.md §4.3: while still (conceptually) holding the
// registry lock, it acquires one refcount on the descriptor and
// snapshots mode, remote_size, and sequence. ok is false if the
// descriptor is not currently remote (the registry should treat this
// like a missing handle and no-op).
func (d *Descriptor) RemoteSnapshot() (mode wire.Mode, remoteSizeWords, sequence uint64, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.remote {
		return 0, 0, 0, false
	}
	d.refcount.Add(1)
	return d.mode, d.remoteSize, d.sequence.Load(), true
}

// AttachRemote publishes buf/size/sequence/mode to task using the
// same publication pattern as Enable, completing the remote_start
// contract after RemoteSnapshot and scratch-buffer allocation.
func (d *Descriptor) AttachRemote(task *Task, buf []byte, sizeWords, sequence uint64, mode wire.Mode) {
	task.publish(d, buf, sizeWords, sequence, mode)
}

// ReleaseRefcount drops one refcount without going through Disable,
// for remote_start's allocation-failure rollback and remote_stop's
// matching release.
func (d *Descriptor) ReleaseRefcount() {
	d.release()
}

// DetachRemote clears task's attachment and returns the descriptor it
// was attached to (nil if it held no attachment), completing the
// detach half of remote_stop.
func DetachRemote(task *Task) *Descriptor {
	d := task.desc
	task.clear()
	return d
}

// Snapshot returns the task's currently published buffer, its
// declared capacity in words, and the sequence captured when it was
// attached. ok is false if the task is not currently attached.
func (t *Task) Snapshot() (buf []byte, sizeWords, sequence uint64, ok bool) {
	info := t.info.Load()
	if info == nil {
		return nil, 0, 0, false
	}
	return info.buf, info.size, info.sequence, true
}
