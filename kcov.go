// Package kcov implements the control-plane API of a kernel
// code-coverage collection facility: a per-session descriptor state
// machine, trace sinks instrumented code calls into, and a
// remote-collection registry that attributes coverage to background
// executors. See spec.md for the full specification this package
// implements.
package kcov

import (
	"errors"

	"github.com/kbarlow/kcov/internal/descriptor"
	"github.com/kbarlow/kcov/internal/logging"
	"github.com/kbarlow/kcov/internal/registry"
	"github.com/kbarlow/kcov/internal/wire"
)

// Facility is the process-wide object a caller creates once: it owns
// the remote-collection registry (spec.md §4.3) and the stats every
// session reports into. Grounded on backend.go's CreateAndServe
// orchestration style, generalized from a single-device entry point
// into a long-lived object because this facility, unlike a ublk
// device, serves many independent sessions concurrently.
type Facility struct {
	registry *registry.Registry
	logger   *logging.Logger
	stats    *Stats
}

// New creates a Facility. A nil logger uses the package default.
func New(logger *logging.Logger) *Facility {
	if logger == nil {
		logger = logging.Default()
	}
	return &Facility{
		registry: registry.New(),
		logger:   logger,
		stats:    &Stats{},
	}
}

// Stats returns the facility's running counters.
func (f *Facility) Stats() *Stats {
	return f.stats
}

// Session is a single coverage descriptor plus the task slot its
// owner attaches through. It is the Go-API equivalent of the file
// descriptor a VFS open() would hand back (spec.md §1's externalized
// control surface), minus the ioctl dispatch: callers drive it
// directly through Init/Map/Enable/RemoteEnable/Disable/Close.
type Session struct {
	facility *Facility
	desc     *descriptor.Descriptor
	owner    *descriptor.Task
}

// Open is the "open" operation of spec.md §4.5: a new descriptor in
// DISABLED mode with refcount 1.
func (f *Facility) Open() *Session {
	return &Session{
		facility: f,
		desc:     descriptor.New(f.logger),
		owner:    &descriptor.Task{},
	}
}

// Init is the INIT_TRACE request of spec.md §6.
func (s *Session) Init(sizeWords uint64) error {
	if err := s.desc.Init(sizeWords); err != nil {
		return wrapControlError("INIT_TRACE", err)
	}
	return nil
}

// Map is the MAP request of spec.md §6.
func (s *Session) Map(lengthBytes uint64) error {
	if err := s.desc.Map(lengthBytes); err != nil {
		return wrapControlError("MAP", err)
	}
	return nil
}

// Buffer exposes the session's mapped shared buffer, standing in for
// the mmap a real VFS layer would hand userspace over the same file
// descriptor.
func (s *Session) Buffer() []byte {
	return s.desc.Buffer()
}

// Enable is the ENABLE request of spec.md §6: attaches the session's
// own owner task as the feeding task.
func (s *Session) Enable(mode wire.Mode) error {
	if err := s.desc.Enable(s.owner, mode); err != nil {
		return wrapControlError("ENABLE", err)
	}
	s.facility.stats.enables.Add(1)
	return nil
}

// RemoteEnable is the REMOTE_ENABLE request of spec.md §6: as Enable,
// plus registering handles against this session in the facility's
// registry.
func (s *Session) RemoteEnable(mode wire.Mode, remoteSizeWords uint64, handles []uint64) error {
	if err := s.facility.registry.RemoteEnable(s.desc, s.owner, mode, remoteSizeWords, handles); err != nil {
		var dup *registry.DuplicateHandleError
		if errors.As(err, &dup) {
			return NewHandleError("REMOTE_ENABLE", dup.Handle, CodeExists, err)
		}
		return wrapControlError("REMOTE_ENABLE", err)
	}
	s.facility.stats.enables.Add(1)
	s.facility.stats.handlesRegistered.Add(uint64(len(handles)))
	return nil
}

// Disable is the DISABLE request of spec.md §6.
func (s *Session) Disable() error {
	if err := s.desc.Disable(s.owner); err != nil {
		return wrapControlError("DISABLE", err)
	}
	s.facility.stats.disables.Add(1)
	return nil
}

// Close is the close operation of spec.md §4.5, releasing the open
// refcount. The safety-net registry scan of spec.md §4.5 runs here
// too, purging any handles the normal Disable path missed.
func (s *Session) Close() {
	s.facility.registry.PurgeDescriptor(s.desc)
	s.desc.Close()
}

// Mode returns the session's current descriptor-level state.
func (s *Session) Mode() wire.Mode {
	return s.desc.Mode()
}

// Refcount returns the session's current reference count, for tests
// and diagnostics.
func (s *Session) Refcount() int32 {
	return s.desc.Refcount()
}

// Exit runs the task-exit teardown hook of spec.md §4.5 as if the
// session's owner task had terminated. A real kernel calls this from
// its own task-exit path; this facility exposes it directly because
// Go has no hookable goroutine-exit event (see DESIGN.md's Open
// Question resolution).
func (s *Session) Exit() {
	descriptor.TaskExit(s.owner)
}

// Task exposes the session's owner task, for instrumented code
// standing in as "the calling task" against this session (spec.md
// §4.2's trace sinks take an explicit *descriptor.Task — see
// DESIGN.md).
func (s *Session) Task() *descriptor.Task {
	return s.owner
}

// RemoteStart is the remote_start contract of spec.md §4.3, called by
// a background executor's own task to begin a remote collection
// window against handle.
func (f *Facility) RemoteStart(executor *descriptor.Task, handle uint64) {
	f.registry.RemoteStart(executor, handle)
	f.stats.remoteStarts.Add(1)
}

// RemoteStop is the matching release of spec.md §4.3.
func (f *Facility) RemoteStop(executor *descriptor.Task) {
	merged, srcRecords := f.registry.RemoteStop(executor)
	f.stats.remoteStops.Add(1)
	f.stats.recordRemoteStop(merged, srcRecords)
}

func wrapControlError(op string, err error) error {
	if err == nil {
		return nil
	}
	return WrapError(op, err)
}
