// Package area provides the shared-memory region a descriptor exposes
// to userspace. A real kcov implementation maps kernel-owned pages
// into the calling process; the VFS/mmap plumbing that does that is
// explicitly out of scope (spec.md §1). This package stands in for it
// with an anonymous mmap region of the same shape, so the descriptor
// and trace-sink code above it exercise the identical acquire/release
// discipline over a real page-backed buffer rather than a plain slice.
package area

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Area is a page-aligned, mmap-backed byte region. It is the "area"
// attribute of spec.md §3: a buffer simultaneously visible to the
// mapping process and writable from the facility side.
type Area struct {
	buf []byte
}

// New allocates an anonymous mmap region sized to hold sizeWords
// machine words, zero-filled, matching the layout MAP expects.
func New(sizeWords uint64) (*Area, error) {
	length := int(sizeWords * 8)
	if length <= 0 {
		return nil, fmt.Errorf("area: non-positive length")
	}
	buf, err := unix.Mmap(-1, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("area: mmap: %w", err)
	}
	return &Area{buf: buf}, nil
}

// Bytes returns the region's backing slice. Callers reading the count
// word or record bytes out of it must use wire's atomic accessors.
func (a *Area) Bytes() []byte {
	return a.buf
}

// Len returns the region's length in bytes.
func (a *Area) Len() int {
	return len(a.buf)
}

// Close unmaps the region. Safe to call on a nil Area.
func (a *Area) Close() error {
	if a == nil || a.buf == nil {
		return nil
	}
	// MADV_DONTNEED mirrors the teacher's discard-before-unmap
	// discipline for large mmap regions; best-effort.
	_ = unix.Madvise(a.buf, unix.MADV_DONTNEED)
	err := unix.Munmap(a.buf)
	a.buf = nil
	return err
}
