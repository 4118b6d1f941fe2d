//go:build !linux || !cgo

package barrier

import "sync/atomic"

// fenceWord backs the portable fallback fence: an atomic add is a
// full sequentially-consistent read-modify-write in Go's memory
// model, the strongest ordering primitive available without cgo. It
// is weaker than the linux+cgo MFENCE in that it says nothing about
// non-atomic loads and stores the hardware itself might still reorder
// on exotic platforms; see DESIGN.md's open-question note.
var fenceWord uint64

func fence() {
	atomic.AddUint64(&fenceWord, 1)
}
