// Package barrier provides the explicit memory fence spec.md §9 calls
// for: the source's interrupt-context check is deliberately coarse,
// and the acquire/release pairing on the per-task mode word is
// asserted to hold without it on most platforms but not guaranteed on
// all of them. Fence exposes that guarantee as a callable primitive
// instead of leaving it implicit in the choice of atomic instruction.
package barrier

// Fence issues a full memory barrier: no load or store on either side
// of the call may be reordered across it. Called at the
// interrupt-context predicate check in the trace sinks and around the
// mode-word publish/clear on enable/disable, matching the two points
// the teacher's io_uring submission path fences around (SQE writes
// before tail update, tail update before doorbell read).
func Fence() {
	fence()
}
