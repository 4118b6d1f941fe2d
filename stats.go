package kcov

import "sync/atomic"

// Stats tracks facility-wide coverage-collection counters, adapted
// from the teacher's metrics.go Metrics/Snapshot pattern: atomic
// counters updated on the control and remote-collection paths, read
// out through an immutable Snapshot so a consumer never observes a
// torn read across fields.
type Stats struct {
	enables            atomic.Uint64
	disables           atomic.Uint64
	remoteStarts       atomic.Uint64
	remoteStops        atomic.Uint64
	merges             atomic.Uint64
	invalidatedWindows atomic.Uint64
	recordsMerged      atomic.Uint64
	handlesRegistered  atomic.Uint64
}

// recordRemoteStop updates the merge counters from one RemoteStop
// call's result (spec.md §8 property 6: merge bound; property 7:
// sequence invalidation).
func (s *Stats) recordRemoteStop(merged bool, srcRecords uint64) {
	if merged {
		s.merges.Add(1)
		s.recordsMerged.Add(srcRecords)
	} else {
		s.invalidatedWindows.Add(1)
	}
}

// Snapshot is a point-in-time copy of Stats's counters.
type Snapshot struct {
	Enables            uint64
	Disables           uint64
	RemoteStarts       uint64
	RemoteStops        uint64
	Merges             uint64
	InvalidatedWindows uint64
	RecordsMerged      uint64
	HandlesRegistered  uint64
}

// Snapshot reads all counters into a Snapshot.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Enables:            s.enables.Load(),
		Disables:           s.disables.Load(),
		RemoteStarts:       s.remoteStarts.Load(),
		RemoteStops:        s.remoteStops.Load(),
		Merges:             s.merges.Load(),
		InvalidatedWindows: s.invalidatedWindows.Load(),
		RecordsMerged:      s.recordsMerged.Load(),
		HandlesRegistered:  s.handlesRegistered.Load(),
	}
}
