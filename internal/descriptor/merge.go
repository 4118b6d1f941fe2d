package descriptor

import "github.com/kbarlow/kcov/internal/wire"

// Merge folds a scratch buffer's records into the descriptor's shared
// buffer, per spec.md §4.4. It must be called with snapshotSequence
// equal to the sequence observed when the remote window started;
// Merge itself re-checks that against the live sequence under the
// descriptor lock, which is the anti-race point with a concurrent
// Disable (spec.md §4.3's remote_stop contract). Returns true if the
// merge was applied, false if the scratch records were discarded
// instead: silently when the window had been invalidated, with a
// logged warning when the descriptor's mode is not a trace mode or its
// shared buffer's count exceeds the buffer's capacity.
func (d *Descriptor) Merge(snapshotSequence uint64, src []byte, srcCount uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.remote || d.sequence.Load() != snapshotSequence {
		return false
	}
	if d.mode != wire.ModeTracePC && d.mode != wire.ModeTraceCmp {
		d.logger.WithOp("merge").Warn("unknown mode", "mode", d.mode)
		return false
	}

	dstCount := wire.LoadCount(d.area.Bytes())
	capacityRecords := d.capacityRecordsLocked()
	if dstCount > capacityRecords {
		// Corrupted shared buffer written by userspace: defensive
		// no-op per the merge contract.
		d.logger.WithOp("merge").Warn("buffer count exceeds capacity", "count", dstCount, "capacity", capacityRecords)
		return false
	}

	moved := wire.MergeCopy(d.mode, d.area.Bytes(), dstCount, d.size, src, srcCount)
	wire.StoreCount(d.area.Bytes(), dstCount+moved)
	return true
}

// capacityRecordsLocked returns the destination buffer's nominal
// record capacity for the descriptor's current mode. Caller holds
// d.mu.
func (d *Descriptor) capacityRecordsLocked() uint64 {
	capacityBytes := d.size*wire.WordSize - wire.CountSize
	if d.mode == wire.ModeTracePC {
		return capacityBytes / wire.WordSize
	}
	return capacityBytes / wire.CmpEntrySize
}
