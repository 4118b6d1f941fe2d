package wire

import (
	"sync/atomic"
	"unsafe"
)

// CountPtr returns the address of the count word at the head of buf,
// the same unsafe.Pointer-over-a-byte-slice trick the teacher's
// per-queue hot path uses to read descriptor fields without a lock.
func CountPtr(buf []byte) *uint64 {
	return (*uint64)(unsafe.Pointer(&buf[0]))
}

// LoadCount reads the count word with acquire ordering.
func LoadCount(buf []byte) uint64 {
	return atomic.LoadUint64(CountPtr(buf))
}

// StoreCount publishes a new count word with release ordering.
func StoreCount(buf []byte, count uint64) {
	atomic.StoreUint64(CountPtr(buf), count)
}

// wordAt returns the address of the word-sized slot at the given word
// index, where word 0 is the count and index is already one-based past
// it (callers pass count+1 / i+1), so the byte offset is index*WordSize
// directly — adding CountSize on top would double-count the count word.
func wordAt(buf []byte, index uint64) *uint64 {
	off := index * WordSize
	return (*uint64)(unsafe.Pointer(&buf[off]))
}

// AppendPC writes pc at the next free one-word slot and publishes the
// advanced count, iff it fits within size words. Returns false (a
// silent capacity-exceeded drop) if it does not fit.
func AppendPC(buf []byte, sizeWords uint64, pc uint64) bool {
	count := LoadCount(buf)
	if count+1 > sizeWords-1 {
		return false
	}
	*wordAt(buf, count+1) = pc
	StoreCount(buf, count+1)
	return true
}

// CmpRecord is one decoded CMP entry.
type CmpRecord struct {
	Type uint64
	Arg1 uint64
	Arg2 uint64
	PC   uint64
}

// cmpFits reports whether one more CMP record fits in a buffer of
// sizeWords words already holding count records, using byte
// arithmetic throughout to avoid the overflow a naive word-count
// multiply risks for large counts.
func cmpFits(sizeWords, count uint64) bool {
	capacityBytes := sizeWords * WordSize
	neededBytes := CountSize + (count+1)*CmpEntrySize
	return neededBytes <= capacityBytes
}

// AppendCmp writes one CMP record at the next free slot and publishes
// the advanced count, iff the byte-arithmetic capacity check passes.
func AppendCmp(buf []byte, sizeWords uint64, rec CmpRecord) bool {
	count := LoadCount(buf)
	if !cmpFits(sizeWords, count) {
		return false
	}
	base := CountSize + count*CmpEntrySize
	*(*uint64)(unsafe.Pointer(&buf[base])) = rec.Type
	*(*uint64)(unsafe.Pointer(&buf[base+WordSize])) = rec.Arg1
	*(*uint64)(unsafe.Pointer(&buf[base+2*WordSize])) = rec.Arg2
	*(*uint64)(unsafe.Pointer(&buf[base+3*WordSize])) = rec.PC
	StoreCount(buf, count+1)
	return true
}

// PCRecords returns the recorded PC values currently in a PC buffer
// (as many as its count word says), for tests and for userspace-side
// reads.
func PCRecords(buf []byte) []uint64 {
	count := LoadCount(buf)
	out := make([]uint64, count)
	for i := uint64(0); i < count; i++ {
		out[i] = *wordAt(buf, i+1)
	}
	return out
}

// CmpRecords returns the recorded CMP entries currently in a CMP
// buffer (as many as its count word says).
func CmpRecords(buf []byte) []CmpRecord {
	count := LoadCount(buf)
	out := make([]CmpRecord, count)
	for i := uint64(0); i < count; i++ {
		base := CountSize + i*CmpEntrySize
		out[i] = CmpRecord{
			Type: *(*uint64)(unsafe.Pointer(&buf[base])),
			Arg1: *(*uint64)(unsafe.Pointer(&buf[base+WordSize])),
			Arg2: *(*uint64)(unsafe.Pointer(&buf[base+2*WordSize])),
			PC:   *(*uint64)(unsafe.Pointer(&buf[base+3*WordSize])),
		}
	}
	return out
}

// MergeCopy copies as many complete source records as fit into dst's
// remaining capacity and returns the number of records copied. mode
// selects the entry size (PC: one word, CMP: CmpEntrySize). Both
// buffers use the count-then-records layout; the count words are
// handled by the caller (Descriptor.Merge), not here.
func MergeCopy(mode Mode, dst []byte, dstCount uint64, sizeWords uint64, src []byte, srcCount uint64) uint64 {
	var entrySize uint64
	if mode == ModeTracePC {
		entrySize = WordSize
	} else {
		entrySize = CmpEntrySize
	}

	capacityBytes := sizeWords*WordSize - CountSize
	usedBytes := dstCount * entrySize
	if usedBytes > capacityBytes {
		// Destination count already exceeds nominal capacity: a
		// corrupted shared buffer written by userspace. Defensive
		// no-op per the merge contract.
		return 0
	}
	freeBytes := capacityBytes - usedBytes
	wantBytes := srcCount * entrySize
	moveBytes := wantBytes
	if moveBytes > freeBytes {
		moveBytes = freeBytes
	}
	moveBytes -= moveBytes % entrySize

	srcBase := uint64(CountSize)
	dstBase := CountSize + usedBytes
	copy(dst[dstBase:dstBase+moveBytes], src[srcBase:srcBase+moveBytes])
	return moveBytes / entrySize
}
