package descriptor

import (
	"github.com/kbarlow/kcov/internal/barrier"
	"github.com/kbarlow/kcov/internal/wire"
)

// TracePC is the PC trace sink of spec.md §4.2. rawPC is the caller's
// return address; aslrBase is the runtime's relocation base (zero if
// address randomization is disabled or not in use) — obtaining it is
// external plumbing per spec.md §1 and §9, this function only
// subtracts whatever the caller supplies.
func TracePC(task *Task, inTaskContext bool, rawPC, aslrBase uint64) {
	if !inTaskContext {
		return
	}
	// Explicit fence at the interrupt-context predicate check, per
	// spec.md §9's open question and DESIGN.md's resolution.
	barrier.Fence()

	if task.Mode() != wire.ModeTracePC {
		return
	}
	info := task.info.Load()
	if info == nil {
		return
	}
	wire.AppendPC(info.buf, info.size, rawPC-aslrBase)
}

// traceCmp is the shared body of the CMP sink family of spec.md §4.2.
func traceCmp(task *Task, inTaskContext bool, widthBytes uint8, isConst bool, arg1, arg2, rawPC, aslrBase uint64) {
	if !inTaskContext {
		return
	}
	barrier.Fence()

	if task.Mode() != wire.ModeTraceCmp {
		return
	}
	info := task.info.Load()
	if info == nil {
		return
	}
	sizeEnc, ok := wire.WidthToCMPSize(widthBytes)
	if !ok {
		return
	}
	typ := sizeEnc
	if isConst {
		typ |= wire.CMPConst
	}
	wire.AppendCmp(info.buf, info.size, wire.CmpRecord{
		Type: typ,
		Arg1: arg1,
		Arg2: arg2,
		PC:   rawPC - aslrBase,
	})
}

// TraceCmp1/2/4/8 record an 8/16/32/64-bit comparison; TraceConstCmp1/
// 2/4/8 record the same with the constant-operand flag set, mirroring
// the named-by-width sink family compiler instrumentation emits calls
// to (__sanitizer_cov_trace_cmp1 and friends in the original).

func TraceCmp1(task *Task, inTaskContext bool, arg1, arg2 uint8, rawPC, aslrBase uint64) {
	traceCmp(task, inTaskContext, 1, false, uint64(arg1), uint64(arg2), rawPC, aslrBase)
}

func TraceCmp2(task *Task, inTaskContext bool, arg1, arg2 uint16, rawPC, aslrBase uint64) {
	traceCmp(task, inTaskContext, 2, false, uint64(arg1), uint64(arg2), rawPC, aslrBase)
}

func TraceCmp4(task *Task, inTaskContext bool, arg1, arg2 uint32, rawPC, aslrBase uint64) {
	traceCmp(task, inTaskContext, 4, false, uint64(arg1), uint64(arg2), rawPC, aslrBase)
}

func TraceCmp8(task *Task, inTaskContext bool, arg1, arg2 uint64, rawPC, aslrBase uint64) {
	traceCmp(task, inTaskContext, 8, false, arg1, arg2, rawPC, aslrBase)
}

func TraceConstCmp1(task *Task, inTaskContext bool, arg1, arg2 uint8, rawPC, aslrBase uint64) {
	traceCmp(task, inTaskContext, 1, true, uint64(arg1), uint64(arg2), rawPC, aslrBase)
}

func TraceConstCmp2(task *Task, inTaskContext bool, arg1, arg2 uint16, rawPC, aslrBase uint64) {
	traceCmp(task, inTaskContext, 2, true, uint64(arg1), uint64(arg2), rawPC, aslrBase)
}

func TraceConstCmp4(task *Task, inTaskContext bool, arg1, arg2 uint32, rawPC, aslrBase uint64) {
	traceCmp(task, inTaskContext, 4, true, uint64(arg1), uint64(arg2), rawPC, aslrBase)
}

func TraceConstCmp8(task *Task, inTaskContext bool, arg1, arg2 uint64, rawPC, aslrBase uint64) {
	traceCmp(task, inTaskContext, 8, true, arg1, arg2, rawPC, aslrBase)
}

// TraceSwitch is the switch sink of spec.md §4.2: given a match value
// and a vector of case labels of a declared element width (in bits),
// it emits one constant-comparison record per case. Widths outside
// {8,16,32,64} bits are silently ignored entirely.
func TraceSwitch(task *Task, inTaskContext bool, match uint64, widthBits uint8, cases []uint64, rawPC, aslrBase uint64) {
	if !inTaskContext {
		return
	}
	if widthBits%8 != 0 {
		return
	}
	widthBytes := widthBits / 8
	valid := false
	for _, w := range wire.SwitchWidths {
		if w == widthBytes {
			valid = true
			break
		}
	}
	if !valid {
		return
	}
	for _, c := range cases {
		traceCmp(task, true, widthBytes, true, match, c, rawPC, aslrBase)
	}
}
