package descriptor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kbarlow/kcov/internal/wire"
)

func setupPC(t *testing.T, sizeWords uint64) (*Descriptor, *Task) {
	t.Helper()
	d := New(nil)
	require.NoError(t, d.Init(sizeWords))
	require.NoError(t, d.Map(sizeWords*wire.WordSize))
	task := &Task{}
	require.NoError(t, d.Enable(task, wire.ModeTracePC))
	return d, task
}

// S1: PC happy path.
func TestTracePCHappyPath(t *testing.T) {
	d, task := setupPC(t, 4)
	TracePC(task, true, 0x1000, 0)
	TracePC(task, true, 0x2000, 0)

	recs := wire.PCRecords(d.Buffer())
	require.Equal(t, []uint64{0x1000, 0x2000}, recs)
}

// S2 / property 3: buffer bound.
func TestTracePCOverflowDropsAtSizeMinusOne(t *testing.T) {
	d, task := setupPC(t, 2)
	for i := 0; i < 5; i++ {
		TracePC(task, true, uint64(i+1), 0)
	}
	recs := wire.PCRecords(d.Buffer())
	require.Equal(t, []uint64{1}, recs)
}

func TestTracePCAppliesASLRBase(t *testing.T) {
	d, task := setupPC(t, 4)
	TracePC(task, true, 0x401000, 0x400000)
	recs := wire.PCRecords(d.Buffer())
	require.Equal(t, []uint64{0x1000}, recs)
}

// Property 5: interrupt-context isolation.
func TestTracePCInterruptContextNoop(t *testing.T) {
	d, task := setupPC(t, 4)
	TracePC(task, false, 0x1000, 0)
	require.Empty(t, wire.PCRecords(d.Buffer()))
}

func TestTracePCWrongModeNoop(t *testing.T) {
	d := New(nil)
	require.NoError(t, d.Init(4))
	require.NoError(t, d.Map(32))
	task := &Task{}
	require.NoError(t, d.Enable(task, wire.ModeTraceCmp))

	TracePC(task, true, 0x1000, 0)
	require.Empty(t, wire.PCRecords(d.Buffer()))
}

func TestTracePCAfterDisableNoop(t *testing.T) {
	d, task := setupPC(t, 4)
	require.NoError(t, d.Disable(task))
	TracePC(task, true, 0x1000, 0)
	require.Empty(t, wire.PCRecords(d.Buffer()))
}

// Property 4: CMP layout.
func TestTraceCmpLayout(t *testing.T) {
	sizeWords := uint64(1 + 4*2)
	d := New(nil)
	require.NoError(t, d.Init(sizeWords))
	require.NoError(t, d.Map(sizeWords*wire.WordSize))
	task := &Task{}
	require.NoError(t, d.Enable(task, wire.ModeTraceCmp))

	TraceCmp4(task, true, 10, 20, 0x1000, 0)
	TraceConstCmp8(task, true, 30, 40, 0x2000, 0)

	recs := wire.CmpRecords(d.Buffer())
	require.Len(t, recs, 2)
	require.Equal(t, wire.CMPSize(2), recs[0].Type)
	require.Equal(t, uint64(10), recs[0].Arg1)
	require.Equal(t, uint64(20), recs[0].Arg2)
	require.Equal(t, uint64(0x1000), recs[0].PC)

	require.Equal(t, wire.CMPSize(3)|wire.CMPConst, recs[1].Type)
	require.Equal(t, uint64(30), recs[1].Arg1)
}

func TestTraceSwitchEmitsOneRecordPerCase(t *testing.T) {
	sizeWords := uint64(1 + 4*3)
	d := New(nil)
	require.NoError(t, d.Init(sizeWords))
	require.NoError(t, d.Map(sizeWords*wire.WordSize))
	task := &Task{}
	require.NoError(t, d.Enable(task, wire.ModeTraceCmp))

	TraceSwitch(task, true, 7, 32, []uint64{1, 2, 3}, 0x4000, 0)

	recs := wire.CmpRecords(d.Buffer())
	require.Len(t, recs, 3)
	for i, r := range recs {
		require.Equal(t, uint64(7), r.Arg1)
		require.Equal(t, uint64(i+1), r.Arg2)
		require.Equal(t, wire.CMPSize(2)|wire.CMPConst, r.Type)
	}
}

func TestTraceSwitchInvalidWidthNoop(t *testing.T) {
	sizeWords := uint64(1 + 4*3)
	d := New(nil)
	require.NoError(t, d.Init(sizeWords))
	require.NoError(t, d.Map(sizeWords*wire.WordSize))
	task := &Task{}
	require.NoError(t, d.Enable(task, wire.ModeTraceCmp))

	TraceSwitch(task, true, 7, 24, []uint64{1, 2, 3}, 0x4000, 0)
	require.Empty(t, wire.CmpRecords(d.Buffer()))
}
