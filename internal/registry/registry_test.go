package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kbarlow/kcov/internal/descriptor"
	"github.com/kbarlow/kcov/internal/wire"
)

func openEnabled(t *testing.T, sizeWords uint64) (*descriptor.Descriptor, *descriptor.Task) {
	t.Helper()
	d := descriptor.New(nil)
	require.NoError(t, d.Init(sizeWords))
	require.NoError(t, d.Map(sizeWords*wire.WordSize))
	return d, &descriptor.Task{}
}

// S4: remote merge happy path.
func TestRemoteStartStopMergesRecords(t *testing.T) {
	r := New()
	d, owner := openEnabled(t, 16)
	require.NoError(t, r.RemoteEnable(d, owner, wire.ModeTracePC, 8, []uint64{42}))

	executor := &descriptor.Task{}
	r.RemoteStart(executor, 42)
	require.True(t, executor.Attached())

	buf, size, _, ok := executor.Snapshot()
	require.True(t, ok)
	require.True(t, wire.AppendPC(buf, size, 0x1001))
	require.True(t, wire.AppendPC(buf, size, 0x1002))
	require.True(t, wire.AppendPC(buf, size, 0x1003))

	r.RemoteStop(executor)
	require.False(t, executor.Attached())

	records := wire.PCRecords(d.Buffer())
	require.Equal(t, []uint64{0x1001, 0x1002, 0x1003}, records)
}

// S5: a DISABLE between remote_start and remote_stop invalidates the
// window; the destination buffer is unaffected and no refcount leaks.
func TestDisableBetweenStartAndStopInvalidatesWindow(t *testing.T) {
	r := New()
	d, owner := openEnabled(t, 16)
	require.NoError(t, r.RemoteEnable(d, owner, wire.ModeTracePC, 8, []uint64{7}))

	executor := &descriptor.Task{}
	r.RemoteStart(executor, 7)
	buf, size, _, ok := executor.Snapshot()
	require.True(t, ok)
	require.True(t, wire.AppendPC(buf, size, 0xdead))

	require.NoError(t, d.Disable(owner))
	// The open reference plus the in-flight window's reference.
	require.EqualValues(t, 2, d.Refcount())

	r.RemoteStop(executor)
	require.False(t, executor.Attached())
	require.EqualValues(t, 0, wire.LoadCount(d.Buffer()))
	require.EqualValues(t, 1, d.Refcount())
}

// S6: duplicate handles fail exists and leave the registry unchanged;
// a later non-conflicting registration succeeds.
func TestRemoteEnableDuplicateHandlesFailsExists(t *testing.T) {
	r := New()
	d, owner := openEnabled(t, 16)

	err := r.RemoteEnable(d, owner, wire.ModeTracePC, 8, []uint64{1, 1})
	require.ErrorIs(t, err, wire.ErrExists)
	require.Equal(t, 0, r.HandleCount())
	require.Equal(t, wire.ModeInit, d.Mode())

	d2, _ := openEnabled(t, 16)
	require.NoError(t, r.RemoteEnable(d2, &descriptor.Task{}, wire.ModeTracePC, 8, []uint64{1}))
	require.Equal(t, 1, r.HandleCount())
}

func TestRemoteEnableOverlapAcrossDescriptorsFailsExists(t *testing.T) {
	r := New()
	d1, owner1 := openEnabled(t, 16)
	d2, owner2 := openEnabled(t, 16)

	require.NoError(t, r.RemoteEnable(d1, owner1, wire.ModeTracePC, 8, []uint64{5}))
	err := r.RemoteEnable(d2, owner2, wire.ModeTracePC, 8, []uint64{5, 6})
	require.ErrorIs(t, err, wire.ErrExists)
	require.Equal(t, 1, r.HandleCount())
	require.Equal(t, wire.ModeInit, d2.Mode())
}

func TestRemoteStartUnknownHandleNoops(t *testing.T) {
	r := New()
	executor := &descriptor.Task{}
	r.RemoteStart(executor, 999)
	require.False(t, executor.Attached())
}

func TestRemoteStartAlreadyAttachedNoops(t *testing.T) {
	r := New()
	d, owner := openEnabled(t, 16)
	require.NoError(t, r.RemoteEnable(d, owner, wire.ModeTracePC, 8, []uint64{1}))

	executor := &descriptor.Task{}
	r.RemoteStart(executor, 1)
	require.True(t, executor.Attached())
	firstBuf, _, _, _ := executor.Snapshot()

	// Already attached: a second start for a different handle no-ops,
	// leaving the first window's attachment untouched.
	d2, owner2 := openEnabled(t, 16)
	require.NoError(t, r.RemoteEnable(d2, owner2, wire.ModeTracePC, 8, []uint64{2}))
	r.RemoteStart(executor, 2)

	buf, _, _, ok := executor.Snapshot()
	require.True(t, ok)
	require.Same(t, &firstBuf[0], &buf[0])
}

// Property 6: remote merge bound — post-merge count is min(d+s, capacity).
func TestRemoteMergeRespectsCapacityBound(t *testing.T) {
	r := New()
	d, owner := openEnabled(t, 4) // capacity: 3 PC records
	require.NoError(t, r.RemoteEnable(d, owner, wire.ModeTracePC, 8, []uint64{1}))

	dst := d.Buffer()
	require.True(t, wire.AppendPC(dst, 4, 0x1))

	executor := &descriptor.Task{}
	r.RemoteStart(executor, 1)
	buf, size, _, _ := executor.Snapshot()
	for i := uint64(0); i < 8; i++ {
		wire.AppendPC(buf, size, 0x100+i)
	}
	r.RemoteStop(executor)

	require.EqualValues(t, 3, wire.LoadCount(d.Buffer()))
}

// Property 8 (registry half): scratch buffers round-trip through the
// free-list instead of leaking a fresh allocation every window.
func TestScratchBufferReusedFromFreeList(t *testing.T) {
	r := New()
	d, owner := openEnabled(t, 16)
	require.NoError(t, r.RemoteEnable(d, owner, wire.ModeTracePC, 8, []uint64{1}))

	executor := &descriptor.Task{}
	r.RemoteStart(executor, 1)
	buf1, _, _, _ := executor.Snapshot()
	r.RemoteStop(executor)

	require.Equal(t, 1, r.FreeBucketCount())

	require.NoError(t, d.Disable(owner))
	require.NoError(t, r.RemoteEnable(d, owner, wire.ModeTracePC, 8, []uint64{2}))

	executor2 := &descriptor.Task{}
	r.RemoteStart(executor2, 2)
	buf2, _, _, _ := executor2.Snapshot()
	require.Same(t, &buf1[0], &buf2[0])
	r.RemoteStop(executor2)
}
