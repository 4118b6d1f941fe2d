package descriptor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kbarlow/kcov/internal/wire"
)

func TestInitRequiresDisabled(t *testing.T) {
	d := New(nil)
	require.NoError(t, d.Init(4))
	err := d.Init(4)
	require.ErrorIs(t, err, wire.ErrBusy)
}

func TestInitRejectsOutOfRangeSize(t *testing.T) {
	d := New(nil)
	require.ErrorIs(t, d.Init(1), wire.ErrInvalidArgument)

	d2 := New(nil)
	require.ErrorIs(t, d2.Init(wire.MaxSizeWords+1), wire.ErrInvalidArgument)
}

func TestMapRequiresInit(t *testing.T) {
	d := New(nil)
	err := d.Map(32)
	require.ErrorIs(t, err, wire.ErrInvalidArgument)
}

func TestMapExactLength(t *testing.T) {
	d := New(nil)
	require.NoError(t, d.Init(4))
	require.ErrorIs(t, d.Map(16), wire.ErrInvalidArgument)
	require.NoError(t, d.Map(32))
}

func TestMapSecondCallSucceedsAndDiscardsCandidate(t *testing.T) {
	d := New(nil)
	require.NoError(t, d.Init(4))
	require.NoError(t, d.Map(32))
	first := d.Buffer()
	require.NoError(t, d.Map(32))
	require.Same(t, &first[0], &d.Buffer()[0])
}

func TestEnableHappyPath(t *testing.T) {
	d := New(nil)
	require.NoError(t, d.Init(4))
	require.NoError(t, d.Map(32))

	task := &Task{}
	require.NoError(t, d.Enable(task, wire.ModeTracePC))
	require.Equal(t, wire.ModeTracePC, d.Mode())
	require.Equal(t, wire.ModeTracePC, task.Mode())
	require.EqualValues(t, 2, d.Refcount())
}

func TestEnableRequiresMappedBuffer(t *testing.T) {
	d := New(nil)
	require.NoError(t, d.Init(4))
	task := &Task{}
	require.ErrorIs(t, d.Enable(task, wire.ModeTracePC), wire.ErrInvalidArgument)
}

// Property 2: at-most-one owner.
func TestSecondEnableFromAnyTaskFailsBusy(t *testing.T) {
	d := New(nil)
	require.NoError(t, d.Init(4))
	require.NoError(t, d.Map(32))
	task1 := &Task{}
	task2 := &Task{}
	require.NoError(t, d.Enable(task1, wire.ModeTracePC))
	require.ErrorIs(t, d.Enable(task2, wire.ModeTracePC), wire.ErrBusy)
}

func TestSecondEnableFromSameTaskOnAnotherDescriptorFailsBusy(t *testing.T) {
	d1 := New(nil)
	require.NoError(t, d1.Init(4))
	require.NoError(t, d1.Map(32))
	d2 := New(nil)
	require.NoError(t, d2.Init(4))
	require.NoError(t, d2.Map(32))

	task := &Task{}
	require.NoError(t, d1.Enable(task, wire.ModeTracePC))
	require.ErrorIs(t, d2.Enable(task, wire.ModeTracePC), wire.ErrBusy)
}

// S3: owner mismatch.
func TestDisableByNonOwnerFails(t *testing.T) {
	d := New(nil)
	require.NoError(t, d.Init(4))
	require.NoError(t, d.Map(32))
	owner := &Task{}
	other := &Task{}
	require.NoError(t, d.Enable(owner, wire.ModeTracePC))

	err := d.Disable(other)
	require.ErrorIs(t, err, wire.ErrInvalidArgument)
	require.Equal(t, wire.ModeTracePC, d.Mode())
}

func TestDisableResetsAndBumpsSequence(t *testing.T) {
	d := New(nil)
	require.NoError(t, d.Init(4))
	require.NoError(t, d.Map(32))
	task := &Task{}
	require.NoError(t, d.Enable(task, wire.ModeTracePC))
	seqBefore := d.Sequence()

	require.NoError(t, d.Disable(task))
	require.Equal(t, wire.ModeInit, d.Mode())
	require.Equal(t, wire.ModeDisabled, task.Mode())
	require.False(t, task.Attached())
	require.Greater(t, d.Sequence(), seqBefore)
	require.EqualValues(t, 1, d.Refcount())
}

// Property 8 (partial): refcount closure across open/enable/disable/close.
func TestRefcountClosureOpenEnableDisableClose(t *testing.T) {
	d := New(nil)
	require.NoError(t, d.Init(4))
	require.NoError(t, d.Map(32))
	task := &Task{}
	require.NoError(t, d.Enable(task, wire.ModeTracePC))
	require.EqualValues(t, 2, d.Refcount())

	require.NoError(t, d.Disable(task))
	require.EqualValues(t, 1, d.Refcount())

	d.Close()
	require.EqualValues(t, 0, d.Refcount())
	require.Nil(t, d.Buffer())
}

func TestTaskExitTearsDownAttachment(t *testing.T) {
	d := New(nil)
	require.NoError(t, d.Init(4))
	require.NoError(t, d.Map(32))
	task := &Task{}
	require.NoError(t, d.Enable(task, wire.ModeTracePC))

	TaskExit(task)
	require.False(t, task.Attached())
	require.Equal(t, wire.ModeDisabled, task.Mode())
	require.EqualValues(t, 1, d.Refcount())
}

func TestTaskExitNoAttachmentIsNoop(t *testing.T) {
	task := &Task{}
	TaskExit(task) // must not panic
	require.False(t, task.Attached())
}

func TestCloseFreesOnFinalRelease(t *testing.T) {
	d := New(nil)
	require.NoError(t, d.Init(4))
	require.NoError(t, d.Map(32))
	buf := d.Buffer()
	require.NotNil(t, buf)
	d.Close()
	require.Nil(t, d.Buffer())
}

func TestErrorsIsUnwraps(t *testing.T) {
	d := New(nil)
	err := d.Init(0)
	require.True(t, errors.Is(err, wire.ErrInvalidArgument))
}
