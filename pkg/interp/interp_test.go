package interp

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func TestStateIsEmptyBeforeMinBufferedReached(t *testing.T) {
	it := New(20)
	it.Push(Sample{Pos: mgl32.Vec3{0, 0, 0}})
	it.Push(Sample{Pos: mgl32.Vec3{1, 0, 0}})

	_, ok := it.State()
	require.False(t, ok)
}

func TestThreeSnapshotsBlendHalfwayAtHalfPeriod(t *testing.T) {
	it := New(20) // SR=20Hz, period=0.05s
	it.Push(Sample{Tick: 10, Pos: mgl32.Vec3{0, 0, 0}})
	it.Push(Sample{Tick: 11, Pos: mgl32.Vec3{1, 0, 0}})
	it.Push(Sample{Tick: 12, Pos: mgl32.Vec3{2, 0, 0}})

	it.Advance(0.025) // half of 1/20s
	state, ok := it.State()
	require.True(t, ok)
	require.InDelta(t, 0.5, state.Pos[0], 1e-4)
}

func TestTailConsumedWhenPeriodElapses(t *testing.T) {
	it := New(20)
	it.Push(Sample{Tick: 10, Pos: mgl32.Vec3{0, 0, 0}})
	it.Push(Sample{Tick: 11, Pos: mgl32.Vec3{1, 0, 0}})
	it.Push(Sample{Tick: 12, Pos: mgl32.Vec3{2, 0, 0}})

	it.Advance(0.05) // exactly one period: tail (tick 10) consumed
	state, ok := it.State()
	require.True(t, ok)
	require.Equal(t, uint64(11), state.Tick)
	require.InDelta(t, 1.0, state.Pos[0], 1e-4)
}

func TestActionFlagsAndRollingAreStepWiseNotBlended(t *testing.T) {
	it := New(20)
	it.Push(Sample{ActionFlags: 1, Rolling: true})
	it.Push(Sample{ActionFlags: 2, Rolling: false})
	it.Push(Sample{ActionFlags: 3, Rolling: false})

	state, ok := it.State()
	require.True(t, ok)
	require.Equal(t, uint32(1), state.ActionFlags)
	require.True(t, state.Rolling)
}

func TestPushBeyondCapacityDropsOldest(t *testing.T) {
	it := New(20)
	for i := 0; i < Capacity+10; i++ {
		it.Push(Sample{Tick: uint64(i)})
	}
	require.Equal(t, Capacity, it.Buffered())
}
