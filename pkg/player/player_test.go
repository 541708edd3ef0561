package player

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"

	"github.com/leterax/voxel-arena/pkg/command"
	"github.com/leterax/voxel-arena/pkg/voxel"
)

func flatStore(t *testing.T, floorVoxelY int32) *voxel.Store {
	t.Helper()
	s := voxel.NewStore(4, 1.0)
	for cz := int32(0); cz < 4; cz++ {
		for cy := int32(0); cy < 4; cy++ {
			for cx := int32(0); cx < 4; cx++ {
				c := s.EnsureChunk(voxel.ChunkCoord{X: cx, Y: cy, Z: cz})
				for lx := 0; lx < voxel.ChunkEdge; lx++ {
					for lz := 0; lz < voxel.ChunkEdge; lz++ {
						for ly := 0; ly < voxel.ChunkEdge; ly++ {
							if cy*voxel.ChunkEdge+int32(ly) <= floorVoxelY {
								c.SetDensity(lx, ly, lz, voxel.MaxDensity)
							}
						}
					}
				}
			}
		}
	}
	return s
}

func TestUprightModeGravityPullsPlayerDown(t *testing.T) {
	s := flatStore(t, -100) // no floor nearby
	p := NewPlayer(0, "p1", mgl32.Vec3{0, 50, 0}, mgl32.Vec3{0, 0, -1})
	p.EnteringTicks = 0
	p.InAir = true

	startY := p.Pos[1]
	p.Step(s, command.Sample{Dt: 1.0 / 60})
	require.Less(t, p.Pos[1], startY)
}

func TestEnteringGracePeriodSuppressesCollisionResponse(t *testing.T) {
	s := flatStore(t, 0)
	floorSurfaceY := s.Grid.VoxelToWorldSpace(mgl32.Vec3{0, 0.5, 0})[1]

	p := NewPlayer(0, "p1", mgl32.Vec3{0, floorSurfaceY, 0}, mgl32.Vec3{0, 0, -1})
	require.True(t, p.isEntering())

	p.InAir = true // airborne, so the step keeps Vel instead of replacing it with input velocity
	p.Vel = mgl32.Vec3{0, -10, 0}
	p.Step(s, command.Sample{Dt: 1.0 / 60})

	require.Less(t, p.Pos[1], floorSurfaceY)
}

func TestRollingModeAccumulatesRollAngleWhileMoving(t *testing.T) {
	s := flatStore(t, 0)
	floorSurfaceY := s.Grid.VoxelToWorldSpace(mgl32.Vec3{0, 0.5, 0})[1]

	p := NewPlayer(0, "p1", mgl32.Vec3{0, floorSurfaceY + 1, 0}, mgl32.Vec3{0, 0, -1})
	p.EnteringTicks = 0
	p.Rolling = true

	for i := 0; i < 10; i++ {
		p.Step(s, command.Sample{ActionFlags: ActionForward, Dt: 1.0 / 60})
	}

	require.NotZero(t, p.RollAngle)
}

func TestToggleRollSwitchesModeAndResetsRollAngle(t *testing.T) {
	s := flatStore(t, 0)
	p := NewPlayer(0, "p1", mgl32.Vec3{0, 20, 0}, mgl32.Vec3{0, 0, -1})
	p.RollAngle = 1.5

	p.Step(s, command.Sample{Flags: FlagToggleRoll, Dt: 1.0 / 60})
	require.True(t, p.Rolling)
	require.Zero(t, p.RollAngle)
}

func TestTryShootRespectsCooldown(t *testing.T) {
	p := NewPlayer(0, "p1", mgl32.Vec3{}, mgl32.Vec3{0, 0, -1})
	p.ActionFlags = ActionShoot

	_, ok := p.TryShoot(mgl32.Vec3{0, 0, 0}, 50)
	require.True(t, ok)

	_, ok = p.TryShoot(mgl32.Vec3{0, 0, 0}, 50)
	require.False(t, ok, "second shot within cooldown window must be suppressed")
}
