package voxel

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func TestPackUnpackChunkCoordBijection(t *testing.T) {
	g := Grid{GridEdge: 8, VoxelSize: 1}
	for z := int32(0); z < g.GridEdge; z++ {
		for y := int32(0); y < g.GridEdge; y++ {
			for x := int32(0); x < g.GridEdge; x++ {
				coord := ChunkCoord{X: x, Y: y, Z: z}
				idx := g.PackChunkCoord(coord)
				require.Equal(t, coord, g.UnpackChunkCoord(idx))
			}
		}
	}
}

func TestLocalIndexBijection(t *testing.T) {
	for z := 0; z < ChunkEdge; z++ {
		for y := 0; y < ChunkEdge; y++ {
			for x := 0; x < ChunkEdge; x++ {
				idx := LocalIndex(x, y, z)
				gx, gy, gz := LocalFromIndex(idx)
				require.Equal(t, [3]int{x, y, z}, [3]int{gx, gy, gz})
			}
		}
	}
}

func TestWorldVoxelSpaceRoundTrip(t *testing.T) {
	g := Grid{GridEdge: 4, VoxelSize: 2.5}
	ws := mgl32.Vec3{12.3, -5.1, 40}
	xs := g.WorldToVoxelSpace(ws)
	back := g.VoxelToWorldSpace(xs)
	require.InDelta(t, ws[0], back[0], 1e-3)
	require.InDelta(t, ws[1], back[1], 1e-3)
	require.InDelta(t, ws[2], back[2], 1e-3)
}

func TestChunkContainingMatchesGrid(t *testing.T) {
	g := Grid{GridEdge: 4, VoxelSize: 1}
	xs := mgl32.Vec3{17, 1, 1} // chunk edge 16, so x=17 -> chunk 1
	coord := g.ChunkContaining(xs)
	require.Equal(t, int32(1), coord.X)
	require.Equal(t, int32(0), coord.Y)
	require.Equal(t, int32(0), coord.Z)
}

func TestLocalVoxelCoordWrapsWithinChunk(t *testing.T) {
	xs := mgl32.Vec3{17, 0, 0}
	x, y, z := LocalVoxelCoord(xs)
	require.Equal(t, 1, x)
	require.Equal(t, 0, y)
	require.Equal(t, 0, z)
}

func TestInBounds(t *testing.T) {
	g := Grid{GridEdge: 4, VoxelSize: 1}
	require.True(t, g.InBounds(ChunkCoord{0, 0, 0}))
	require.True(t, g.InBounds(ChunkCoord{3, 3, 3}))
	require.False(t, g.InBounds(ChunkCoord{4, 0, 0}))
	require.False(t, g.InBounds(ChunkCoord{0, -1, 0}))
}
