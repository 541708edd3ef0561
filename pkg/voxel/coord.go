// Package voxel implements the voxel chunk store, marching-cubes mesh
// derivation and terrain edit engine that the networked core arbitrates.
package voxel

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// ChunkEdge is the edge length of a chunk in voxels (E in the design doc).
const ChunkEdge = 16

// SurfaceLevel is the density threshold above which a voxel is solid (S).
const SurfaceLevel = 60

// MaxDensity is the clamp ceiling for terraform writes; 255 is reserved as
// the wire-level "no correction needed" sentinel (see protocol package).
const MaxDensity = 254

// ChunkCoord is a chunk's position on the chunk grid.
type ChunkCoord struct {
	X, Y, Z int32
}

// Grid describes the voxel-space <-> world-space mapping shared by every
// chunk in the store: a cube grid of edge GridEdge chunks, each ChunkEdge
// voxels wide, each voxel VoxelSize world units across.
type Grid struct {
	GridEdge  int32
	VoxelSize float32
}

// WorldOrigin returns the world-space position of voxel-space origin
// (0,0,0), per spec §4.2: world_origin = -(G/2)*E*voxel_size.
func (g Grid) WorldOrigin() mgl32.Vec3 {
	o := -float32(g.GridEdge) / 2 * float32(ChunkEdge) * g.VoxelSize
	return mgl32.Vec3{o, o, o}
}

// WorldToVoxelSpace converts a world-space point to voxel space:
// xs = (ws - world_origin) / voxel_size.
func (g Grid) WorldToVoxelSpace(ws mgl32.Vec3) mgl32.Vec3 {
	origin := g.WorldOrigin()
	return mgl32.Vec3{
		(ws[0] - origin[0]) / g.VoxelSize,
		(ws[1] - origin[1]) / g.VoxelSize,
		(ws[2] - origin[2]) / g.VoxelSize,
	}
}

// VoxelToWorldSpace is the inverse of WorldToVoxelSpace.
func (g Grid) VoxelToWorldSpace(xs mgl32.Vec3) mgl32.Vec3 {
	origin := g.WorldOrigin()
	return mgl32.Vec3{
		xs[0]*g.VoxelSize + origin[0],
		xs[1]*g.VoxelSize + origin[1],
		xs[2]*g.VoxelSize + origin[2],
	}
}

// ChunkContaining returns the chunk coordinate containing a voxel-space
// point: floor(round(xs) / E).
func (g Grid) ChunkContaining(xs mgl32.Vec3) ChunkCoord {
	return ChunkCoord{
		X: int32(math.Floor(float64(roundF(xs[0])) / ChunkEdge)),
		Y: int32(math.Floor(float64(roundF(xs[1])) / ChunkEdge)),
		Z: int32(math.Floor(float64(roundF(xs[2])) / ChunkEdge)),
	}
}

// LocalVoxelCoord returns the in-chunk voxel coordinate for a voxel-space
// point: round(xs) mod E, always in [0, E).
func LocalVoxelCoord(xs mgl32.Vec3) (x, y, z int) {
	mod := func(v float32) int {
		i := int(roundF(v)) % ChunkEdge
		if i < 0 {
			i += ChunkEdge
		}
		return i
	}
	return mod(xs[0]), mod(xs[1]), mod(xs[2])
}

func roundF(v float32) float32 {
	return float32(math.Round(float64(v)))
}

// InBounds reports whether a chunk coordinate lies on the grid.
func (g Grid) InBounds(c ChunkCoord) bool {
	return c.X >= 0 && c.X < g.GridEdge &&
		c.Y >= 0 && c.Y < g.GridEdge &&
		c.Z >= 0 && c.Z < g.GridEdge
}

// PackChunkCoord computes the fixed memory slot ix + G*iy + G^2*iz for a
// chunk coordinate. Callers MUST check InBounds first.
func (g Grid) PackChunkCoord(c ChunkCoord) int {
	return int(c.X + g.GridEdge*c.Y + g.GridEdge*g.GridEdge*c.Z)
}

// UnpackChunkCoord is the inverse of PackChunkCoord.
func (g Grid) UnpackChunkCoord(index int) ChunkCoord {
	ge := int(g.GridEdge)
	x := index % ge
	rem := index / ge
	y := rem % ge
	z := rem / ge
	return ChunkCoord{X: int32(x), Y: int32(y), Z: int32(z)}
}

// ChunkCount is the total number of chunk slots on the grid (G^3).
func (g Grid) ChunkCount() int {
	return int(g.GridEdge) * int(g.GridEdge) * int(g.GridEdge)
}

// LocalIndex converts in-chunk voxel coordinates to a flat index into a
// Chunk's Densities array.
func LocalIndex(x, y, z int) int {
	return x*ChunkEdge*ChunkEdge + y*ChunkEdge + z
}

// LocalFromIndex is the inverse of LocalIndex.
func LocalFromIndex(index int) (x, y, z int) {
	x = index / (ChunkEdge * ChunkEdge)
	rem := index % (ChunkEdge * ChunkEdge)
	y = rem / ChunkEdge
	z = rem % ChunkEdge
	return
}
