package voxel

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Vertex is a single point on a chunk's derived surface mesh. Normals are
// not stored (§4.2 — the rendering collaborator derives them).
type Vertex struct {
	Position mgl32.Vec3
}

// cubeCorners are the 8 corner offsets of a marching-cubes lattice cell,
// in the same winding original_source's NORMALIZED_CUBE_VERTEX_INDICES
// uses.
var cubeCorners = [8][3]int{
	{0, 0, 0}, {1, 0, 0}, {1, 0, 1}, {0, 0, 1},
	{0, 1, 0}, {1, 1, 0}, {1, 1, 1}, {0, 1, 1},
}

// cubeEdges maps each of the 12 lattice-cell edges to the pair of corner
// indices (into cubeCorners) it connects.
var cubeEdges = [12][2]int{
	{0, 1}, {1, 2}, {2, 3}, {3, 0},
	{4, 5}, {5, 6}, {6, 7}, {7, 4},
	{0, 4}, {1, 5}, {2, 6}, {3, 7},
}

// MarchChunk derives the surface mesh for the chunk at coord by running
// marching cubes over each 2x2x2 lattice cell (§4.2). Edge voxels sample
// across the three axis-positive neighbor chunks and the diagonal corner
// chunk so seams are watertight; a lattice cell touching an absent
// neighbor chunk is skipped.
func MarchChunk(s *Store, coord ChunkCoord) []Vertex {
	c := s.Chunk(coord)
	if c == nil {
		return nil
	}

	xNeighbor := s.Chunk(ChunkCoord{X: coord.X + 1, Y: coord.Y, Z: coord.Z})
	yNeighbor := s.Chunk(ChunkCoord{X: coord.X, Y: coord.Y + 1, Z: coord.Z})
	zNeighbor := s.Chunk(ChunkCoord{X: coord.X, Y: coord.Y, Z: coord.Z + 1})
	xyNeighbor := s.Chunk(ChunkCoord{X: coord.X + 1, Y: coord.Y + 1, Z: coord.Z})
	xzNeighbor := s.Chunk(ChunkCoord{X: coord.X + 1, Y: coord.Y, Z: coord.Z + 1})
	yzNeighbor := s.Chunk(ChunkCoord{X: coord.X, Y: coord.Y + 1, Z: coord.Z + 1})
	xyzNeighbor := s.Chunk(ChunkCoord{X: coord.X + 1, Y: coord.Y + 1, Z: coord.Z + 1})

	sample := func(x, y, z int) (uint8, bool) {
		switch {
		case x < ChunkEdge && y < ChunkEdge && z < ChunkEdge:
			return c.Density(x, y, z), true
		case x == ChunkEdge && y < ChunkEdge && z < ChunkEdge:
			if xNeighbor == nil {
				return 0, false
			}
			return xNeighbor.Density(0, y, z), true
		case x < ChunkEdge && y == ChunkEdge && z < ChunkEdge:
			if yNeighbor == nil {
				return 0, false
			}
			return yNeighbor.Density(x, 0, z), true
		case x < ChunkEdge && y < ChunkEdge && z == ChunkEdge:
			if zNeighbor == nil {
				return 0, false
			}
			return zNeighbor.Density(x, y, 0), true
		case x == ChunkEdge && y == ChunkEdge && z < ChunkEdge:
			if xyNeighbor == nil {
				return 0, false
			}
			return xyNeighbor.Density(0, 0, z), true
		case x == ChunkEdge && y < ChunkEdge && z == ChunkEdge:
			if xzNeighbor == nil {
				return 0, false
			}
			return xzNeighbor.Density(0, y, 0), true
		case x < ChunkEdge && y == ChunkEdge && z == ChunkEdge:
			if yzNeighbor == nil {
				return 0, false
			}
			return yzNeighbor.Density(x, 0, 0), true
		default: // x == y == z == ChunkEdge, the diagonal corner chunk
			if xyzNeighbor == nil {
				return 0, false
			}
			return xyzNeighbor.Density(0, 0, 0), true
		}
	}

	var out []Vertex
	for z := 0; z < ChunkEdge; z++ {
		for y := 0; y < ChunkEdge; y++ {
			for x := 0; x < ChunkEdge; x++ {
				var values [8]uint8
				complete := true
				for i, corner := range cubeCorners {
					v, ok := sample(x+corner[0], y+corner[1], z+corner[2])
					if !ok {
						complete = false
						break
					}
					values[i] = v
				}
				if !complete {
					continue
				}

				caseIndex := 0
				for i, v := range values {
					if v > SurfaceLevel {
						caseIndex |= 1 << uint(i)
					}
				}

				row := triangleTable[caseIndex]
				for i := 0; row[i] != -1; i++ {
					edge := row[i]
					a, b := cubeEdges[edge][0], cubeEdges[edge][1]
					pa := cubeCorners[a]
					pb := cubeCorners[b]
					va, vb := values[a], values[b]
					if va > vb {
						pa, pb = pb, pa
						va, vb = vb, va
					}
					t := float32(0)
					if vb != va {
						t = (float32(SurfaceLevel) - float32(va)) / (float32(vb) - float32(va))
					}
					pos := mgl32.Vec3{
						float32(x) + lerpF(float32(pa[0]), float32(pb[0]), t),
						float32(y) + lerpF(float32(pa[1]), float32(pb[1]), t),
						float32(z) + lerpF(float32(pa[2]), float32(pb[2]), t),
					}
					out = append(out, Vertex{Position: pos.Mul(s.Grid.VoxelSize).Add(c.Origin)})
				}
			}
		}
	}
	return out
}

func lerpF(a, b, t float32) float32 {
	return a + t*(b-a)
}
