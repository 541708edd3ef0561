package voxel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarchChunkAllAirProducesNoVertices(t *testing.T) {
	s := NewStore(2, 1)
	s.EnsureChunk(ChunkCoord{0, 0, 0})
	s.EnsureChunk(ChunkCoord{1, 0, 0})
	s.EnsureChunk(ChunkCoord{0, 1, 0})
	s.EnsureChunk(ChunkCoord{0, 0, 1})
	s.EnsureChunk(ChunkCoord{1, 1, 0})
	s.EnsureChunk(ChunkCoord{1, 0, 1})
	s.EnsureChunk(ChunkCoord{0, 1, 1})
	s.EnsureChunk(ChunkCoord{1, 1, 1})

	verts := MarchChunk(s, ChunkCoord{0, 0, 0})
	require.Empty(t, verts)
}

func TestMarchChunkAllSolidProducesNoVertices(t *testing.T) {
	s := NewStore(2, 1)
	for _, coord := range []ChunkCoord{
		{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1},
		{1, 1, 0}, {1, 0, 1}, {0, 1, 1}, {1, 1, 1},
	} {
		c := s.EnsureChunk(coord)
		for i := range c.Densities {
			c.Densities[i] = MaxDensity
		}
	}

	verts := MarchChunk(s, ChunkCoord{0, 0, 0})
	require.Empty(t, verts, "a fully solid lattice cell has no surface crossing")
}

func TestMarchChunkProducesSurfaceAtBoundary(t *testing.T) {
	s := NewStore(2, 1)
	for _, coord := range []ChunkCoord{
		{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1},
		{1, 1, 0}, {1, 0, 1}, {0, 1, 1}, {1, 1, 1},
	} {
		s.EnsureChunk(coord)
	}
	c := s.Chunk(ChunkCoord{0, 0, 0})
	// Solidify the bottom half of the chunk (low y) so a surface crosses
	// somewhere in the middle of the lattice.
	for z := 0; z < ChunkEdge; z++ {
		for y := 0; y < ChunkEdge/2; y++ {
			for x := 0; x < ChunkEdge; x++ {
				c.SetDensity(x, y, z, MaxDensity)
			}
		}
	}

	verts := MarchChunk(s, ChunkCoord{0, 0, 0})
	require.NotEmpty(t, verts)
	require.Zero(t, len(verts)%3, "vertices are emitted in complete triangles")
}

func TestMarchChunkSkipsCellsMissingNeighborData(t *testing.T) {
	s := NewStore(2, 1)
	c := s.EnsureChunk(ChunkCoord{0, 0, 0})
	for z := 0; z < ChunkEdge; z++ {
		for y := 0; y < ChunkEdge/2; y++ {
			for x := 0; x < ChunkEdge; x++ {
				c.SetDensity(x, y, z, MaxDensity)
			}
		}
	}
	// No neighbor chunks allocated: lattice cells along the chunk's far
	// face cannot sample across the boundary and must be skipped rather
	// than guessed, but the interior surface still marches fine.
	verts := MarchChunk(s, ChunkCoord{0, 0, 0})
	require.NotEmpty(t, verts)

	withNeighbors := NewStore(2, 1)
	for _, coord := range []ChunkCoord{
		{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1},
		{1, 1, 0}, {1, 0, 1}, {0, 1, 1}, {1, 1, 1},
	} {
		withNeighbors.EnsureChunk(coord)
	}
	c2 := withNeighbors.Chunk(ChunkCoord{0, 0, 0})
	for z := 0; z < ChunkEdge; z++ {
		for y := 0; y < ChunkEdge/2; y++ {
			for x := 0; x < ChunkEdge; x++ {
				c2.SetDensity(x, y, z, MaxDensity)
			}
		}
	}
	vertsWithNeighbors := MarchChunk(withNeighbors, ChunkCoord{0, 0, 0})
	require.Greater(t, len(vertsWithNeighbors), len(verts), "neighbor chunks let boundary-crossing lattice cells march too")
}
