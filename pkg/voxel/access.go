package voxel

// DensityAtVoxelCoord returns the density at an absolute voxel-space
// coordinate, without the caller needing to resolve which chunk and
// local offset it falls in. Used by collision sweeps, which walk a
// bounding box in voxel space oblivious to chunk boundaries.
func (s *Store) DensityAtVoxelCoord(vx, vy, vz int32) (uint8, bool) {
	coord := ChunkCoord{
		X: floorDiv(vx, ChunkEdge),
		Y: floorDiv(vy, ChunkEdge),
		Z: floorDiv(vz, ChunkEdge),
	}
	c := s.Chunk(coord)
	if c == nil {
		return 0, false
	}
	lx := int(mod(vx, ChunkEdge))
	ly := int(mod(vy, ChunkEdge))
	lz := int(mod(vz, ChunkEdge))
	return c.Density(lx, ly, lz), true
}

func floorDiv(a, b int32) int32 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func mod(a, b int32) int32 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
