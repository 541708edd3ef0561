package voxel

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// terraformRadius is the voxel-space radius a single terraform application
// touches (original_source passes a fixed radius of 2 to every terraform
// call, whether it originates from a ray-cast or a direct chunk edit).
const terraformRadius = 2

// Terraform applies a destructive or constructive density change centered
// on the voxel at xs (voxel space), within terraformRadius voxels, scaled
// by speed*dt and a 1-d²/r² falloff (§4.2). Touched chunks are recorded for
// history (server side) and queued for remesh.
func (s *Store) Terraform(xs mgl32.Vec3, destructive bool, speed, dt float32) {
	coefficient := float32(1)
	if destructive {
		coefficient = -1
	}

	center := mgl32.Vec3{roundF(xs[0]), roundF(xs[1]), roundF(xs[2])}
	radius := float32(terraformRadius)
	radiusSquared := radius * radius
	diameter := int(radius)*2 + 1
	bottom := center.Sub(mgl32.Vec3{radius, radius, radius})

	touched := make(map[ChunkCoord]struct{})

	for z := 0; z < diameter; z++ {
		for y := 0; y < diameter; y++ {
			for x := 0; x < diameter; x++ {
				v := mgl32.Vec3{bottom[0] + float32(x), bottom[1] + float32(y), bottom[2] + float32(z)}
				diff := v.Sub(center)
				distSquared := diff.Dot(diff)
				if distSquared > radiusSquared {
					continue
				}

				coord := s.Grid.ChunkContaining(v)
				c := s.EnsureChunk(coord)
				if c == nil {
					continue
				}
				lx, ly, lz := LocalVoxelCoord(v)
				localIdx := LocalIndex(lx, ly, lz)

				s.recordHistory(c)
				recordVoxelWrite(c, localIdx)

				proportion := 1 - distSquared/radiusSquared
				delta := int32(proportion * coefficient * dt * speed)
				newValue := int32(c.Densities[localIdx]) + delta
				c.Densities[localIdx] = clampDensity(newValue)
				c.modified = true

				touched[coord] = struct{}{}
			}
		}
	}

	for coord := range touched {
		s.QueueRemesh(coord)
	}
}

// RayCastTerraform steps along direction from ws in 1/10-reach increments
// up to maxReach world units, applying Terraform at the first voxel whose
// density exceeds surfaceLevel (§4.2 "construction/destruction ray"). A ray
// that reaches maxReach without crossing the surface has no effect.
func (s *Store) RayCastTerraform(ws, direction mgl32.Vec3, maxReach float32, destructive bool, speed, dt float32) {
	start := s.Grid.WorldToVoxelSpace(ws)
	maxReachVoxels := maxReach / s.Grid.VoxelSize
	stepSize := maxReachVoxels / 10
	maxReachSquared := maxReachVoxels * maxReachVoxels

	current := start
	for {
		delta := current.Sub(start)
		if delta.Dot(delta) >= maxReachSquared {
			return
		}

		coord := s.Grid.ChunkContaining(current)
		c := s.Chunk(coord)
		if c != nil {
			lx, ly, lz := LocalVoxelCoord(current)
			if c.Density(lx, ly, lz) > SurfaceLevel {
				s.Terraform(current, destructive, speed, dt)
				return
			}
		}

		current = current.Add(direction.Mul(stepSize))
	}
}

// ConstructSphere fills a solid sphere of world-space radius centered at ws
// with MaxDensity, falling off as 1-d²/r² (§4.2).
func (s *Store) ConstructSphere(ws mgl32.Vec3, radius float32) {
	s.fillSphere(ws, radius, func(proportion float32) (uint8, bool) {
		return clampDensityF(proportion * MaxDensity), true
	})
}

// ConstructHollowSphere fills a thin shell of a sphere of world-space
// radius centered at ws: only voxels whose squared distance falls in the
// band [(r-3.5)(r-3), r²] are written, matching original_source's
// construct_hollow_sphere band test.
func (s *Store) ConstructHollowSphere(ws mgl32.Vec3, radius float32) {
	rv := roundF(radius / s.Grid.VoxelSize)
	lowBand := (rv - 3.5) * (rv - 3)
	s.fillSphereVoxelRadius(ws, rv, func(distSquared float32) (uint8, bool) {
		if distSquared < lowBand {
			return 0, false
		}
		proportion := 1 - distSquared/(rv*rv)
		return clampDensityF(proportion * MaxDensity), true
	})
}

// ConstructPlane fills a flat world-Y slice of MaxDensity voxels in a
// square of the given world-space radius centered at ws, per
// original_source's construct_plane (a single-voxel-thick horizontal slab).
func (s *Store) ConstructPlane(ws mgl32.Vec3, radius float32) {
	origin := s.Grid.WorldToVoxelSpace(ws)
	rv := roundF(radius / s.Grid.VoxelSize)
	diameter := int(rv)*2 + 1
	bottomX := origin[0] - rv
	bottomZ := origin[2] - rv
	y := origin[1]

	touched := make(map[ChunkCoord]struct{})
	for z := 0; z < diameter; z++ {
		for x := 0; x < diameter; x++ {
			v := mgl32.Vec3{bottomX + float32(x), y, bottomZ + float32(z)}
			coord := s.Grid.ChunkContaining(v)
			c := s.EnsureChunk(coord)
			if c == nil {
				continue
			}
			lx, ly, lz := LocalVoxelCoord(v)
			c.SetDensity(lx, ly, lz, MaxDensity)
			touched[coord] = struct{}{}
		}
	}
	for coord := range touched {
		s.QueueRemesh(coord)
	}
}

// fillSphere is shared by ConstructSphere: a world-space radius sphere with
// a write function taking the 1-d²/r² proportion.
func (s *Store) fillSphere(ws mgl32.Vec3, radius float32, write func(proportion float32) (uint8, bool)) {
	rv := roundF(radius / s.Grid.VoxelSize)
	s.fillSphereVoxelRadius(ws, rv, func(distSquared float32) (uint8, bool) {
		return write(1 - distSquared/(rv*rv))
	})
}

// fillSphereVoxelRadius is the shared sphere rasterization loop: center is
// derived from ws, radius rv is already in voxel units, and write receives
// the squared voxel-space distance from center for each candidate voxel.
func (s *Store) fillSphereVoxelRadius(ws mgl32.Vec3, rv float32, write func(distSquared float32) (uint8, bool)) {
	center := s.Grid.WorldToVoxelSpace(ws)
	radiusSquared := rv * rv
	diameter := int(rv)*2 + 1
	bottom := center.Sub(mgl32.Vec3{rv, rv, rv})

	touched := make(map[ChunkCoord]struct{})
	for z := 0; z < diameter; z++ {
		for y := 0; y < diameter; y++ {
			for x := 0; x < diameter; x++ {
				v := mgl32.Vec3{bottom[0] + float32(x), bottom[1] + float32(y), bottom[2] + float32(z)}
				diff := v.Sub(center)
				distSquared := diff.Dot(diff)
				if distSquared > radiusSquared {
					continue
				}
				value, ok := write(distSquared)
				if !ok {
					continue
				}

				coord := s.Grid.ChunkContaining(v)
				c := s.EnsureChunk(coord)
				if c == nil {
					continue
				}
				lx, ly, lz := LocalVoxelCoord(v)
				c.SetDensity(lx, ly, lz, value)
				touched[coord] = struct{}{}
			}
		}
	}
	for coord := range touched {
		s.QueueRemesh(coord)
	}
}

func clampDensity(v int32) uint8 {
	if v > MaxDensity {
		return MaxDensity
	}
	if v < 0 {
		return 0
	}
	return uint8(v)
}

func clampDensityF(v float32) uint8 {
	return clampDensity(int32(math.Round(float64(v))))
}
