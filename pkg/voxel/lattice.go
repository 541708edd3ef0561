package voxel

import "github.com/go-gl/mathgl/mgl32"

// CellCorners and CellEdges expose the lattice-cell topology MarchChunk
// uses internally, so a caller that samples densities its own way (the
// collision sweep, which walks an arbitrary voxel-space box rather than
// a fixed chunk) can still triangulate with the same table.
var CellCorners = cubeCorners
var CellEdges = cubeEdges

// TriangulateCell returns the interpolated edge points, in cell-local
// unit coordinates (each axis in [0,1]), forming the surface triangles
// for a lattice cell whose 8 corners have the given densities. Three
// consecutive points make one triangle.
func TriangulateCell(values [8]uint8) []mgl32.Vec3 {
	caseIndex := 0
	for i, v := range values {
		if v > SurfaceLevel {
			caseIndex |= 1 << uint(i)
		}
	}

	row := triangleTable[caseIndex]
	var out []mgl32.Vec3
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
		out = append(out, mgl32.Vec3{
			lerpF(float32(pa[0]), float32(pb[0]), t),
			lerpF(float32(pa[1]), float32(pb[1]), t),
			lerpF(float32(pa[2]), float32(pb[2]), t),
		})
	}
	return out
}
