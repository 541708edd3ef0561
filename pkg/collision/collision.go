// Package collision implements the ellipsoid-space sliding collision
// resolver (C5): swept-sphere-vs-voxel-terrain detection and response,
// after Kasper Fauerby's "Improved Collision Detection and Response".
package collision

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/leterax/voxel-arena/pkg/voxel"
)

const maxRecursionDepth = 5
const veryCloseDistance = 0.01

// Result is the outcome of sweeping an ellipsoid through the voxel
// store. At and Velocity are in world space; Normal is the unit contact
// normal in ellipsoid space.
type Result struct {
	Detected     bool
	InAir        bool
	UnderTerrain bool
	At           mgl32.Vec3
	Velocity     mgl32.Vec3
	Normal       mgl32.Vec3
}

type primitiveKind int

const (
	primitiveNone primitiveKind = iota
	primitiveFace
	primitiveEdge
	primitiveVertex
)

// hit tracks the closest collision found so far, all in ellipsoid space.
type hit struct {
	detected     bool
	underTerrain bool
	primitive    primitiveKind
	esDistance   float32
	esContact    mgl32.Vec3
	esAt         mgl32.Vec3
	esNormal     mgl32.Vec3
}

// Resolve sweeps an axis-aligned ellipsoid (center wsCenter, radii
// wsHalfExtents) along wsVelocity against the voxel store and slides it
// along whatever surface it meets, recursing until the remaining
// velocity is spent or max depth is reached.
func Resolve(store *voxel.Store, wsCenter, wsHalfExtents, wsVelocity mgl32.Vec3) Result {
	return resolve(store, wsCenter, wsHalfExtents, wsVelocity, 0, Result{})
}

func resolve(store *voxel.Store, wsCenter, wsHalfExtents, wsVelocity mgl32.Vec3, recurseDepth int, previous Result) Result {
	esCenter := divVec(wsCenter, wsHalfExtents)
	esVelocity := divVec(wsVelocity, wsHalfExtents)

	closest := hit{esDistance: 1000}
	triangles := nearbyTriangles(store, wsCenter, wsHalfExtents, wsVelocity)
	for i := 0; i+2 < len(triangles); i += 3 {
		tri := [3]mgl32.Vec3{
			divVec(triangles[i], wsHalfExtents),
			divVec(triangles[i+1], wsHalfExtents),
			divVec(triangles[i+2], wsHalfExtents),
		}
		collideWithTriangle(tri, esCenter, esVelocity, &closest)
	}

	switch {
	case closest.underTerrain:
		return Result{
			Detected:     true,
			UnderTerrain: true,
			At:           mulVec(closest.esAt, wsHalfExtents),
			Normal:       closest.esNormal,
		}

	case closest.detected:
		esDestination := esCenter.Add(esVelocity)
		esNewPosition := esCenter

		if closest.esDistance >= veryCloseDistance {
			dir := normalizeSafe(esVelocity)
			esNewPosition = esCenter.Add(dir.Mul(closest.esDistance - veryCloseDistance))
			closest.esContact = closest.esContact.Sub(dir.Mul(veryCloseDistance))
		}

		slideNormal := normalizeSafe(esNewPosition.Sub(closest.esContact))
		planeConst := planeConstant(closest.esContact, slideNormal)
		destDistance := esDestination.Dot(slideNormal) + planeConst

		esNewDestination := esDestination.Sub(slideNormal.Mul(destDistance))
		esNewVelocity := esNewDestination.Sub(closest.esContact)

		result := Result{
			Detected: true,
			At:       mulVec(esNewPosition, wsHalfExtents),
			Velocity: mulVec(esNewVelocity, wsHalfExtents),
			Normal:   slideNormal,
		}

		if distanceSquared(esNewVelocity) < squared(veryCloseDistance) {
			return result
		}
		if recurseDepth < maxRecursionDepth {
			return resolve(store, result.At, wsHalfExtents, result.Velocity, recurseDepth+1, result)
		}
		return result

	default:
		return Result{
			InAir:    true,
			Detected: recurseDepth > 0,
			At:       wsCenter.Add(wsVelocity),
			Velocity: wsVelocity,
			Normal:   previous.Normal,
		}
	}
}

// nearbyTriangles triangulates every lattice cell touching the swept
// ellipsoid's bounding box, in world space, so resolve can reduce the
// problem to a fixed list of candidate triangles per step.
func nearbyTriangles(store *voxel.Store, wsCenter, wsHalfExtents, wsVelocity mgl32.Vec3) []mgl32.Vec3 {
	wsEnd := wsCenter.Add(wsVelocity)
	wsLow := mgl32.Vec3{min(wsCenter[0], wsEnd[0]), min(wsCenter[1], wsEnd[1]), min(wsCenter[2], wsEnd[2])}
	wsHigh := mgl32.Vec3{max(wsCenter[0], wsEnd[0]), max(wsCenter[1], wsEnd[1]), max(wsCenter[2], wsEnd[2])}
	minXS := store.Grid.WorldToVoxelSpace(wsLow.Sub(wsHalfExtents))
	maxXS := store.Grid.WorldToVoxelSpace(wsHigh.Add(wsHalfExtents))

	minX, minY, minZ := int32(math.Floor(float64(minXS[0]))), int32(math.Floor(float64(minXS[1]))), int32(math.Floor(float64(minXS[2])))
	maxX, maxY, maxZ := int32(math.Ceil(float64(maxXS[0]))), int32(math.Ceil(float64(maxXS[1]))), int32(math.Ceil(float64(maxXS[2])))

	var out []mgl32.Vec3
	for z := minZ; z < maxZ; z++ {
		for y := minY; y < maxY; y++ {
			for x := minX; x < maxX; x++ {
				var values [8]uint8
				complete := true
				for i, corner := range voxel.CellCorners {
					v, ok := store.DensityAtVoxelCoord(x+int32(corner[0]), y+int32(corner[1]), z+int32(corner[2]))
					if !ok {
						complete = false
						break
					}
					values[i] = v
				}
				if !complete {
					continue
				}

				for _, p := range voxel.TriangulateCell(values) {
					vs := mgl32.Vec3{float32(x) + p[0], float32(y) + p[1], float32(z) + p[2]}
					out = append(out, store.Grid.VoxelToWorldSpace(vs))
				}
			}
		}
	}
	return out
}

func collideWithTriangle(tri [3]mgl32.Vec3, esCenter, esVelocity mgl32.Vec3, closest *hit) {
	fa, fb, fc := tri[0], tri[1], tri[2]
	normal := fb.Sub(fa).Cross(fc.Sub(fa)).Normalize()

	if normalizeSafe(esVelocity).Dot(normal) > 0 {
		return
	}

	planeConst := planeConstant(fa, normal)
	normalDotVelocity := esVelocity.Dot(normal)
	spherePlaneDistance := esCenter.Dot(normal) + planeConst

	onlyEdgesAndVertices := false
	if normalDotVelocity == 0 {
		if float32(math.Abs(float64(spherePlaneDistance))) >= 1 {
			return
		}
		onlyEdgesAndVertices = true
	}

	found := false
	if !onlyEdgesAndVertices {
		t0 := (1 - spherePlaneDistance) / normalDotVelocity
		t1 := (-1 - spherePlaneDistance) / normalDotVelocity
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		if t0 > 1 || t1 < 0 {
			return
		}
		if t0 < 0 {
			t0 = 0
		}
		if t1 < 1 {
			t1 = 1
		}

		contact := esCenter.Add(esVelocity.Mul(t0)).Sub(normal)
		if isPointInTriangle(contact, fa, fb, fc) {
			dist := esVelocity.Mul(t0).Len()
			if dist < closest.esDistance {
				spherePointPlaneDistance := esCenter.Sub(normal).Dot(normal) + planeConst
				if spherePointPlaneDistance < 0 && !closest.underTerrain {
					closest.underTerrain = true
					closest.esAt = esCenter.Sub(normal.Mul(spherePointPlaneDistance))
					closest.esNormal = normal
					return
				}

				found = true
				closest.detected = true
				closest.primitive = primitiveFace
				closest.esDistance = dist
				closest.esContact = contact
				closest.esNormal = normal
			}
		}
	}

	if !found {
		checkCollisionWithVertex(esVelocity, esCenter, fa, normal, closest)
		checkCollisionWithVertex(esVelocity, esCenter, fb, normal, closest)
		checkCollisionWithVertex(esVelocity, esCenter, fc, normal, closest)

		checkCollisionWithEdge(esVelocity, esCenter, fa, fb, normal, closest)
		checkCollisionWithEdge(esVelocity, esCenter, fb, fc, normal, closest)
		checkCollisionWithEdge(esVelocity, esCenter, fc, fa, normal, closest)
	}
}

func checkCollisionWithVertex(esVelocity, esPosition, esVertex, esNormal mgl32.Vec3, closest *hit) {
	a := distanceSquared(esVelocity)
	b := 2 * esVelocity.Dot(esPosition.Sub(esVertex))
	c := distanceSquared(esVertex.Sub(esPosition)) - 1

	root, ok := getSmallestRoot(a, b, c, 1)
	if !ok {
		return
	}
	dist := esVelocity.Mul(root).Len()
	if dist < closest.esDistance {
		closest.detected = true
		closest.primitive = primitiveVertex
		closest.esDistance = dist
		closest.esContact = esVertex
		closest.esNormal = esNormal
	}
}

func checkCollisionWithEdge(esVelocity, esPosition, esVertexA, esVertexB, esNormal mgl32.Vec3, closest *hit) {
	edgeDiff := esVertexB.Sub(esVertexA)
	posToVertex := esVertexA.Sub(esPosition)

	a := distanceSquared(edgeDiff)*-distanceSquared(esVelocity) + squared(edgeDiff.Dot(esVelocity))
	b := distanceSquared(edgeDiff)*2*esVelocity.Dot(posToVertex) - 2*(edgeDiff.Dot(esVelocity)*edgeDiff.Dot(posToVertex))
	c := distanceSquared(edgeDiff)*(1-distanceSquared(posToVertex)) + squared(edgeDiff.Dot(posToVertex))

	root, ok := getSmallestRoot(a, b, c, 1)
	if !ok {
		return
	}
	edgeProportion := (edgeDiff.Dot(esVelocity)*root - edgeDiff.Dot(posToVertex)) / distanceSquared(edgeDiff)
	if edgeProportion < 0 || edgeProportion > 1 {
		return
	}

	contact := esVertexA.Add(edgeDiff.Mul(edgeProportion))
	dist := esVelocity.Mul(root).Len()
	if dist < closest.esDistance {
		closest.detected = true
		closest.primitive = primitiveEdge
		closest.esDistance = dist
		closest.esContact = contact
		closest.esNormal = esNormal
	}
}

// getSmallestRoot solves At^2 + Bt + C = 0 and returns the smallest root
// in (0, maxR), per Kasper Fauerby's paper.
func getSmallestRoot(a, b, c, maxR float32) (float32, bool) {
	determinant := b*b - 4*a*c
	if determinant < 0 {
		return 0, false
	}
	sqrtD := float32(math.Sqrt(float64(determinant)))
	r1 := (-b - sqrtD) / (2 * a)
	r2 := (-b + sqrtD) / (2 * a)
	if r1 > r2 {
		r1, r2 = r2, r1
	}
	if r1 > 0 && r1 < maxR {
		return r1, true
	}
	if r2 > 0 && r2 < maxR {
		return r2, true
	}
	return 0, false
}

func isPointInTriangle(point, a, b, c mgl32.Vec3) bool {
	cross11 := c.Sub(b).Cross(point.Sub(b))
	cross12 := c.Sub(b).Cross(a.Sub(b))
	if cross11.Dot(cross12) < 0 {
		return false
	}
	cross21 := c.Sub(a).Cross(point.Sub(a))
	cross22 := c.Sub(a).Cross(b.Sub(a))
	if cross21.Dot(cross22) < 0 {
		return false
	}
	cross31 := b.Sub(a).Cross(point.Sub(a))
	cross32 := b.Sub(a).Cross(c.Sub(a))
	return cross31.Dot(cross32) >= 0
}

func planeConstant(point, normal mgl32.Vec3) float32 {
	return -(point[0]*normal[0] + point[1]*normal[1] + point[2]*normal[2])
}

func squared(f float32) float32 { return f * f }

func distanceSquared(v mgl32.Vec3) float32 { return v.Dot(v) }

func normalizeSafe(v mgl32.Vec3) mgl32.Vec3 {
	l := v.Len()
	if l == 0 {
		return v
	}
	return v.Mul(1 / l)
}

func divVec(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{a[0] / b[0], a[1] / b[1], a[2] / b[2]}
}

func mulVec(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}
