package player

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/leterax/voxel-arena/pkg/collision"
	"github.com/leterax/voxel-arena/pkg/voxel"
)

const (
	bulletGravity       = 9.81
	bulletHalfExtent    = 0.1
	bulletImpactRadius  = 2
	bulletImpactSpeed   = 10000 // large enough that a single Terraform call fully clears the impact radius regardless of dt
)

// Bullet is a simple projectile: same integrator shape as the player but
// with fixed gravity, no input, and a terrain-destroying collision
// response (supplemented feature 1).
type Bullet struct {
	Pos    mgl32.Vec3
	Vel    mgl32.Vec3
	Active bool
}

// BulletHalfExtents is the ellipsoid used for bullet-vs-terrain sweeps.
var BulletHalfExtents = mgl32.Vec3{bulletHalfExtent, bulletHalfExtent, bulletHalfExtent}

// Step advances an active bullet by dt, applying gravity and sweeping it
// through the terrain. On impact the bullet deactivates and a destructive
// sphere terraform of radius bulletImpactRadius is carved at the contact
// point.
func (b *Bullet) Step(store *voxel.Store, dt float32) {
	if !b.Active {
		return
	}
	b.Vel = b.Vel.Sub(mgl32.Vec3{0, bulletGravity * dt, 0})

	result := collision.Resolve(store, b.Pos, BulletHalfExtents, b.Vel.Mul(dt))
	b.Pos = result.At
	if result.Detected && !result.InAir {
		b.Active = false
		store.Terraform(store.Grid.WorldToVoxelSpace(b.Pos), true, bulletImpactSpeed, 1)
	}
}
