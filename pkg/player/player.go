// Package player implements the shared player simulation (C6): upright
// and rolling integrators, camera follow, and bullet simulation, all
// built on pkg/collision's ellipsoid resolver and pkg/voxel's terrain.
package player

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/leterax/voxel-arena/pkg/collision"
	"github.com/leterax/voxel-arena/pkg/command"
	"github.com/leterax/voxel-arena/pkg/voxel"
)

// Action bits, the bits of a command sample's ActionFlags (spec's
// exhaustive list: forward, left, back, right, up, down, run, shoot,
// terraform-add, terraform-destroy, jump).
const (
	ActionForward uint32 = 1 << iota
	ActionBackward
	ActionLeft
	ActionRight
	ActionUp
	ActionDown
	ActionJump
	ActionRun
	ActionShoot
	ActionTerraformAdd
	ActionTerraformDestroy
)

// Mode-toggle bits, carried on the command sample's Flags byte (not the
// action bitmask) since they're orthogonal momentary-press toggles rather
// than held actions: rolling and third-person-camera.
const (
	FlagToggleRoll uint8 = 1 << iota
	FlagToggleThirdPerson
)

const (
	gravity            = 9.81
	uprightSpeed       = 2.5
	runMultiplier      = 2.0
	rollingAccel       = 20.0
	rollingFriction    = 0.5 * 9.81
	cameraUpLerpRate   = 3.0
	shootCooldownTime  = 0.25 // seconds between shots
	enteringGraceTicks = 30   // ticks of suppressed collision response after JOIN

	terraformReach = 70.0  // world units, world.cpp's max_reach_distance
	terraformSpeed = 300.0 // world.cpp's terraform_power.speed
)

// Player is the kinematic and mode state simulated identically on client
// and server — the "pure function (state, input, dt) -> state" the
// design notes call for, expressed as methods that mutate in place.
type Player struct {
	ClientID uint32
	Name     string

	Pos  mgl32.Vec3
	Dir  mgl32.Vec3
	Vel  mgl32.Vec3
	Up   mgl32.Vec3
	Quat mgl32.Quat

	HalfExtents mgl32.Vec3

	Rolling       bool
	ThirdPerson   bool
	InAir         bool
	RollAngle     float32 // accumulated rotation, radians, reset on mode switch
	ActionFlags   uint32
	prevModeFlags uint8

	ShootCooldown  float32
	EnteringTicks  int
	CameraDistance float32
	CameraUp       mgl32.Vec3
	AnimationCycle uint32
}

// NewPlayer constructs a player at a spawn point with the entering-world
// grace window active (supplemented feature 2).
func NewPlayer(clientID uint32, name string, pos, dir mgl32.Vec3) *Player {
	return &Player{
		ClientID:       clientID,
		Name:           name,
		Pos:            pos,
		Dir:            dir,
		Up:             mgl32.Vec3{0, 1, 0},
		Quat:           mgl32.QuatIdent(),
		HalfExtents:    mgl32.Vec3{0.5, 1, 0.5},
		CameraDistance: 6,
		CameraUp:       mgl32.Vec3{0, 1, 0},
		EnteringTicks:  enteringGraceTicks,
	}
}

// isEntering reports whether this player is still within its post-spawn
// grace window, during which collision response is suppressed so a
// player dropped into solid terrain isn't immediately ejected.
func (p *Player) isEntering() bool {
	return p.EnteringTicks > 0
}

// Step advances the player by one simulation sample, dispatching to the
// upright or rolling integrator per the current mode, applying any implied
// terraform edit, then ticks down cooldowns and the entering-world grace
// window.
func (p *Player) Step(store *voxel.Store, in command.Sample) {
	if in.Flags&FlagToggleRoll != 0 && p.prevModeFlags&FlagToggleRoll == 0 {
		p.Rolling = !p.Rolling
		p.RollAngle = 0
	}
	if in.Flags&FlagToggleThirdPerson != 0 && p.prevModeFlags&FlagToggleThirdPerson == 0 {
		p.ThirdPerson = !p.ThirdPerson
	}
	p.prevModeFlags = in.Flags
	p.ActionFlags = in.ActionFlags

	right := p.Dir.Cross(p.Up).Normalize()
	if p.Rolling {
		p.stepRolling(store, in, right)
	} else {
		p.stepUpright(store, in, right)
	}

	p.applyTerraformAction(store, in)

	if p.ShootCooldown > 0 {
		p.ShootCooldown -= in.Dt
	}
	if p.EnteringTicks > 0 {
		p.EnteringTicks--
	}
}

// applyTerraformAction ray-casts a construct or destroy terraform from the
// player's view ray when the corresponding action bit is set (§4.2's
// ray-cast terraform, driven here by spec.md:99's "the server records which
// voxel edits the sample's actions implied" — the client runs the identical
// call so its predicted world matches).
func (p *Player) applyTerraformAction(store *voxel.Store, in command.Sample) {
	if in.ActionFlags&ActionTerraformDestroy != 0 {
		store.RayCastTerraform(p.Pos, p.Dir, terraformReach, true, terraformSpeed, in.Dt)
	} else if in.ActionFlags&ActionTerraformAdd != 0 {
		store.RayCastTerraform(p.Pos, p.Dir, terraformReach, false, terraformSpeed, in.Dt)
	}
}

func (p *Player) stepUpright(store *voxel.Store, in command.Sample, right mgl32.Vec3) {
	if p.InAir {
		p.Vel = p.Vel.Sub(p.Up.Mul(gravity * in.Dt))
	} else {
		speed := float32(uprightSpeed)
		if in.ActionFlags&ActionRun != 0 {
			speed *= runMultiplier
		}
		move := mgl32.Vec3{}
		if in.ActionFlags&ActionForward != 0 {
			move = move.Add(p.Dir)
		}
		if in.ActionFlags&ActionBackward != 0 {
			move = move.Sub(p.Dir)
		}
		if in.ActionFlags&ActionRight != 0 {
			move = move.Add(right)
		}
		if in.ActionFlags&ActionLeft != 0 {
			move = move.Sub(right)
		}
		if in.ActionFlags&ActionUp != 0 {
			move = move.Add(p.Up)
		}
		if in.ActionFlags&ActionDown != 0 {
			move = move.Sub(p.Up)
		}
		if move.Len() > 0 {
			move = move.Normalize()
		}
		p.Vel = move.Mul(speed)
		if in.ActionFlags&ActionJump != 0 {
			p.Vel = p.Vel.Add(p.Up.Mul(speed))
		}
	}

	p.resolveMotion(store, in.Dt)
}

func (p *Player) stepRolling(store *voxel.Store, in command.Sample, right mgl32.Vec3) {
	accel := mgl32.Vec3{}
	if in.ActionFlags&ActionForward != 0 {
		accel = accel.Add(p.Dir)
	}
	if in.ActionFlags&ActionBackward != 0 {
		accel = accel.Sub(p.Dir)
	}
	if in.ActionFlags&ActionRight != 0 {
		accel = accel.Add(right)
	}
	if in.ActionFlags&ActionLeft != 0 {
		accel = accel.Sub(right)
	}
	if accel.Len() > 0 {
		accel = accel.Normalize().Mul(rollingAccel)
	}

	if !p.InAir {
		horizontalSpeed := p.Vel.Len()
		if horizontalSpeed > 0 {
			friction := p.Vel.Normalize().Mul(-rollingFriction * in.Dt)
			if friction.Len() > horizontalSpeed {
				p.Vel = mgl32.Vec3{}
			} else {
				p.Vel = p.Vel.Add(friction)
			}
		}
	} else {
		p.Vel = p.Vel.Sub(p.Up.Mul(gravity * in.Dt))
	}
	p.Vel = p.Vel.Add(accel.Mul(in.Dt))

	distance := p.Vel.Mul(in.Dt).Len()
	if distance > 0 {
		circumference := 2 * math.Pi * float64(avg3(p.HalfExtents))
		angle := float32(distance) / float32(circumference) * 2 * math.Pi
		axis := p.Vel.Cross(p.Up)
		if axis.Len() > 0 {
			axis = axis.Normalize()
			p.RollAngle += angle
			rotation := mgl32.QuatRotate(angle, axis)
			p.Quat = rotation.Mul(p.Quat).Normalize()
		}
	}

	p.resolveMotion(store, in.Dt)
}

func (p *Player) resolveMotion(store *voxel.Store, dt float32) {
	result := collision.Resolve(store, p.Pos, p.HalfExtents, p.Vel.Mul(dt))
	if p.isEntering() {
		p.Pos = p.Pos.Add(p.Vel.Mul(dt))
		p.InAir = true
		return
	}

	p.Pos = result.At
	p.InAir = result.InAir
	if result.Detected && !result.InAir {
		if dt > 0 {
			p.Vel = result.Velocity.Mul(1 / dt)
		} else {
			p.Vel = result.Velocity
		}
	}
	if result.UnderTerrain {
		p.Vel = mgl32.Vec3{}
	}
}

// CameraTarget returns the third-person camera's desired world-space
// position: p + s*u - distance*d + right*s, collision-tested against the
// terrain so geometry never clips between camera and player (§4.6).
func (p *Player) CameraTarget(store *voxel.Store, dt float32) mgl32.Vec3 {
	right := p.Dir.Cross(p.Up).Normalize()
	s := avg3(p.HalfExtents)
	desired := p.Pos.Add(p.Up.Mul(s)).Sub(p.Dir.Mul(p.CameraDistance)).Add(right.Mul(s))

	toDesired := desired.Sub(p.Pos)
	result := collision.Resolve(store, p.Pos, mgl32.Vec3{0.2, 0.2, 0.2}, toDesired)
	actual := result.At

	t := cameraUpLerpRate * dt
	if t > 1 {
		t = 1
	}
	p.CameraUp = p.CameraUp.Add(p.Up.Sub(p.CameraUp).Mul(t))

	return actual
}

// TryShoot spawns a bullet from the player's muzzle if the shoot action
// is set and the cooldown has elapsed (supplemented feature 1), resetting
// the cooldown. ok is false if the shot was suppressed.
func (p *Player) TryShoot(muzzleOffset mgl32.Vec3, speed float32) (Bullet, bool) {
	if p.ActionFlags&ActionShoot == 0 || p.ShootCooldown > 0 {
		return Bullet{}, false
	}
	p.ShootCooldown = shootCooldownTime
	origin := p.Pos.Add(muzzleOffset)
	return Bullet{Pos: origin, Vel: p.Dir.Mul(speed), Active: true}, true
}

func avg3(v mgl32.Vec3) float32 {
	return (v[0] + v[1] + v[2]) / 3
}
