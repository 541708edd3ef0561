// Package interp implements remote-player interpolation (C10): a bounded
// ring of received snapshots, blended for rendering between the oldest
// buffered sample and its successor.
package interp

import "github.com/go-gl/mathgl/mgl32"

// Capacity bounds the remote-sample ring (§4.4, "capacity >= 40").
const Capacity = 40

// minBuffered is how many samples must be queued before interpolation
// starts, tolerating one dropped packet without stalling.
const minBuffered = 3

// Sample is one remote player's state as carried by a GAME_STATE_SNAPSHOT
// remote-player-block.
type Sample struct {
	Tick        uint64
	Pos         mgl32.Vec3
	Dir         mgl32.Vec3
	Vel         mgl32.Vec3
	Up          mgl32.Vec3
	Quat        mgl32.Quat
	ActionFlags uint32
	Rolling     bool
}

// Interpolator blends consecutive samples for one remote player. Action
// bitmask and rolling flag are inherited from the tail sample (step-wise,
// not blended) so animation-state transitions stay deterministic.
type Interpolator struct {
	period  float32 // 1/SR
	buf     []Sample
	elapsed float32
	started bool
}

// New builds an interpolator paced against the server's snapshot rate.
func New(snapshotRateHz float32) *Interpolator {
	return &Interpolator{period: 1 / snapshotRateHz}
}

// Push enqueues a newly received sample, dropping the oldest once the
// ring exceeds Capacity.
func (it *Interpolator) Push(s Sample) {
	it.buf = append(it.buf, s)
	if len(it.buf) > Capacity {
		it.buf = it.buf[len(it.buf)-Capacity:]
	}
	if !it.started && len(it.buf) >= minBuffered {
		it.started = true
	}
}

// Advance moves the blend timer forward by dt, consuming the tail sample
// each time a full period elapses, as long as a successor remains
// buffered to blend toward.
func (it *Interpolator) Advance(dt float32) {
	if !it.started {
		return
	}
	it.elapsed += dt
	for it.elapsed >= it.period && len(it.buf) > 2 {
		it.buf = it.buf[1:]
		it.elapsed -= it.period
	}
}

// State returns the renderer-visible blended sample, and false if
// interpolation hasn't started yet or fewer than two samples are
// buffered (nothing to blend toward).
func (it *Interpolator) State() (Sample, bool) {
	if !it.started || len(it.buf) < 2 {
		return Sample{}, false
	}
	tail, next := it.buf[0], it.buf[1]
	t := it.elapsed / it.period
	if t > 1 {
		t = 1
	}

	return Sample{
		Tick:        tail.Tick,
		Pos:         lerpVec(tail.Pos, next.Pos, t),
		Dir:         lerpVec(tail.Dir, next.Dir, t),
		Vel:         lerpVec(tail.Vel, next.Vel, t),
		Up:          lerpVec(tail.Up, next.Up, t),
		Quat:        mgl32.QuatSlerp(tail.Quat, next.Quat, t),
		ActionFlags: tail.ActionFlags,
		Rolling:     tail.Rolling,
	}, true
}

// Buffered reports how many samples are currently queued.
func (it *Interpolator) Buffered() int {
	return len(it.buf)
}

func lerpVec(a, b mgl32.Vec3, t float32) mgl32.Vec3 {
	return a.Add(b.Sub(a).Mul(t))
}
