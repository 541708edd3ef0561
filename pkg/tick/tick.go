// Package tick implements the monotonic simulation clock (C11) shared by
// the server and client tick loops.
package tick

// Clock is a monotonically increasing 64-bit tick counter. It never
// wraps in practice (2^64 ticks at 60Hz outlives any session).
type Clock struct {
	current uint64
}

// NewClock starts a clock at tick 0.
func NewClock() *Clock {
	return &Clock{}
}

// Now returns the current tick without advancing it.
func (c *Clock) Now() uint64 {
	return c.current
}

// Advance moves the clock forward by one tick and returns the new value.
func (c *Clock) Advance() uint64 {
	c.current++
	return c.current
}

// Reset snaps the clock to an externally supplied value, used by the
// client when reconciliation instructs it to adopt the server's tick
// (spec §4.3, "local tick is snapped to that value").
func (c *Clock) Reset(to uint64) {
	c.current = to
}

// Accumulator paces a fixed-rate loop against wall-clock dt, independent
// of the tick counter: both the command rate (client) and the snapshot
// rate (server) run on one of these against their own 1/rate threshold.
type Accumulator struct {
	period    float32 // seconds per step, 1/rate
	elapsed   float32
}

// NewAccumulator builds an accumulator that fires once every 1/rateHz
// seconds.
func NewAccumulator(rateHz float32) *Accumulator {
	return &Accumulator{period: 1 / rateHz}
}

// Tick advances the accumulator by dt seconds and reports how many whole
// periods have elapsed, consuming them. Ordinarily 0 or 1; more than 1
// only if the caller's loop has fallen badly behind.
func (a *Accumulator) Tick(dt float32) int {
	a.elapsed += dt
	steps := 0
	for a.elapsed >= a.period {
		a.elapsed -= a.period
		steps++
	}
	return steps
}

// Period returns the accumulator's fixed step period in seconds.
func (a *Accumulator) Period() float32 {
	return a.period
}
