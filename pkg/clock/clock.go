// Package clock abstracts time.Now so services that reason about
// "now" (punch capture, OTP expiry, payroll period resolution) can be
// tested with a frozen clock.
package clock

import "time"

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// Real returns the system clock.
func Real() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed returns a clock frozen at t. For tests.
func Fixed(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

// FixedClock is a settable clock for tests.
type FixedClock struct {
	t time.Time
}

func (c *FixedClock) Now() time.Time {
	return c.t
}

// Set moves the frozen clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.t = t
}

// Advance moves the frozen clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}
