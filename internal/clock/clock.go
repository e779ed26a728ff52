// Package clock measures time elapsed since the loop epoch.
package clock

import "time"

// EpochSource provides the instant at which the loop started.
type EpochSource interface {
	Epoch() time.Time
}

// Fixed is an epoch that never changes.
type Fixed time.Time

// Epoch returns the fixed instant.
func (f Fixed) Epoch() time.Time {
	return time.Time(f)
}

// Clock reports elapsed time relative to an epoch source.
type Clock struct {
	source EpochSource
	now    func() time.Time
}

// New creates a clock. A nil now uses time.Now.
func New(source EpochSource, now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{source: source, now: now}
}

// Epoch returns the current epoch.
func (c *Clock) Epoch() time.Time {
	return c.source.Epoch()
}

// Elapsed returns the time since the epoch, never negative.
func (c *Clock) Elapsed() time.Duration {
	d := c.now().Sub(c.source.Epoch())
	if d < 0 {
		return 0
	}
	return d
}
