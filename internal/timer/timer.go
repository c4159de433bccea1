// Package timer implements the engine's countdown primitive. Timers are
// driven by explicit elapsed durations rather than sampling a wall clock,
// which keeps the engine deterministic and easy to drive from tests.
package timer

// Timer is a monotonic countdown with a latched expiry flag. It never reads
// the clock itself; callers advance it with Update.
type Timer struct {
	intervalMS int64
	remainingMS int64
	expired     bool
}

// New returns a Timer armed with the given interval. An interval of zero
// means "always expired" — used before a protocol is installed.
func New(intervalMS int64) *Timer {
	t := &Timer{}
	t.Init(intervalMS)
	return t
}

// Init (re)configures the interval and rearms the timer.
func (t *Timer) Init(intervalMS int64) {
	t.intervalMS = intervalMS
	t.Reset()
}

// Reset restores the full interval and clears Expired, except that a timer
// whose interval is zero or negative stays expired.
func (t *Timer) Reset() {
	t.remainingMS = t.intervalMS
	t.expired = t.remainingMS <= 0
}

// Update advances the timer by elapsedMS, latching Expired once remaining
// drops to zero or below. Repeated updates past expiry are safe: the flag
// simply stays latched until Reset.
func (t *Timer) Update(elapsedMS int64) {
	t.remainingMS -= elapsedMS
	if t.remainingMS <= 0 {
		t.expired = true
	}
}

// Expired reports whether the timer has counted down to zero since the last Reset.
func (t *Timer) Expired() bool {
	return t.expired
}

// IntervalMS returns the configured interval.
func (t *Timer) IntervalMS() int64 {
	return t.intervalMS
}

// RemainingMS returns the time left before expiry, which may be negative.
func (t *Timer) RemainingMS() int64 {
	return t.remainingMS
}
