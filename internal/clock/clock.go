package clock

import (
	"sync"
	"time"
)

// Clock provides the current time to reward computations
type Clock interface {
	Now() time.Time
}

// System is the wall clock
type System struct{}

// Now returns the current UTC time
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Manual is a settable clock used by tests and offline tooling
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual creates a manual clock frozen at t
func NewManual(t time.Time) *Manual {
	return &Manual{now: t}
}

// Now returns the frozen time
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to t
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new time
func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	return m.now
}

// Elapsed returns to - from, clamped at zero when the clocks disagree
func Elapsed(from, to time.Time) time.Duration {
	d := to.Sub(from)
	if d < 0 {
		return 0
	}
	return d
}

// ElapsedSeconds returns the whole seconds between from and to, floored
func ElapsedSeconds(from, to time.Time) int64 {
	return int64(Elapsed(from, to) / time.Second)
}

// Capped returns min(d, max)
func Capped(d, max time.Duration) time.Duration {
	if d > max {
		return max
	}
	return d
}
