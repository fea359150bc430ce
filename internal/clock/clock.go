package clock

import (
	"sync"
	"time"

	"lwwdict/internal/lww"
)

// Clock issues strictly increasing timestamps.
// It is safe for concurrent use.
type Clock struct {
	mu   sync.Mutex
	last lww.Timestamp
	now  func() time.Time
}

// New creates a clock backed by the system wall clock.
func New() *Clock {
	return NewWithSource(time.Now)
}

// NewWithSource creates a clock reading wall time from now.
func NewWithSource(now func() time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the current time in milliseconds, or one past the previous
// timestamp when the wall clock has not moved forward.
func (c *Clock) Now() lww.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := lww.Timestamp(c.now().UnixMilli())
	if ts <= c.last {
		ts = c.last + 1
	}
	c.last = ts
	return ts
}

// Observe advances the clock so that later calls to Now return values
// strictly greater than ts.
func (c *Clock) Observe(ts lww.Timestamp) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ts > c.last {
		c.last = ts
	}
}

// ToTime converts a dictionary timestamp back to wall time.
func ToTime(ts lww.Timestamp) time.Time {
	return time.UnixMilli(int64(ts))
}
