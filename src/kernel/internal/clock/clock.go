package clock

import (
	"sync"
	"time"

	"go.uber.org/fx"
)

// Module provides the wall clock.
var Module = fx.Provide(New)

// Clock abstracts reading the current time so expiry logic can be tested without sleeping.
type Clock interface {
	// Now returns the current local time.
	Now() time.Time
	// Since returns the time elapsed since t.
	Since(t time.Time) time.Duration
}

type clock struct{}

// New creates a new instance of Clock.
func New() Clock {
	return clock{}
}

func (clock) Now() time.Time { return time.Now() }

func (clock) Since(t time.Time) time.Duration { return time.Since(t) }

// Manual is a Clock that only moves when told to.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual creates a Manual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Since(t time.Time) time.Duration {
	return m.Now().Sub(t)
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}
