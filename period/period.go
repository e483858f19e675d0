// Package period defines the calendar-month bucket that scopes all survey
// records, and the clock it is computed from.
package period

import (
	"sync"
	"time"
)

// Layout is the format of a period key, e.g. "2026-10".
const Layout = "2006-01"

// Clock abstracts the wall clock so month boundaries can be tested.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Real returns a Clock backed by time.Now.
func Real() Clock { return realClock{} }

// Fixed is a Clock that returns the same instant until moved with Set.
type Fixed struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixed returns a Fixed clock reading t.
func NewFixed(t time.Time) *Fixed { return &Fixed{t: t} }

// Now returns the fixed time.
func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

// Set moves the clock to t.
func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	f.t = t
	f.mu.Unlock()
}

// Key returns the period key of t in loc. A nil loc means UTC.
func Key(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(Layout)
}

// Current returns the period key for clock's current time in loc.
func Current(clock Clock, loc *time.Location) string {
	return Key(clock.Now(), loc)
}
