// Package clock is the single source of "now" for the pipeline. All wall-clock reasoning
// happens in JST (UTC+9, no DST).
package clock

import (
	"sync"
	"time"
)

// JST is the fixed UTC+9 zone used for every date and deadline.
var JST = time.FixedZone("JST", 9*60*60)

// Clock reports the current instant.
type Clock interface {
	Now() time.Time
}

// System reads the host clock.
type System struct{}

// Now returns the current time in JST.
func (System) Now() time.Time { return time.Now().In(JST) }

// Fixed is a settable clock for tests and replays.
type Fixed struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixed returns a clock pinned at t.
func NewFixed(t time.Time) *Fixed { return &Fixed{t: t.In(JST)} }

// Now returns the pinned instant.
func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

// Set moves the clock to t.
func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	f.t = t.In(JST)
	f.mu.Unlock()
}

// Advance moves the clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

// At builds a JST instant.
func At(year int, month time.Month, day, hour, min, sec int) time.Time {
	return time.Date(year, month, day, hour, min, sec, 0, JST)
}

// Today is the adjusted date function: midnight JST of the current day.
func Today(c Clock) time.Time {
	return Midnight(c.Now())
}

// Midnight truncates t to the start of its JST day.
func Midnight(t time.Time) time.Time {
	t = t.In(JST)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, JST)
}

// MinuteOfDay returns minutes after JST midnight.
func MinuteOfDay(t time.Time) int {
	t = t.In(JST)
	return t.Hour()*60 + t.Minute()
}
