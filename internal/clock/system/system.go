// Package system provides the clocks that date extracted records, archived pages
// and insert events.
package system

import "time"

// Clock implements crawler.Clock. The zero value follows the wall clock; a clock
// built with Fixed always reports the same instant.
type Clock struct {
	at time.Time
}

// New returns a wall clock.
func New() *Clock {
	return &Clock{}
}

// Fixed returns a clock pinned to at, for replaying a crawl under a known date.
func Fixed(at time.Time) *Clock {
	return &Clock{at: at.UTC()}
}

// Now returns the current time in UTC.
func (c Clock) Now() time.Time {
	if !c.at.IsZero() {
		return c.at
	}
	return time.Now().UTC()
}
