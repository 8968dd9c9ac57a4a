// Package system provides the clocks used to timestamp progress events.
package system

import "time"

// Clock reads UTC wall time.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always reports the same instant. Tests use it to pin event timestamps.
type Fixed time.Time

// Now returns the pinned instant in UTC.
func (f Fixed) Now() time.Time {
	return time.Time(f).UTC()
}
