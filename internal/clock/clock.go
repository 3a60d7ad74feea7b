package clock

import "time"

// Clock provides a testable time source.
//
// Anything that compares against wall-clock time (JWT expiry, telemetry
// timestamps, trace ids) reads it through a Clock.
type Clock interface {
	Now() time.Time
}

// Real is a production Clock implementation backed by time.Now.
type Real struct{}

// Now implements Clock.
func (Real) Now() time.Time { return time.Now() }
