package presence

import "time"

// TimeSource provides the current time used for expiry decisions.
type TimeSource interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }
