// Package clock abstracts wall time for token expiry and login throttling.
package clock

import "time"

// Clock tells the time
type Clock interface {
	Now() time.Time
}

// Func adapts a function to Clock
type Func func() time.Time

func (f Func) Now() time.Time {
	return f()
}

// New returns the system clock in UTC
func New() Clock {
	return Func(func() time.Time {
		return time.Now().UTC()
	})
}
