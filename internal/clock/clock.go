package clock

import "time"

// Clock schedules deferred work. Components take a Clock so debounce and
// delay windows can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc call.
type Timer interface {
	// Stop prevents the call from firing. It reports whether the call was
	// still pending.
	Stop() bool
}

// Real is the wall clock.
type Real struct{}

// New returns the wall clock.
func New() Clock {
	return Real{}
}

func (Real) Now() time.Time {
	return time.Now()
}

func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
