// Package clock supplies the time source for audit stamps and read-time flags.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Real returns the wall clock.
func Real() Clock { return realClock{} }

// Fixed always reports t. Used by tests.
type Fixed time.Time

func (f Fixed) Now() time.Time { return time.Time(f) }
