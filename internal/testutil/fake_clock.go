package testutil

import "time"

// FixedClock is a domain.Clock that always reports the same instant, so
// reconciler/task tests can assert on "today" without racing time.Now.
type FixedClock struct {
	At time.Time
}

func NewFixedClock(at time.Time) FixedClock { return FixedClock{At: at} }

func (c FixedClock) Now() time.Time { return c.At }
