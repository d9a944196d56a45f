package service

import (
	"time"

	"github.com/phrazzld/bankcards-api/internal/domain"
)

// Clock supplies the current instant and the calendar date used for expiry
// checks, which is evaluated in a fixed time zone.
type Clock struct {
	now func() time.Time
	loc *time.Location
}

// NewClock returns a Clock reading the system time. A nil loc means UTC.
func NewClock(loc *time.Location) Clock {
	return NewClockFunc(time.Now, loc)
}

// NewClockFunc returns a Clock backed by now.
func NewClockFunc(now func() time.Time, loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return Clock{now: now, loc: loc}
}

// Now returns the current instant in UTC.
func (c Clock) Now() time.Time {
	if c.now == nil {
		return time.Now().UTC()
	}
	return c.now().UTC()
}

// Today returns the current calendar date in the clock's time zone.
func (c Clock) Today() time.Time {
	return domain.Today(c.Now(), c.loc)
}
