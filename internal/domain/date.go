package domain

import "time"

// DateLayout is the wire format of calendar dates such as card expiry dates.
const DateLayout = "2006-01-02"

// DateOnly truncates t to its calendar date, expressed as midnight UTC.
// The year, month and day are taken from t's own location.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current calendar date in loc as midnight UTC.
// A nil loc means UTC.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return DateOnly(now.In(loc))
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, NewFieldError("parse date", "expiryDate", ErrInvalidExpiry,
			"expected date in YYYY-MM-DD format")
	}
	return t, nil
}
