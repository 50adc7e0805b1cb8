package scheduling

import (
	"errors"
	"strings"
	"time"
)

// ErrBadDate indicates a date string no supported layout could parse.
var ErrBadDate = errors.New("scheduling: unparseable date")

// ParseDate accepts ISO (2006-01-02), Brazilian (02/01/2006) and short
// day/month (02/01) forms. Short forms resolve to the next occurrence of
// that day relative to today.
func ParseDate(value string, today time.Time) (time.Time, error) {
	cleaned := strings.TrimSpace(value)
	loc := today.Location()

	if t, err := time.ParseInLocation("2006-01-02", cleaned, loc); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("02/01/2006", cleaned, loc); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("02/01", cleaned, loc); err == nil {
		candidate := time.Date(today.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
		if candidate.Before(time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc)) {
			candidate = candidate.AddDate(1, 0, 0)
		}
		return candidate, nil
	}
	return time.Time{}, ErrBadDate
}

// ParseDateTime accepts "2006-01-02 15:04" in the given location.
func ParseDateTime(value string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02 15:04", strings.TrimSpace(value), loc)
	if err != nil {
		return time.Time{}, ErrBadDate
	}
	return t, nil
}
