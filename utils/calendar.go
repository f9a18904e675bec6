package utils

import (
	"fmt"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// Calendar computes business days for a six-day working week.
// Dates are calendar days carried as midnight UTC; Location only decides which day "now" falls on.
type Calendar struct {
	NonWorkingDay time.Weekday
	Location      *time.Location
}

func NewCalendar(nonWorkingDay time.Weekday, loc *time.Location) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{NonWorkingDay: nonWorkingDay, Location: loc}
}

// DateOf drops the time of day from t, keeping the calendar day as seen in t's own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the calendar day of now in the calendar's location.
func (c Calendar) Today(now time.Time) time.Time {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	return DateOf(now.In(loc))
}

// NextBusinessDay adds one day to date, and one more if that lands on the non-working day.
func (c Calendar) NextBusinessDay(date time.Time) time.Time {
	next := DateOf(date).AddDate(0, 0, 1)
	if next.Weekday() == c.NonWorkingDay {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (c Calendar) IsBusinessDay(date time.Time) bool {
	return DateOf(date).Weekday() != c.NonWorkingDay
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday accepts english weekday names in any case, e.g. "Sunday".
func ParseWeekday(s string) (time.Weekday, error) {
	d, ok := weekdays[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return time.Sunday, fmt.Errorf("invalid weekday %q", s)
	}
	return d, nil
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err
	}
	return DateOf(t), nil
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// FormatDatePtr formats a nullable date, returning "" for nil.
func FormatDatePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return FormatDate(*t)
}
