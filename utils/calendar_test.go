package utils

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestNextBusinessDay(t *testing.T) {
	cal := NewCalendar(time.Sunday, time.UTC)

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"saturday skips sunday", "2024-03-02", "2024-03-04"},
		{"monday to tuesday", "2024-03-04", "2024-03-05"},
		{"friday to saturday", "2024-03-01", "2024-03-02"},
		{"sunday to monday", "2024-03-03", "2024-03-04"},
		{"month end", "2024-02-29", "2024-03-01"},
		{"year end saturday", "2022-12-31", "2023-01-02"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := cal.NextBusinessDay(mustDate(t, tc.in))
			assert.Equal(t, tc.want, FormatDate(got))
			assert.NotEqual(t, time.Sunday, got.Weekday())
		})
	}
}

func TestNextBusinessDayCustomRule(t *testing.T) {
	cal := NewCalendar(time.Saturday, time.UTC)
	assert.Equal(t, "2024-03-03", FormatDate(cal.NextBusinessDay(mustDate(t, "2024-03-01"))))
	assert.Equal(t, "2024-03-02", FormatDate(NewCalendar(time.Sunday, nil).NextBusinessDay(mustDate(t, "2024-03-01"))))
}

func TestNextBusinessDayAlwaysLater(t *testing.T) {
	cal := NewCalendar(time.Sunday, time.UTC)
	day := mustDate(t, "2024-01-01")
	for i := 0; i < 400; i++ {
		next := cal.NextBusinessDay(day)
		if !next.After(day) {
			t.Fatalf("NextBusinessDay(%s) = %s, want later date", FormatDate(day), FormatDate(next))
		}
		if next.Sub(day) > 48*time.Hour {
			t.Fatalf("NextBusinessDay(%s) = %s skipped more than one day", FormatDate(day), FormatDate(next))
		}
		day = day.AddDate(0, 0, 1)
	}
}

func TestToday(t *testing.T) {
	loc, err := time.LoadLocation("America/Mexico_City")
	require.NoError(t, err)
	cal := NewCalendar(time.Sunday, loc)

	// 03:00 UTC is still the previous evening in Mexico City
	now := time.Date(2024, 3, 5, 3, 0, 0, 0, time.UTC)
	today := cal.Today(now)
	assert.Equal(t, "2024-03-04", FormatDate(today))
	assert.Equal(t, time.UTC, today.Location())
	assert.Equal(t, 0, today.Hour())

	assert.Equal(t, "2024-03-05", FormatDate(NewCalendar(time.Sunday, time.UTC).Today(now)))
}

func TestDateOf(t *testing.T) {
	ts := time.Date(2024, 3, 1, 23, 59, 59, 0, time.FixedZone("x", -6*3600))
	d := DateOf(ts)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), d)
}

func TestParseWeekday(t *testing.T) {
	d, err := ParseWeekday(" Sunday ")
	require.NoError(t, err)
	assert.Equal(t, time.Sunday, d)

	d, err = ParseWeekday("saturday")
	require.NoError(t, err)
	assert.Equal(t, time.Saturday, d)

	_, err = ParseWeekday("domingo")
	assert.Error(t, err)
}

func TestParseDateRejectsGarbage(t *testing.T) {
	_, err := ParseDate("03/01/2024")
	assert.Error(t, err)
	assert.Equal(t, "", FormatDatePtr(nil))
}
