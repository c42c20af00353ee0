package calendar

import (
	"testing"
	"time"
)

func mustLoc(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

// TestIsMarketDay_2026Holidays checks IsMarketDay against the published
// NYSE holiday list for 2026.
func TestIsMarketDay_2026Holidays(t *testing.T) {
	c := New()
	loc := mustLoc(t)

	closed := []time.Time{
		time.Date(2026, time.January, 1, 12, 0, 0, 0, loc),   // New Year's Day (Thu)
		time.Date(2026, time.January, 19, 12, 0, 0, 0, loc),  // MLK Day (3rd Mon Jan)
		time.Date(2026, time.February, 16, 12, 0, 0, 0, loc), // Presidents' Day (3rd Mon Feb)
		time.Date(2026, time.April, 3, 12, 0, 0, 0, loc),     // Good Friday
		time.Date(2026, time.May, 25, 12, 0, 0, 0, loc),      // Memorial Day (last Mon May)
		time.Date(2026, time.June, 19, 12, 0, 0, 0, loc),     // Juneteenth (Fri)
		time.Date(2026, time.July, 3, 12, 0, 0, 0, loc),      // Independence Day observed (Fri, since July 4 is Sat)
		time.Date(2026, time.September, 7, 12, 0, 0, 0, loc), // Labor Day (1st Mon Sep)
		time.Date(2026, time.November, 26, 12, 0, 0, 0, loc), // Thanksgiving (4th Thu Nov)
		time.Date(2026, time.December, 25, 12, 0, 0, 0, loc), // Christmas Day (Fri)
	}
	for _, d := range closed {
		if c.IsMarketDay(d) {
			t.Errorf("expected %s to be a holiday, got market day", d.Format("2006-01-02 Mon"))
		}
	}

	open := []time.Time{
		time.Date(2026, time.January, 2, 12, 0, 0, 0, loc),
		time.Date(2026, time.March, 16, 12, 0, 0, 0, loc),
		time.Date(2026, time.July, 6, 12, 0, 0, 0, loc),
	}
	for _, d := range open {
		if !c.IsMarketDay(d) {
			t.Errorf("expected %s to be a market day", d.Format("2006-01-02 Mon"))
		}
	}
}

func TestIsMarketDay_Weekend(t *testing.T) {
	c := New()
	loc := mustLoc(t)
	sat := time.Date(2026, time.July, 25, 12, 0, 0, 0, loc)
	sun := time.Date(2026, time.July, 26, 12, 0, 0, 0, loc)
	if c.IsMarketDay(sat) || c.IsMarketDay(sun) {
		t.Errorf("weekend days must not be market days")
	}
}

func TestAutoDetectSession(t *testing.T) {
	c := New()
	loc := mustLoc(t)

	cases := []struct {
		t    time.Time
		want Session
		ok   bool
	}{
		{time.Date(2026, 7, 29, 10, 0, 0, 0, loc), SessionAM, true},
		{time.Date(2026, 7, 29, 13, 0, 0, 0, loc), SessionPM, true},
		{time.Date(2026, 7, 29, 8, 0, 0, 0, loc), "", false},
		{time.Date(2026, 7, 29, 17, 0, 0, 0, loc), "", false},
	}
	for _, tc := range cases {
		got, ok := c.AutoDetectSession(tc.t)
		if got != tc.want || ok != tc.ok {
			t.Errorf("AutoDetectSession(%s) = (%s, %v), want (%s, %v)", tc.t, got, ok, tc.want, tc.ok)
		}
	}
}

func TestFirstMarketDayOfWeek_SkipsHoliday(t *testing.T) {
	c := New()
	loc := mustLoc(t)
	// Week of 2026-01-19 (Mon) is MLK Day; first market day should be Tue Jan 20.
	reference := time.Date(2026, time.January, 21, 0, 0, 0, 0, loc)
	want := time.Date(2026, time.January, 20, 0, 0, 0, 0, loc)
	got := c.FirstMarketDayOfWeek(reference)
	if !got.Equal(want) {
		t.Errorf("FirstMarketDayOfWeek = %s, want %s", got.Format("2006-01-02"), want.Format("2006-01-02"))
	}
}

func TestNextFire_SkipsWeekendAndHoliday(t *testing.T) {
	c := New()
	loc := mustLoc(t)
	// Friday July 3, 2026 is the observed Independence Day holiday.
	after := time.Date(2026, time.July, 2, 15, 0, 0, 0, loc)
	next := c.NextFire(JobSpec{Hour: 9, Minute: 0}, after)
	want := time.Date(2026, time.July, 6, 9, 0, 0, 0, loc) // Monday
	if !next.Equal(want) {
		t.Errorf("NextFire = %s, want %s", next.Format("2006-01-02 15:04"), want.Format("2006-01-02 15:04"))
	}
}
