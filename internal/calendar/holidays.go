package calendar

import (
	"sync"
	"time"
)

// holidaySet is the set of observed market-closed dates (exchange-local,
// midnight) for one calendar year, keyed by date-only time.Time.
type holidaySet map[time.Time]bool

// holidayCacheKey scopes a memoized set to the *time.Location its keys were
// built in: time.Time map keys only match when they share that pointer, and
// every Calendar loads its own copy of America/New_York.
type holidayCacheKey struct {
	loc  *time.Location
	year int
}

var (
	holidayCacheMu sync.Mutex
	holidayCache   = map[holidayCacheKey]holidaySet{}
)

// holidays returns (and memoizes) the observed NYSE holiday set for year.
func (c *Calendar) holidays(year int) holidaySet {
	holidayCacheMu.Lock()
	defer holidayCacheMu.Unlock()

	key := holidayCacheKey{loc: c.loc, year: year}
	if set, ok := holidayCache[key]; ok {
		return set
	}

	set := holidaySet{}
	add := func(t time.Time) {
		set[observedDate(t, c.loc)] = true
	}

	add(date(year, time.January, 1, c.loc))           // New Year's Day
	add(nthWeekday(year, time.January, time.Monday, 3, c.loc))   // MLK Day
	add(nthWeekday(year, time.February, time.Monday, 3, c.loc))  // Presidents' Day
	add(goodFriday(year, c.loc))                                  // Good Friday
	add(lastWeekday(year, time.May, time.Monday, c.loc))          // Memorial Day
	add(juneteenth(year, c.loc))                                  // Juneteenth
	add(date(year, time.July, 4, c.loc))                          // Independence Day
	add(nthWeekday(year, time.September, time.Monday, 1, c.loc))  // Labor Day
	add(nthWeekday(year, time.November, time.Thursday, 4, c.loc)) // Thanksgiving
	add(date(year, time.December, 25, c.loc))                     // Christmas Day

	holidayCache[key] = set
	return set
}

func date(year int, month time.Month, day int, loc *time.Location) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

// observedDate applies the weekend-observation rule: a holiday that falls
// on Saturday is observed the prior Friday; one that falls on Sunday is
// observed the following Monday.
func observedDate(t time.Time, loc *time.Location) time.Time {
	switch t.Weekday() {
	case time.Saturday:
		return t.AddDate(0, 0, -1)
	case time.Sunday:
		return t.AddDate(0, 0, 1)
	default:
		return t
	}
}

// nthWeekday returns the nth occurrence (1-indexed) of weekday in month/year.
func nthWeekday(year int, month time.Month, weekday time.Weekday, n int, loc *time.Location) time.Time {
	first := date(year, month, 1, loc)
	offset := int(weekday) - int(first.Weekday())
	if offset < 0 {
		offset += 7
	}
	return first.AddDate(0, 0, offset+7*(n-1))
}

// lastWeekday returns the last occurrence of weekday in month/year.
func lastWeekday(year int, month time.Month, weekday time.Weekday, loc *time.Location) time.Time {
	// Start from the first day of the next month and walk back.
	nextMonth := date(year, month, 1, loc).AddDate(0, 1, 0)
	last := nextMonth.AddDate(0, 0, -1)
	offset := int(last.Weekday()) - int(weekday)
	if offset < 0 {
		offset += 7
	}
	return last.AddDate(0, 0, -offset)
}

func juneteenth(year int, loc *time.Location) time.Time {
	return date(year, time.June, 19, loc)
}

// goodFriday computes the Friday before Easter Sunday using the anonymous
// Gregorian algorithm (Meeus/Jones/Butcher).
func goodFriday(year int, loc *time.Location) time.Time {
	a := year % 19
	b := year / 100
	cc := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := cc / 4
	k := cc % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1

	easter := date(year, time.Month(month), day, loc)
	return easter.AddDate(0, 0, -2)
}
