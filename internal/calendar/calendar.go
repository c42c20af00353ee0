// Package calendar implements the market clock: session classification,
// NYSE holiday computation, and next-fire resolution, all scoped to
// America/New_York.
package calendar

import (
	"fmt"
	"time"

	"jax-trading-assistant/marketwire/internal/domain"
)

// Session is an intraday evaluation epoch, re-exported from domain so every
// package compares against one canonical set of session values.
type Session = domain.Session

const (
	SessionPre  = domain.SessionPre
	SessionAM   = domain.SessionAM
	SessionMid  = domain.SessionMid
	SessionPM   = domain.SessionPM
	SessionPost = domain.SessionPost
)

// JobSpec describes a recurring time-of-day job gated by market-day status.
type JobSpec struct {
	Hour   int
	Minute int
}

// Calendar answers market-day and session questions in America/New_York.
type Calendar struct {
	loc *time.Location
}

// New creates a Calendar. Panics if the America/New_York zone database
// entry is unavailable, since every comparison in this package depends on
// it.
func New() *Calendar {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic(fmt.Sprintf("calendar: load America/New_York: %v", err))
	}
	return &Calendar{loc: loc}
}

// Location returns the exchange timezone.
func (c *Calendar) Location() *time.Location { return c.loc }

// Today classifies t (converted to exchange-local time) into its trading
// day (midnight exchange-local) and session.
func (c *Calendar) Today(t time.Time) (tradingDay time.Time, session Session) {
	local := t.In(c.loc)
	tradingDay = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
	session = c.sessionFor(local)
	return tradingDay, session
}

func (c *Calendar) sessionFor(local time.Time) Session {
	minutesOfDay := local.Hour()*60 + local.Minute()
	switch {
	case minutesOfDay < 9*60+30:
		return SessionPre
	case minutesOfDay < 12*60:
		return SessionAM
	case minutesOfDay < 14*60+30:
		return SessionMid
	case minutesOfDay < 16*60+30:
		return SessionPM
	default:
		return SessionPost
	}
}

// AutoDetectSession classifies a manual run without an explicit session:
// AM in [09:30,12:00), PM in [12:00,16:30), and "" (caller must specify)
// otherwise.
func (c *Calendar) AutoDetectSession(t time.Time) (Session, bool) {
	local := t.In(c.loc)
	minutesOfDay := local.Hour()*60 + local.Minute()
	switch {
	case minutesOfDay >= 9*60+30 && minutesOfDay < 12*60:
		return SessionAM, true
	case minutesOfDay >= 12*60 && minutesOfDay < 16*60+30:
		return SessionPM, true
	default:
		return "", false
	}
}

// IsMarketDay reports whether date (any time-of-day; only the date part is
// used, in exchange-local terms) is a trading day: not a weekend, not an
// observed holiday.
func (c *Calendar) IsMarketDay(date time.Time) bool {
	local := date.In(c.loc)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}
	day := dateOnly(local, c.loc)
	return !c.holidays(local.Year())[day]
}

// FirstMarketDayOfWeek returns the earliest non-holiday weekday in the ISO
// week containing reference.
func (c *Calendar) FirstMarketDayOfWeek(reference time.Time) time.Time {
	local := reference.In(c.loc)
	// ISO week starts Monday; back up to it.
	offset := int(local.Weekday()) - int(time.Monday)
	if offset < 0 {
		offset += 7
	}
	monday := dateOnly(local, c.loc).AddDate(0, 0, -offset)
	for i := 0; i < 7; i++ {
		day := monday.AddDate(0, 0, i)
		if c.IsMarketDay(day) {
			return day
		}
	}
	// Unreachable in practice (a week can't be all holidays), but return
	// Monday rather than panic if it somehow happens.
	return monday
}

// NextFire returns the next Instant at or after `after` when job should run
// on a market day, searching forward up to 14 days.
func (c *Calendar) NextFire(job JobSpec, after time.Time) time.Time {
	local := after.In(c.loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), job.Hour, job.Minute, 0, 0, c.loc)
	if candidate.Before(local) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	for i := 0; i < 14; i++ {
		if c.IsMarketDay(candidate) {
			return candidate
		}
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

func dateOnly(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
