// Package markethours is the NYSE market clock: trading-day arithmetic
// in the exchange zone, including full holidays and half days.
package markethours

import (
	"time"

	"github.com/aristath/whisper/internal/domain"
)

// Zone is the exchange's canonical time zone name.
const Zone = "America/New_York"

// Clock answers trading-day questions for the NYSE.
type Clock struct {
	loc      *time.Location
	holidays map[string]bool
	halfDays map[string]bool
	now      func() time.Time
}

// Full market holidays for the current cycle, ISO dates.
var fullHolidays = []string{
	// 2025
	"2025-01-01", "2025-01-20", "2025-02-17", "2025-04-18",
	"2025-05-26", "2025-06-19", "2025-07-04", "2025-09-01",
	"2025-11-27", "2025-12-25",
	// 2026
	"2026-01-01", "2026-01-19", "2026-02-16", "2026-04-03",
	"2026-05-25", "2026-06-19", "2026-07-03", "2026-09-07",
	"2026-11-26", "2026-12-25",
	// 2027
	"2027-01-01", "2027-01-18", "2027-02-15", "2027-03-26",
	"2027-05-31", "2027-06-18", "2027-07-05", "2027-09-06",
	"2027-11-25", "2027-12-24",
}

// Early closes (13:00 ET). Still trading days for calendar purposes.
var earlyCloses = []string{
	"2025-07-03", "2025-11-28", "2025-12-24",
	"2026-11-27", "2026-12-24",
	"2027-11-26",
}

// NewClock loads the exchange zone. Fails only if the host has no tzdata.
func NewClock() (*Clock, error) {
	loc, err := time.LoadLocation(Zone)
	if err != nil {
		return nil, domain.NewError(domain.ErrConfiguration, "markethours.zone", err)
	}
	c := &Clock{
		loc:      loc,
		holidays: make(map[string]bool, len(fullHolidays)),
		halfDays: make(map[string]bool, len(earlyCloses)),
		now:      time.Now,
	}
	for _, d := range fullHolidays {
		c.holidays[d] = true
	}
	for _, d := range earlyCloses {
		c.halfDays[d] = true
	}
	return c, nil
}

// Location returns the exchange zone.
func (c *Clock) Location() *time.Location { return c.loc }

// IsTradingDay reports whether t falls on a NYSE session day.
func (c *Clock) IsTradingDay(t time.Time) bool {
	t = t.In(c.loc)
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	return !c.holidays[t.Format("2006-01-02")]
}

// IsHalfDay reports whether t is an early-close session.
func (c *Clock) IsHalfDay(t time.Time) bool {
	return c.IsTradingDay(t) && c.halfDays[t.In(c.loc).Format("2006-01-02")]
}

// MarketDay returns the ISO date of t in the exchange zone. The day
// boundary is exchange-zone midnight, so a 23:30 ET run and the next
// morning's run land on different days even under UTC.
func (c *Clock) MarketDay(t time.Time) string {
	return t.In(c.loc).Format("2006-01-02")
}

// LastTradingDay returns the most recent session day at or before t.
func (c *Clock) LastTradingDay(t time.Time) time.Time {
	t = t.In(c.loc)
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
	for !c.IsTradingDay(day) {
		day = day.AddDate(0, 0, -1)
	}
	return day
}

// NextTradingDay returns the first session day strictly after t.
func (c *Clock) NextTradingDay(t time.Time) time.Time {
	t = t.In(c.loc)
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc).AddDate(0, 0, 1)
	for !c.IsTradingDay(day) {
		day = day.AddDate(0, 0, 1)
	}
	return day
}
