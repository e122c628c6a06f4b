// Package markethours models the CME Globex session for COMEX gold
// futures: Sunday 18:00 to Friday 17:00 New York time, with a daily
// 17:00-18:00 maintenance break and full-day exchange holidays.
package markethours

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// Session boundaries in exchange local time.
const (
	OpenHour  = 18 // session reopens
	CloseHour = 17 // session closes for the daily break

	// A session opening at 18:00 belongs to the next trade date.
	tradeDateShift = 24 - OpenHour
)

// Calendar answers open/closed questions for one exchange session.
type Calendar struct {
	loc      *time.Location
	holidays map[string]bool
}

// COMEX returns the gold futures calendar.
func COMEX() *Calendar {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		// tzdata is embedded, so this only fails on a corrupt build.
		panic(fmt.Sprintf("markethours: %v", err))
	}
	c := &Calendar{loc: loc, holidays: make(map[string]bool, len(cmeHolidays))}
	for _, d := range cmeHolidays {
		c.holidays[d] = true
	}
	return c
}

// Location returns the exchange time zone.
func (c *Calendar) Location() *time.Location { return c.loc }

// TradeDate returns the trade date t belongs to, as YYYY-MM-DD.
func (c *Calendar) TradeDate(t time.Time) string {
	return t.In(c.loc).Add(tradeDateShift * time.Hour).Format("2006-01-02")
}

// IsHoliday reports whether t's trade date is a full exchange holiday.
func (c *Calendar) IsHoliday(t time.Time) bool {
	return c.holidays[c.TradeDate(t)]
}

// IsOpen reports whether the gold session is trading at t.
func (c *Calendar) IsOpen(t time.Time) bool {
	local := t.In(c.loc)
	wd := local.Add(tradeDateShift * time.Hour).Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	if c.IsHoliday(t) {
		return false
	}
	return local.Hour() != CloseHour
}

// NextOpen returns the first session open strictly after t.
func (c *Calendar) NextOpen(t time.Time) time.Time {
	local := t.In(c.loc)
	for i := 0; i < 14; i++ {
		d := local.AddDate(0, 0, i)
		open := time.Date(d.Year(), d.Month(), d.Day(), OpenHour, 0, 0, 0, c.loc)
		if open.After(local) && c.IsOpen(open) {
			return open
		}
	}
	// Unreachable with the holiday table; fall back to tomorrow's open.
	d := local.AddDate(0, 0, 1)
	return time.Date(d.Year(), d.Month(), d.Day(), OpenHour, 0, 0, 0, c.loc)
}

// NextClose returns the next daily close at or after t.
func (c *Calendar) NextClose(t time.Time) time.Time {
	local := t.In(c.loc)
	cl := time.Date(local.Year(), local.Month(), local.Day(), CloseHour, 0, 0, 0, c.loc)
	if !cl.After(local) {
		d := local.AddDate(0, 0, 1)
		cl = time.Date(d.Year(), d.Month(), d.Day(), CloseHour, 0, 0, 0, c.loc)
	}
	return cl
}

// Status returns a human-readable session status.
func (c *Calendar) Status(t time.Time) string {
	if c.IsOpen(t) {
		return fmt.Sprintf("Market Open, closes in %s", fmtDur(c.NextClose(t).Sub(t)))
	}
	next := c.NextOpen(t)
	local := next.In(c.loc)
	return fmt.Sprintf("Market Closed, opens %s %s ET (%s)",
		local.Weekday().String()[:3], local.Format("15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
