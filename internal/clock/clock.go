package clock

import (
	"fmt"
	"time"
)

// Calendar converts wall-clock time into calendar day strings for a fixed
// UTC offset. Daily stats follow the community's local day, not UTC.
type Calendar struct {
	loc *time.Location
}

// NewCalendar creates a calendar for the given UTC offset in hours.
func NewCalendar(offsetHours int) *Calendar {
	name := fmt.Sprintf("UTC%+d", offsetHours)
	return &Calendar{loc: time.FixedZone(name, offsetHours*3600)}
}

// DayOf returns the calendar day of t as YYYYMMDD in the calendar's zone.
func (c *Calendar) DayOf(t time.Time) string {
	return t.In(c.loc).Format("20060102")
}

// Today returns the current calendar day as YYYYMMDD.
func (c *Calendar) Today() string {
	return c.DayOf(time.Now())
}

// Location returns the calendar's fixed zone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}
