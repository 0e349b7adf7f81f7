package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Weekday is the stored label of a recurring trip's day.
type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
	Sunday    Weekday = "sunday"
)

// Weekdays lists the labels in calendar order starting on Monday.
var Weekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

var weekdayMap = map[Weekday]time.Weekday{
	Monday:    time.Monday,
	Tuesday:   time.Tuesday,
	Wednesday: time.Wednesday,
	Thursday:  time.Thursday,
	Friday:    time.Friday,
	Saturday:  time.Saturday,
	Sunday:    time.Sunday,
}

// ParseWeekday accepts exactly one of the seven lowercase labels.
func ParseWeekday(s string) (Weekday, error) {
	w := Weekday(s)
	if _, ok := weekdayMap[w]; !ok {
		return "", fmt.Errorf("invalid day of week: %q", s)
	}
	return w, nil
}

// TimeWeekday maps the label onto the standard library weekday.
func (w Weekday) TimeWeekday() (time.Weekday, bool) {
	d, ok := weekdayMap[w]
	return d, ok
}

// Abbrev returns the three letter prefix used in trip identifiers.
func (w Weekday) Abbrev() string {
	s := string(w)
	if len(s) > 3 {
		return s[:3]
	}
	return s
}

// TimeOfDay is an hour/minute pair.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" with hour in 0..23 and minute in 0..59.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: expected HH:MM", s)
	}
	hour, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	minute, err := strconv.Atoi(strings.TrimSpace(m))
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("time of day out of range: %q", s)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// On combines the calendar date of day with the time of day in loc.
func (t TimeOfDay) On(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, loc)
}
