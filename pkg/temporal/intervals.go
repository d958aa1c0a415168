// Package temporal splits a date window into calendar periods and measures
// time deltas between acquisition dates.
package temporal

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the date format used for interval bounds.
const DateLayout = "2006-01-02"

var (
	ErrInvalidFrequency = errors.New("invalid frequency")
	ErrInvalidWindow    = errors.New("end date precedes start date")
)

// Frequency is a calendar period length.
type Frequency string

const (
	Daily     Frequency = "D"
	Weekly    Frequency = "W"
	Monthly   Frequency = "M"
	Quarterly Frequency = "Q"
	Yearly    Frequency = "Y"
)

// ParseFrequency accepts D, W, M, Q, Y (or A) and their long forms, case-insensitively.
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "D", "DAY", "DAILY":
		return Daily, nil
	case "W", "WEEK", "WEEKLY":
		return Weekly, nil
	case "M", "MONTH", "MONTHLY":
		return Monthly, nil
	case "Q", "QUARTER", "QUARTERLY":
		return Quarterly, nil
	case "Y", "A", "YEAR", "YEARLY", "ANNUAL":
		return Yearly, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidFrequency, s)
}

// Interval is a calendar period. Start and End are the first and last day of the period at midnight UTC.
type Interval struct {
	Start time.Time
	End   time.Time
}

// StartDate formats Start as YYYY-MM-DD.
func (iv Interval) StartDate() string { return iv.Start.Format(DateLayout) }

// EndDate formats End as YYYY-MM-DD.
func (iv Interval) EndDate() string { return iv.End.Format(DateLayout) }

func (iv Interval) String() string { return iv.StartDate() + "/" + iv.EndDate() }

// Limit is the exclusive upper instant of the period, the midnight after End.
func (iv Interval) Limit() time.Time { return iv.End.AddDate(0, 0, 1) }

// Contains reports whether t falls on any day of the period.
func (iv Interval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && t.Before(iv.Limit())
}

// Midpoint is halfway between Start and End.
func (iv Interval) Midpoint() time.Time {
	return iv.Start.Add(iv.End.Sub(iv.Start) / 2)
}

// ParseDate parses a YYYY-MM-DD string as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// GetIntervals returns every period at freq from the one containing start to the one containing end.
func GetIntervals(start, end string, freq string) ([]Interval, error) {
	f, err := ParseFrequency(freq)
	if err != nil {
		return nil, err
	}
	d1, err := ParseDate(start)
	if err != nil {
		return nil, err
	}
	d2, err := ParseDate(end)
	if err != nil {
		return nil, err
	}
	return Periods(d1, d2, f)
}

// Periods is GetIntervals for parsed dates.
func Periods(start, end time.Time, f Frequency) ([]Interval, error) {
	start, end = truncateDay(start), truncateDay(end)
	if end.Before(start) {
		return nil, fmt.Errorf("%w: %s > %s", ErrInvalidWindow, start.Format(DateLayout), end.Format(DateLayout))
	}

	var out []Interval
	for p := periodStart(start, f); !p.After(end); {
		next := advance(p, f)
		out = append(out, Interval{Start: p, End: next.AddDate(0, 0, -1)})
		p = next
	}
	return out, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func periodStart(t time.Time, f Frequency) time.Time {
	switch f {
	case Weekly:
		// weeks run Monday to Sunday
		offset := (int(t.Weekday()) + 6) % 7
		return t.AddDate(0, 0, -offset)
	case Monthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case Quarterly:
		m := time.Month((int(t.Month())-1)/3*3 + 1)
		return time.Date(t.Year(), m, 1, 0, 0, 0, 0, time.UTC)
	case Yearly:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	return t
}

func advance(t time.Time, f Frequency) time.Time {
	switch f {
	case Weekly:
		return t.AddDate(0, 0, 7)
	case Monthly:
		return t.AddDate(0, 1, 0)
	case Quarterly:
		return t.AddDate(0, 3, 0)
	case Yearly:
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 0, 1)
}
