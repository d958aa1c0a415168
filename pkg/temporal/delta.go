package temporal

import (
	"fmt"
	"strings"
	"time"
)

// Unit is the unit of a time delta.
type Unit string

const (
	Days   Unit = "days"
	Weeks  Unit = "weeks"
	Months Unit = "months"
	Years  Unit = "years"
)

// ParseUnit accepts singular or plural unit names in any case.
func ParseUnit(s string) (Unit, error) {
	u := strings.ToLower(strings.TrimSpace(s))
	u = strings.TrimSuffix(u, "s")
	switch u {
	case "day":
		return Days, nil
	case "week":
		return Weeks, nil
	case "month":
		return Months, nil
	case "year":
		return Years, nil
	}
	return "", fmt.Errorf("unknown time unit %q", s)
}

// Difference returns t - baseline in unit. Month and year deltas count whole calendar
// months and add the elapsed fraction of the following month.
func Difference(t, baseline time.Time, unit Unit) float64 {
	switch unit {
	case Weeks:
		return t.Sub(baseline).Hours() / (24 * 7)
	case Months:
		return monthsBetween(baseline, t)
	case Years:
		return monthsBetween(baseline, t) / 12
	}
	return t.Sub(baseline).Hours() / 24
}

func monthsBetween(from, to time.Time) float64 {
	if to.Before(from) {
		return -monthsBetween(to, from)
	}
	from, to = from.UTC(), to.UTC()
	whole := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	anchor := from.AddDate(0, whole, 0)
	if anchor.After(to) {
		whole--
		anchor = from.AddDate(0, whole, 0)
	}
	next := from.AddDate(0, whole+1, 0)
	frac := to.Sub(anchor).Seconds() / next.Sub(anchor).Seconds()
	return float64(whole) + frac
}
