package freshness

import (
	"time"

	"github.com/tolosaweb/agenda/backend/internal/models"
	"github.com/tolosaweb/agenda/backend/internal/source"
)

// TodayMidnight returns UTC midnight of the reference instant. All staleness
// comparisons run in UTC so mixed-offset sources stay consistent.
func TodayMidnight(now time.Time) time.Time {
	n := now.UTC()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}

// ShiftForward moves a stale date onto today's calendar day while keeping the
// original clock time. Dates already at or past today's midnight pass
// through unchanged.
func ShiftForward(date, now time.Time) time.Time {
	d := date.UTC()
	today := TodayMidnight(now)
	if !d.Before(today) {
		return d
	}
	return time.Date(today.Year(), today.Month(), today.Day(), d.Hour(), d.Minute(), d.Second(), d.Nanosecond(), time.UTC)
}

// Apply enforces the per-kind past-date policy. RSS and Atom publication
// dates describe recurring listings, so stale ones are shifted forward to
// surface as upcoming. Calendar and REST API dates are authoritative, so
// anything strictly before today's midnight is filtered out instead.
func Apply(events []models.Event, kind source.Kind, now time.Time) []models.Event {
	today := TodayMidnight(now)
	out := make([]models.Event, 0, len(events))

	switch kind {
	case source.KindRSS, source.KindAtom:
		for _, ev := range events {
			ev.Date = ShiftForward(ev.Date, now)
			out = append(out, ev)
		}
	default:
		for _, ev := range events {
			if ev.Date.UTC().Before(today) {
				continue
			}
			ev.Date = ev.Date.UTC()
			out = append(out, ev)
		}
	}

	return out
}
