package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

// icalAdapter handles text/calendar sources. Folded-line continuation and
// VTIMEZONE handling are the library's; this adapter only maps VEVENT
// properties onto RawItems.
type icalAdapter struct {
	d      Descriptor
	client *http.Client
	log    *slog.Logger
}

func newICalAdapter(d Descriptor, log *slog.Logger) *icalAdapter {
	return &icalAdapter{
		d:      d,
		client: &http.Client{Timeout: d.timeout()},
		log:    log.With(slog.String("source", d.Name)),
	}
}

func (a *icalAdapter) Name() string { return a.d.Name }
func (a *icalAdapter) Kind() Kind   { return KindICal }

func (a *icalAdapter) Fetch(ctx context.Context) ([]RawItem, error) {
	req, err := a.d.newRequest(ctx, a.d.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("source %q: build request: %w", a.d.Name, err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source %q: fetch calendar: %w", a.d.Name, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, a.d.Name); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("source %q: read calendar: %w", a.d.Name, err)
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("source %q: parse calendar: %w", a.d.Name, err)
	}

	limit := a.d.maxItems()
	items := make([]RawItem, 0, len(cal.Events()))
	for _, ve := range cal.Events() {
		if len(items) >= limit {
			break
		}
		raw, ok := a.rawItem(ve)
		if !ok {
			continue
		}
		items = append(items, raw)
	}

	a.log.Debug("calendar fetched", slog.Int("events", len(items)))
	return items, nil
}

// rawItem maps one VEVENT onto a RawItem. Events missing SUMMARY or DTSTART
// are skipped here rather than defaulted.
func (a *icalAdapter) rawItem(ve *ical.VEvent) (RawItem, bool) {
	summary := propValue(ve, ical.ComponentPropertySummary)
	if summary == "" {
		a.log.Debug("vevent skipped, no summary", slog.String("uid", propValue(ve, ical.ComponentPropertyUniqueId)))
		return RawItem{}, false
	}

	start, err := ve.GetStartAt()
	if err != nil {
		// Date-only DTSTART (VALUE=DATE) becomes UTC midnight. The library
		// parses the date in the host zone, so rebuild from the calendar
		// components instead of converting the instant.
		if day, dayErr := ve.GetAllDayStartAt(); dayErr == nil {
			start = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
			err = nil
		}
	}
	if err != nil || start.IsZero() {
		a.log.Debug("vevent skipped, no usable DTSTART", slog.String("summary", summary))
		return RawItem{}, false
	}

	return RawItem{
		Kind:        KindICal,
		ID:          propValue(ve, ical.ComponentPropertyUniqueId),
		Title:       unescapeICalText(summary),
		Description: unescapeICalText(propValue(ve, ical.ComponentPropertyDescription)),
		Location:    unescapeICalText(propValue(ve, ical.ComponentPropertyLocation)),
		URL:         propValue(ve, ical.ComponentPropertyUrl),
		Start:       start.UTC(),
		HasStart:    true,
	}, true
}

func propValue(ve *ical.VEvent, name ical.ComponentProperty) string {
	if p := ve.GetProperty(name); p != nil {
		return strings.TrimSpace(p.Value)
	}
	return ""
}

// unescapeICalText reverses RFC 5545 TEXT escaping for commas, semicolons,
// backslashes, and newlines.
func unescapeICalText(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	r := strings.NewReplacer(`\n`, "\n", `\N`, "\n", `\,`, ",", `\;`, ";", `\\`, `\`)
	return r.Replace(s)
}
