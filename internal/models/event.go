package models

import (
	"strings"
	"time"
)

// LocationUnspecified is the sentinel stored when no source provided a venue.
const LocationUnspecified = "Lieu non précisé"

// DefaultImage is the generic placeholder used when no better image resolves.
const DefaultImage = "https://static.tolosaweb.fr/agenda/defaults/agenda.jpg"

// Event is the canonical record every source is normalized into. Events are
// immutable after normalization; the cache file holds the only durable copy.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	Location    string    `json:"location"`
	Image       string    `json:"image"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
}

// Fingerprint is the dedup key: the source-assigned ID when one exists,
// otherwise the title + calendar day + location composite.
func (e Event) Fingerprint() string {
	if e.ID != "" {
		return e.ID
	}
	return CompositeFingerprint(e.Title, e.Date, e.Location)
}

// CompositeFingerprint derives a dedup key from the fields that survive
// re-publication across sources: title, calendar day, and location.
func CompositeFingerprint(title string, date time.Time, location string) string {
	return normalizeKey(title) + "|" + date.UTC().Format("2006-01-02") + "|" + normalizeKey(location)
}

func normalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
