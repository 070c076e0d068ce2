package normalize

import (
	"crypto/sha1"
	"encoding/hex"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tolosaweb/agenda/backend/internal/models"
	"github.com/tolosaweb/agenda/backend/internal/source"
)

// PlaceholderTitle is stored when a record has text but no usable title.
const PlaceholderTitle = "Événement sans titre"

var (
	tags       = regexp.MustCompile(`<[^>]*>`)
	whitespace = regexp.MustCompile(`\s+`)
	imgTag     = regexp.MustCompile(`(?i)<img[^>]+src=["']?([^"'\s>]+)`)
)

// dateFormats are tried in order against unparsed date candidates. Naive
// forms are interpreted as UTC so mixed-offset sources stay comparable.
var dateFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"20060102T150405Z",
	"20060102T150405",
	"20060102",
}

// Context identifies the source a RawItem came from.
type Context struct {
	Source string
	Kind   source.Kind
}

// Normalize maps a RawItem onto the canonical Event. The second return value
// is false when the record is invalid and must be dropped: no resolvable
// date, or neither title nor description text.
func Normalize(item source.RawItem, sc Context) (models.Event, bool) {
	date, ok := resolveDate(item)
	if !ok {
		return models.Event{}, false
	}

	title := collapse(html.UnescapeString(item.Title))
	description := Sanitize(item.Description)
	if title == "" {
		if description == "" {
			return models.Event{}, false
		}
		title = PlaceholderTitle
	}

	location := collapse(html.UnescapeString(item.Location))
	if location == "" {
		location = models.LocationUnspecified
	}

	id := strings.TrimSpace(item.ID)
	if id == "" {
		id = deriveID(title, date, location)
	}
	if id == "" {
		id = uuid.NewString()
	}

	return models.Event{
		ID:          id,
		Title:       title,
		Description: description,
		Date:        date,
		Location:    location,
		Image:       resolveImage(item),
		URL:         strings.TrimSpace(item.URL),
		Source:      sc.Source,
	}, true
}

// resolveDate prefers the adapter-parsed timestamp and otherwise walks the
// candidate strings through the format list. Records without any parseable
// date are rejected rather than coerced to "now".
func resolveDate(item source.RawItem) (time.Time, bool) {
	if item.HasStart && !item.Start.IsZero() {
		return item.Start.UTC(), true
	}

	for _, candidate := range item.DateCandidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		for _, format := range dateFormats {
			if ts, err := time.ParseInLocation(format, candidate, time.UTC); err == nil {
				return ts.UTC(), true
			}
		}
	}

	return time.Time{}, false
}

// resolveImage applies the image fallback chain: explicit source image, an
// <img> pulled out of the raw HTML description, the category default table,
// then the generic placeholder.
func resolveImage(item source.RawItem) string {
	if u := strings.TrimSpace(item.Image); u != "" {
		return u
	}
	if m := imgTag.FindStringSubmatch(item.Description); m != nil {
		return m[1]
	}
	if u := categoryImage(Classify(item.Category + " " + item.Title)); u != "" {
		return u
	}
	return models.DefaultImage
}

// Classify maps free-form category or tag text onto the site's canonical
// rubric via ordered substring checks.
func Classify(raw string) string {
	s := strings.ToLower(raw)
	switch {
	case strings.Contains(s, "bal") && strings.Contains(s, "folk"):
		return "Bal folk"
	case strings.Contains(s, "stage") && strings.Contains(s, "danse"):
		return "Stage de danse"
	case strings.Contains(s, "bal"):
		return "Bal"
	case strings.Contains(s, "concert"):
		return "Concert"
	case strings.Contains(s, "festival"):
		return "Festival"
	default:
		return "Agenda"
	}
}

// categoryDefaults maps a lowercased category key to its stock image. Lookup
// is exact match first, then substring containment, in declaration order.
var categoryDefaults = []struct {
	key string
	url string
}{
	{"bal folk", "https://static.tolosaweb.fr/agenda/defaults/bal-folk.jpg"},
	{"stage de danse", "https://static.tolosaweb.fr/agenda/defaults/stage-danse.jpg"},
	{"bal", "https://static.tolosaweb.fr/agenda/defaults/bal.jpg"},
	{"concert", "https://static.tolosaweb.fr/agenda/defaults/concert.jpg"},
	{"festival", "https://static.tolosaweb.fr/agenda/defaults/festival.jpg"},
}

func categoryImage(category string) string {
	key := strings.ToLower(strings.TrimSpace(category))
	if key == "" {
		return ""
	}
	for _, def := range categoryDefaults {
		if def.key == key {
			return def.url
		}
	}
	for _, def := range categoryDefaults {
		if strings.Contains(key, def.key) {
			return def.url
		}
	}
	return ""
}

// Sanitize decodes HTML entities, strips every tag, and squeezes whitespace.
// Descriptions are served to plain-text consumers, so no allow-list survives.
func Sanitize(input string) string {
	if input == "" {
		return ""
	}
	decoded := html.UnescapeString(input)
	decoded = tags.ReplaceAllString(decoded, " ")
	return collapse(decoded)
}

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// deriveID hashes the composite fingerprint so records without a native ID
// still get deterministic identities.
func deriveID(title string, date time.Time, location string) string {
	fp := models.CompositeFingerprint(title, date, location)
	if fp == "" {
		return ""
	}
	sum := sha1.Sum([]byte(fp))
	return hex.EncodeToString(sum[:])
}
