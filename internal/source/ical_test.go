package source_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tolosaweb/agenda/backend/internal/source"
)

// The DESCRIPTION line is folded per RFC 5545: the continuation line starts
// with a single space.
const icsFixture = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//Mairie//Agenda//FR\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:event-1@mairie\r\n" +
	"SUMMARY:Bal trad place du Capitole\r\n" +
	"DESCRIPTION:Grand bal en plein air avec orchestre\\, buvette et\r\n" +
	" petite restauration sur place\r\n" +
	"LOCATION:Place du Capitole\\, Toulouse\r\n" +
	"URL:https://example.org/bal-trad\r\n" +
	"DTSTART:20260714T190000Z\r\n" +
	"DTEND:20260714T230000Z\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:event-2@mairie\r\n" +
	"SUMMARY:Journée du patrimoine\r\n" +
	"DTSTART;VALUE=DATE:20260919\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:event-3@mairie\r\n" +
	"DTSTART:20260801T100000Z\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func icsServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		w.Write([]byte(icsFixture))
	}))
}

func TestICalAdapterParsesEvents(t *testing.T) {
	srv := icsServer(t)
	defer srv.Close()

	adapter, err := source.New(source.Descriptor{Name: "mairie", Kind: source.KindICal, Endpoint: srv.URL}, nil)
	require.NoError(t, err)

	items, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	// event-3 has no SUMMARY and is skipped.
	require.Len(t, items, 2)

	first := items[0]
	require.Equal(t, "event-1@mairie", first.ID)
	require.Equal(t, "Bal trad place du Capitole", first.Title)
	require.Equal(t, "Place du Capitole, Toulouse", first.Location)
	require.Equal(t, "https://example.org/bal-trad", first.URL)
	require.True(t, first.HasStart)
	require.Equal(t, 2026, first.Start.Year())
	require.Equal(t, 19, first.Start.Hour())

	// The folded description was unfolded into one value.
	require.True(t, strings.Contains(first.Description, "petite restauration"), "folded line lost: %q", first.Description)

	// Date-only DTSTART becomes midnight.
	second := items[1]
	require.Equal(t, "Journée du patrimoine", second.Title)
	require.True(t, second.HasStart)
	require.Equal(t, 0, second.Start.Hour())
	require.Equal(t, 19, second.Start.Day())
}

func TestICalAdapterDateOnlyIsUTCMidnightInAnyHostZone(t *testing.T) {
	// An eastern host zone would shift a date-only event onto the previous
	// calendar day if the parsed local midnight were converted to UTC.
	orig := time.Local
	time.Local = time.FixedZone("UTC+12", 12*60*60)
	t.Cleanup(func() { time.Local = orig })

	srv := icsServer(t)
	defer srv.Close()

	adapter, err := source.New(source.Descriptor{Name: "mairie", Kind: source.KindICal, Endpoint: srv.URL}, nil)
	require.NoError(t, err)

	items, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)

	allDay := items[1]
	require.Equal(t, "Journée du patrimoine", allDay.Title)
	require.Equal(t, time.Date(2026, 9, 19, 0, 0, 0, 0, time.UTC), allDay.Start)
}

func TestICalAdapterHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	adapter, err := source.New(source.Descriptor{Name: "gone", Kind: source.KindICal, Endpoint: srv.URL}, nil)
	require.NoError(t, err)

	_, err = adapter.Fetch(context.Background())
	require.Error(t, err)
}

func TestICalAdapterUnparsablePayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not a calendar"))
	}))
	defer srv.Close()

	adapter, err := source.New(source.Descriptor{Name: "bad", Kind: source.KindICal, Endpoint: srv.URL}, nil)
	require.NoError(t, err)

	_, err = adapter.Fetch(context.Background())
	require.Error(t, err)
}
