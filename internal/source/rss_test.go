package source_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tolosaweb/agenda/backend/internal/source"
)

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Agenda Trad</title>
    <item>
      <title>Bal folk au Sénéchal</title>
      <link>https://example.org/events/bal-folk</link>
      <guid>https://example.org/events/bal-folk</guid>
      <description>&lt;p&gt;Grand bal avec &lt;strong&gt;buvette&lt;/strong&gt;&lt;/p&gt;</description>
      <category>bal folk</category>
      <pubDate>Mon, 09 Jun 2025 19:00:00 +0000</pubDate>
      <enclosure url="https://example.org/affiche.jpg" type="image/jpeg" length="1234"/>
    </item>
    <item>
      <title>Concert sans date</title>
      <link>https://example.org/events/concert</link>
    </item>
  </channel>
</rss>`

const atomFixture = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Agenda Atom</title>
  <entry>
    <title>Stage de danse</title>
    <link href="https://example.org/events/stage"/>
    <id>urn:uuid:stage-1</id>
    <updated>2025-06-12T10:00:00Z</updated>
    <summary>Stage pour débutants</summary>
  </entry>
</feed>`

func TestFeedAdapterParsesRSS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "agenda-backend-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(rssFixture))
	}))
	defer srv.Close()

	adapter, err := source.New(source.Descriptor{
		Name:      "agendatrad",
		Kind:      source.KindRSS,
		Endpoint:  srv.URL,
		UserAgent: "agenda-backend-test",
	}, nil)
	require.NoError(t, err)

	items, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)

	first := items[0]
	require.Equal(t, "Bal folk au Sénéchal", first.Title)
	require.Equal(t, "https://example.org/events/bal-folk", first.URL)
	require.Equal(t, "https://example.org/events/bal-folk", first.ID)
	require.Equal(t, "https://example.org/affiche.jpg", first.Image)
	require.Equal(t, "bal folk", first.Category)
	require.True(t, first.HasStart)
	require.Equal(t, 2025, first.Start.Year())
	require.Equal(t, 19, first.Start.UTC().Hour())

	// No pubDate anywhere: the item carries no parsed start.
	require.False(t, items[1].HasStart)
}

func TestFeedAdapterParsesAtom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		w.Write([]byte(atomFixture))
	}))
	defer srv.Close()

	adapter, err := source.New(source.Descriptor{Name: "atomfeed", Kind: source.KindAtom, Endpoint: srv.URL}, nil)
	require.NoError(t, err)

	items, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "Stage de danse", items[0].Title)
	require.Equal(t, "https://example.org/events/stage", items[0].URL)
	require.True(t, items[0].HasStart)
}

func TestFeedAdapterMaxItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rssFixture))
	}))
	defer srv.Close()

	adapter, err := source.New(source.Descriptor{Name: "capped", Kind: source.KindRSS, Endpoint: srv.URL, MaxItems: 1}, nil)
	require.NoError(t, err)

	items, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestFeedAdapterHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	adapter, err := source.New(source.Descriptor{Name: "down", Kind: source.KindRSS, Endpoint: srv.URL}, nil)
	require.NoError(t, err)

	_, err = adapter.Fetch(context.Background())
	require.Error(t, err)
}

func TestFeedAdapterUnparsablePayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not xml"))
	}))
	defer srv.Close()

	adapter, err := source.New(source.Descriptor{Name: "garbage", Kind: source.KindRSS, Endpoint: srv.URL}, nil)
	require.NoError(t, err)

	_, err = adapter.Fetch(context.Background())
	require.Error(t, err)
}

func TestNewRejectsUnknownKind(t *testing.T) {
	_, err := source.New(source.Descriptor{Name: "x", Kind: "carrier-pigeon", Endpoint: "https://example.org"}, nil)
	require.Error(t, err)
}

func TestNewRequiresNameAndEndpoint(t *testing.T) {
	_, err := source.New(source.Descriptor{Kind: source.KindRSS, Endpoint: "https://example.org"}, nil)
	require.Error(t, err)

	_, err = source.New(source.Descriptor{Name: "x", Kind: source.KindRSS}, nil)
	require.Error(t, err)
}
