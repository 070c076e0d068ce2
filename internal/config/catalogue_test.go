package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tolosaweb/agenda/backend/internal/config"
	"github.com/tolosaweb/agenda/backend/internal/source"
)

func writeCatalogue(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCatalogue(t *testing.T) {
	path := writeCatalogue(t, `
sets:
  - name: agenda
    ttl: 1h
    sources:
      - name: agenda-trad
        kind: rss
        endpoint: https://example.org/feed.xml
      - name: openagenda
        kind: json-rest
        endpoint: https://api.example.org/events
        items_path: events
        field_map:
          title: title_fr
        oauth:
          token_url: https://api.example.org/token
          client_id_env: OA_CLIENT_ID
          client_secret_env: OA_CLIENT_SECRET
  - name: balades
    ttl: 6h
    sources:
      - name: mairie
        kind: ical
        endpoint: https://example.org/agenda.ics
`)

	cat, err := config.LoadCatalogue(path)
	require.NoError(t, err)
	require.Len(t, cat.Sets, 2)

	agenda, ok := cat.Set("agenda")
	require.True(t, ok)
	require.Equal(t, time.Hour, agenda.TTL)
	require.Len(t, agenda.Sources, 2)
	require.Equal(t, source.KindRSS, agenda.Sources[0].Kind)

	oa := agenda.Sources[1]
	require.Equal(t, source.KindJSONRest, oa.Kind)
	require.Equal(t, "events", oa.ItemsPath)
	require.Equal(t, "title_fr", oa.FieldMap["title"])
	require.NotNil(t, oa.OAuth)
	require.Equal(t, "OA_CLIENT_ID", oa.OAuth.ClientIDEnv)

	_, ok = cat.Set("missing")
	require.False(t, ok)
}

func TestLoadCatalogueMissingFile(t *testing.T) {
	_, err := config.LoadCatalogue(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadCatalogueValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "no sets",
			content: "sets: []\n",
		},
		{
			name: "set without name",
			content: `
sets:
  - ttl: 1h
    sources:
      - name: a
        kind: rss
        endpoint: https://example.org/feed.xml
`,
		},
		{
			name: "duplicate set names",
			content: `
sets:
  - name: agenda
    sources:
      - name: a
        kind: rss
        endpoint: https://example.org/feed.xml
  - name: agenda
    sources:
      - name: b
        kind: rss
        endpoint: https://example.org/feed.xml
`,
		},
		{
			name: "set without sources",
			content: `
sets:
  - name: agenda
    sources: []
`,
		},
		{
			name: "source without endpoint",
			content: `
sets:
  - name: agenda
    sources:
      - name: a
        kind: rss
`,
		},
		{
			name: "bad ttl",
			content: `
sets:
  - name: agenda
    ttl: tomorrow
    sources:
      - name: a
        kind: rss
        endpoint: https://example.org/feed.xml
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeCatalogue(t, tt.content)
			_, err := config.LoadCatalogue(path)
			require.Error(t, err)
		})
	}
}
