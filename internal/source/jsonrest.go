package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// builtinDateFields are tried after the descriptor's mapped date field when
// locating a usable timestamp on a JSON record.
var builtinDateFields = []string{"date", "startDate", "start", "pubDate", "dtstart", "firstdate_begin"}

// jsonAdapter handles JSON REST sources, optionally behind an OAuth2
// client-credentials token exchange.
type jsonAdapter struct {
	d      Descriptor
	client *http.Client
	log    *slog.Logger
	now    func() time.Time
}

func newJSONAdapter(d Descriptor, log *slog.Logger) *jsonAdapter {
	return &jsonAdapter{
		d:      d,
		client: &http.Client{Timeout: d.timeout()},
		log:    log.With(slog.String("source", d.Name)),
		now:    time.Now,
	}
}

func (a *jsonAdapter) Name() string { return a.d.Name }
func (a *jsonAdapter) Kind() Kind   { return KindJSONRest }

func (a *jsonAdapter) Fetch(ctx context.Context) ([]RawItem, error) {
	endpoint, err := a.buildURL()
	if err != nil {
		return nil, fmt.Errorf("source %q: build url: %w", a.d.Name, err)
	}

	req, err := a.d.newRequest(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("source %q: build request: %w", a.d.Name, err)
	}

	// The token exchange fails the same way a data call does: as this
	// source's failure, never the whole aggregation's.
	resp, err := a.httpClient(ctx).Do(req)
	if err != nil {
		return nil, fmt.Errorf("source %q: fetch: %w", a.d.Name, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, a.d.Name); err != nil {
		return nil, err
	}

	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("source %q: decode response: %w", a.d.Name, err)
	}

	records, err := locateItems(payload, a.d.ItemsPath)
	if err != nil {
		return nil, fmt.Errorf("source %q: %w", a.d.Name, err)
	}

	limit := a.d.maxItems()
	items := make([]RawItem, 0, len(records))
	for _, rec := range records {
		if len(items) >= limit {
			break
		}
		obj, ok := rec.(map[string]any)
		if !ok {
			continue
		}
		items = append(items, a.rawItem(obj))
	}

	a.log.Debug("rest source fetched", slog.Int("items", len(items)))
	return items, nil
}

// httpClient wraps the base client with a bearer-token transport when the
// descriptor carries OAuth2 credentials.
func (a *jsonAdapter) httpClient(ctx context.Context) *http.Client {
	if a.d.OAuth == nil {
		return a.client
	}

	cc := clientcredentials.Config{
		ClientID:     envValue(a.d.OAuth.ClientIDEnv),
		ClientSecret: envValue(a.d.OAuth.ClientSecretEnv),
		TokenURL:     a.d.OAuth.TokenURL,
		Scopes:       a.d.OAuth.Scopes,
	}

	// Keep the per-source timeout on the token exchange as well.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client)
	return cc.Client(ctx)
}

func (a *jsonAdapter) buildURL() (string, error) {
	u, err := url.Parse(a.d.Endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	for k, v := range a.d.Query {
		q.Set(k, v)
	}
	if a.d.PageParam != "" {
		q.Set(a.d.PageParam, "1")
	}
	if a.d.StartDateParam != "" {
		q.Set(a.d.StartDateParam, a.now().UTC().Format("2006-01-02"))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// rawItem maps one JSON object onto a RawItem using the descriptor's
// field-mapping hints, falling back to the conventional field names.
func (a *jsonAdapter) rawItem(obj map[string]any) RawItem {
	raw := RawItem{
		Kind:        KindJSONRest,
		ID:          a.field(obj, "id", "id", "uid", "guid"),
		Title:       a.field(obj, "title", "title", "name", "summary"),
		Description: a.field(obj, "description", "description", "longdescription", "body"),
		Location:    a.field(obj, "location", "location", "address", "venue", "placename"),
		URL:         a.field(obj, "url", "url", "link", "canonicalurl"),
		Image:       a.field(obj, "image", "image", "thumbnail", "originalimage"),
		Category:    a.field(obj, "category", "category", "keywords", "tags"),
	}

	if mapped := a.d.FieldMap["date"]; mapped != "" {
		if v := stringValue(obj[mapped]); v != "" {
			raw.DateCandidates = append(raw.DateCandidates, v)
		}
	}
	for _, name := range builtinDateFields {
		if v := stringValue(obj[name]); v != "" {
			raw.DateCandidates = append(raw.DateCandidates, v)
		}
	}

	return raw
}

// field resolves a canonical attribute: the descriptor's mapped field first,
// then the given candidates in priority order.
func (a *jsonAdapter) field(obj map[string]any, canonical string, candidates ...string) string {
	if mapped := a.d.FieldMap[canonical]; mapped != "" {
		if v := stringValue(obj[mapped]); v != "" {
			return v
		}
	}
	for _, name := range candidates {
		if v := stringValue(obj[name]); v != "" {
			return v
		}
	}
	return ""
}

// locateItems finds the record array inside the decoded payload: a top-level
// array, the field named by itemsPath, or one of the conventional envelope
// keys.
func locateItems(payload any, itemsPath string) ([]any, error) {
	if arr, ok := payload.([]any); ok {
		return arr, nil
	}

	obj, ok := payload.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected payload shape %T", payload)
	}

	if itemsPath != "" {
		if arr, ok := obj[itemsPath].([]any); ok {
			return arr, nil
		}
		return nil, fmt.Errorf("items path %q not found", itemsPath)
	}

	for _, key := range []string{"events", "items", "records", "results", "data"} {
		if arr, ok := obj[key].([]any); ok {
			return arr, nil
		}
	}
	return nil, fmt.Errorf("no item array in payload")
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
