package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"
)

// feedAdapter handles RSS 2.0 and Atom sources through gofeed, which
// autodetects the family from the payload.
type feedAdapter struct {
	d      Descriptor
	client *http.Client
	log    *slog.Logger
}

func newFeedAdapter(d Descriptor, log *slog.Logger) *feedAdapter {
	return &feedAdapter{
		d:      d,
		client: &http.Client{Timeout: d.timeout()},
		log:    log.With(slog.String("source", d.Name)),
	}
}

func (a *feedAdapter) Name() string { return a.d.Name }
func (a *feedAdapter) Kind() Kind   { return a.d.Kind }

func (a *feedAdapter) Fetch(ctx context.Context) ([]RawItem, error) {
	req, err := a.d.newRequest(ctx, a.d.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("source %q: build request: %w", a.d.Name, err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source %q: fetch feed: %w", a.d.Name, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, a.d.Name); err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("source %q: parse feed: %w", a.d.Name, err)
	}

	limit := a.d.maxItems()
	items := make([]RawItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		if len(items) >= limit {
			break
		}
		items = append(items, a.rawItem(it))
	}

	a.log.Debug("feed fetched", slog.Int("items", len(items)))
	return items, nil
}

func (a *feedAdapter) rawItem(it *gofeed.Item) RawItem {
	raw := RawItem{
		Kind:        a.d.Kind,
		ID:          strings.TrimSpace(it.GUID),
		Title:       it.Title,
		Description: pickText(it.Content, it.Description),
		URL:         it.Link,
		Category:    strings.Join(it.Categories, " "),
		Image:       feedImage(it),
	}

	switch {
	case it.PublishedParsed != nil:
		raw.Start = *it.PublishedParsed
		raw.HasStart = true
	case it.UpdatedParsed != nil:
		raw.Start = *it.UpdatedParsed
		raw.HasStart = true
	default:
		raw.DateCandidates = []string{it.Published, it.Updated}
	}

	return raw
}

func feedImage(it *gofeed.Item) string {
	if it.Image != nil && it.Image.URL != "" {
		return it.Image.URL
	}
	for _, enc := range it.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if enc.Type == "" || strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	return ""
}

func pickText(candidates ...string) string {
	for _, c := range candidates {
		if strings.TrimSpace(c) != "" {
			return c
		}
	}
	return ""
}
