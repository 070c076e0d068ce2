package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/tolosaweb/agenda/backend/internal/models"
)

// Enricher backfills missing images and addresses by scraping the event's own
// page for og:image meta tags and ld+json Event blocks. It never produces
// events; it only decorates ones the adapters already returned.
type Enricher struct {
	client *http.Client
	log    *slog.Logger
	budget int
}

// NewEnricher builds an Enricher. budget caps the number of pages fetched per
// aggregation run.
func NewEnricher(timeout time.Duration, budget int, log *slog.Logger) *Enricher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if budget <= 0 {
		budget = 5
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Enricher{
		client: &http.Client{Timeout: timeout},
		log:    log,
		budget: budget,
	}
}

// Enrich scans events for placeholder images or unspecified locations and
// fills them from the event page when possible. Scrape failures leave the
// event untouched.
func (e *Enricher) Enrich(ctx context.Context, events []models.Event) []models.Event {
	remaining := e.budget
	for i := range events {
		if remaining <= 0 {
			break
		}
		ev := &events[i]
		needImage := ev.Image == "" || ev.Image == models.DefaultImage
		needLocation := ev.Location == "" || ev.Location == models.LocationUnspecified
		if ev.URL == "" || (!needImage && !needLocation) {
			continue
		}

		remaining--
		meta, err := e.scrape(ctx, ev.URL)
		if err != nil {
			e.log.Debug("page scrape failed", slog.String("url", ev.URL), slog.Any("err", err))
			continue
		}
		if needImage && meta.Image != "" {
			ev.Image = meta.Image
		}
		if needLocation && meta.Address != "" {
			ev.Location = meta.Address
		}
	}
	return events
}

// pageMeta is what a scraped event page can contribute.
type pageMeta struct {
	Image   string
	Address string
}

func (e *Enricher) scrape(ctx context.Context, pageURL string) (pageMeta, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return pageMeta{}, err
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return pageMeta{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return pageMeta{}, fmt.Errorf("unexpected status %s", resp.Status)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return pageMeta{}, err
	}

	var meta pageMeta
	walkNodes(doc, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		switch n.Data {
		case "meta":
			if attr(n, "property") == "og:image" && meta.Image == "" {
				meta.Image = attr(n, "content")
			}
		case "script":
			if attr(n, "type") == "application/ld+json" && n.FirstChild != nil {
				applyEventBlock(&meta, n.FirstChild.Data)
			}
		}
	})

	return meta, nil
}

// applyEventBlock fills meta from a JSON-LD payload when it describes an
// Event. Image and address values come in several shapes in the wild; both
// are flattened leniently.
func applyEventBlock(meta *pageMeta, raw string) {
	var block struct {
		Type     string `json:"@type"`
		Image    any    `json:"image"`
		Location struct {
			Name    string `json:"name"`
			Address any    `json:"address"`
		} `json:"location"`
	}
	if err := json.Unmarshal([]byte(raw), &block); err != nil {
		return
	}
	if !strings.EqualFold(block.Type, "Event") {
		return
	}

	if meta.Image == "" {
		meta.Image = flattenImage(block.Image)
	}
	if meta.Address == "" {
		addr := flattenAddress(block.Location.Address)
		if addr == "" {
			addr = strings.TrimSpace(block.Location.Name)
		}
		meta.Address = addr
	}
}

func flattenImage(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func flattenAddress(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		parts := make([]string, 0, 3)
		for _, key := range []string{"streetAddress", "postalCode", "addressLocality"} {
			if s, ok := t[key].(string); ok && strings.TrimSpace(s) != "" {
				parts = append(parts, strings.TrimSpace(s))
			}
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

func walkNodes(n *html.Node, visit func(*html.Node)) {
	visit(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkNodes(c, visit)
	}
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}
