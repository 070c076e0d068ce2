package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// Kind tags the wire format an adapter speaks.
type Kind string

const (
	KindRSS      Kind = "rss"
	KindAtom     Kind = "atom"
	KindICal     Kind = "ical"
	KindJSONRest Kind = "json-rest"
)

const defaultTimeout = 15 * time.Second

// RawItem is the source-native record produced by an adapter, reduced to the
// closed field set the normalizer understands. Adapters resolve their wire
// shapes (feed items, VEVENTs, mapped JSON objects) into this record; no
// untyped maps cross the adapter boundary.
type RawItem struct {
	Kind        Kind
	ID          string
	Title       string
	Description string
	Location    string
	URL         string
	Image       string
	Category    string

	// Start is set when the adapter already parsed a concrete timestamp.
	Start    time.Time
	HasStart bool

	// DateCandidates holds unparsed date strings in priority order, tried
	// by the normalizer when HasStart is false.
	DateCandidates []string
}

// OAuthConfig describes a client-credentials token exchange. Credentials are
// env-var references so the catalogue file never carries secrets.
type OAuthConfig struct {
	TokenURL        string   `yaml:"token_url"`
	ClientIDEnv     string   `yaml:"client_id_env"`
	ClientSecretEnv string   `yaml:"client_secret_env"`
	Scopes          []string `yaml:"scopes"`
}

// Descriptor configures one upstream source.
type Descriptor struct {
	Name     string `yaml:"name"`
	Kind     Kind   `yaml:"kind"`
	Endpoint string `yaml:"endpoint"`

	// Optional static auth header; the value is an env-var reference.
	AuthHeaderName     string `yaml:"auth_header_name"`
	AuthHeaderValueEnv string `yaml:"auth_header_value_env"`

	OAuth *OAuthConfig `yaml:"oauth"`

	UserAgent      string `yaml:"user_agent"`
	MaxItems       int    `yaml:"max_items"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`

	// JSON-REST parse hints.
	ItemsPath      string            `yaml:"items_path"`
	FieldMap       map[string]string `yaml:"field_map"`
	StartDateParam string            `yaml:"start_date_param"`
	PageParam      string            `yaml:"page_param"`
	Query          map[string]string `yaml:"query"`
}

// Adapter fetches one upstream source and translates it into RawItems. Fetch
// returns an explicit error on network, HTTP, auth, or parse failure; the
// orchestrator treats an error as an empty list and keeps aggregating.
type Adapter interface {
	Name() string
	Kind() Kind
	Fetch(ctx context.Context) ([]RawItem, error)
}

// New builds the adapter variant matching the descriptor's kind.
func New(d Descriptor, log *slog.Logger) (Adapter, error) {
	if d.Name == "" {
		return nil, fmt.Errorf("source: descriptor requires a name")
	}
	if d.Endpoint == "" {
		return nil, fmt.Errorf("source %q: descriptor requires an endpoint", d.Name)
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	switch d.Kind {
	case KindRSS, KindAtom:
		return newFeedAdapter(d, log), nil
	case KindICal:
		return newICalAdapter(d, log), nil
	case KindJSONRest:
		return newJSONAdapter(d, log), nil
	default:
		return nil, fmt.Errorf("source %q: unknown kind %q", d.Name, d.Kind)
	}
}

func (d Descriptor) timeout() time.Duration {
	if d.TimeoutSeconds > 0 {
		return time.Duration(d.TimeoutSeconds) * time.Second
	}
	return defaultTimeout
}

func (d Descriptor) maxItems() int {
	if d.MaxItems > 0 {
		return d.MaxItems
	}
	return 50
}

// newRequest builds a GET request with the descriptor's user-agent and
// static auth header applied.
func (d Descriptor) newRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if d.UserAgent != "" {
		req.Header.Set("User-Agent", d.UserAgent)
	}
	if d.AuthHeaderName != "" {
		req.Header.Set(d.AuthHeaderName, envValue(d.AuthHeaderValueEnv))
	}
	return req, nil
}

func envValue(key string) string {
	if key == "" {
		return ""
	}
	return os.Getenv(key)
}

func checkStatus(resp *http.Response, source string) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("source %q: unexpected status %s", source, resp.Status)
	}
	return nil
}
