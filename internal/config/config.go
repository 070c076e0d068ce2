package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Common contains the parameters shared by every binary.
type Common struct {
	CacheDir         string
	CacheTTL         time.Duration
	SourcesFile      string
	ScrapeEnrichment bool
	ScrapeBudget     int
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	BindAddr       string
	DefaultSet     string
	RequestTimeout time.Duration
}

// Worker holds configuration for the background refresh loop.
type Worker struct {
	Common
	RefreshInterval time.Duration
	RefreshTimeout  time.Duration
}

// Retention configures the cache janitor.
type Retention struct {
	Common
	Interval time.Duration
	MaxAge   time.Duration
}

func loadCommon() Common {
	return Common{
		CacheDir:         getEnv("CACHE_DIR", "./var/cache"),
		CacheTTL:         getDuration("CACHE_TTL", "1h"),
		SourcesFile:      getEnv("SOURCES_FILE", "./sources.yaml"),
		ScrapeEnrichment: getBool("SCRAPE_ENRICHMENT", true),
		ScrapeBudget:     getInt("SCRAPE_BUDGET", 5),
	}
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	c := &API{
		Common:         loadCommon(),
		BindAddr:       getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		DefaultSet:     getEnv("API_DEFAULT_SET", "agenda"),
		RequestTimeout: getDuration("API_REQUEST_TIMEOUT", "30s"),
	}

	if c.CacheTTL <= 0 {
		return nil, fmt.Errorf("CACHE_TTL must be positive")
	}
	if c.ScrapeBudget < 0 {
		return nil, fmt.Errorf("SCRAPE_BUDGET cannot be negative")
	}
	if c.RequestTimeout <= 0 {
		return nil, fmt.Errorf("API_REQUEST_TIMEOUT must be positive")
	}

	return c, nil
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	c := &Worker{
		Common:          loadCommon(),
		RefreshInterval: getDuration("WORKER_REFRESH_INTERVAL", "30m"),
		RefreshTimeout:  getDuration("WORKER_REFRESH_TIMEOUT", "2m"),
	}

	if c.RefreshInterval <= 0 {
		return nil, fmt.Errorf("WORKER_REFRESH_INTERVAL must be positive")
	}
	if c.RefreshTimeout <= 0 {
		return nil, fmt.Errorf("WORKER_REFRESH_TIMEOUT must be positive")
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	c := &Retention{
		Common:   loadCommon(),
		Interval: getDuration("RETENTION_INTERVAL", "24h"),
		MaxAge:   getDuration("RETENTION_MAX_AGE", "168h"),
	}

	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_INTERVAL must be positive")
	}
	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}

	return c, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}
