package cachestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tolosaweb/agenda/backend/internal/metrics"
	"github.com/tolosaweb/agenda/backend/internal/models"
)

// ErrNoData is returned when a refresh produced nothing and no cached copy
// exists. It is the only cache failure surfaced to callers.
var ErrNoData = errors.New("cachestore: no events available and no cached copy")

var keyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Config carries the cache location and the default staleness window.
type Config struct {
	Dir string
	TTL time.Duration
}

// RefreshFunc produces fresh events for a cache key. A non-nil error means
// every source failed; a nil error with zero events is a valid result.
type RefreshFunc func(ctx context.Context) ([]models.Event, error)

// Result reports the served events and where they came from.
type Result struct {
	Events    []models.Event
	FromCache bool
	Stale     bool
}

// Store is a TTL-gated, file-backed cache with one file per logical source
// set. Writes are whole-file replacements through a rename, and a per-key
// mutex keeps a single writer per key.
type Store struct {
	cfg Config
	log *slog.Logger
	m   *metrics.Metrics

	mu   sync.Mutex
	keys map[string]*sync.Mutex
}

// New validates the configuration and ensures the cache directory exists.
func New(cfg Config, log *slog.Logger, m *metrics.Metrics) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("cachestore: directory is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("cachestore: create dir: %w", err)
	}
	return &Store{
		cfg:  cfg,
		log:  log,
		m:    m,
		keys: make(map[string]*sync.Mutex),
	}, nil
}

// Get serves the cached events for key when the file is younger than ttl, and
// otherwise refreshes synchronously before returning. A failed refresh falls
// back to the previous cached content when one exists.
func (s *Store) Get(ctx context.Context, key string, ttl time.Duration, refresh RefreshFunc) (Result, error) {
	if !keyPattern.MatchString(key) {
		return Result{}, fmt.Errorf("cachestore: invalid key %q", key)
	}
	if ttl <= 0 {
		ttl = s.cfg.TTL
	}

	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	path := s.path(key)
	if events, ok := s.readFresh(path, ttl); ok {
		s.m.CacheHit(key)
		return Result{Events: events, FromCache: true}, nil
	}

	s.m.CacheMiss(key)
	return s.refresh(ctx, key, path, refresh)
}

// Refresh bypasses the staleness check and rebuilds the cache file for key.
// The worker uses it to keep API requests on the cache-hit path.
func (s *Store) Refresh(ctx context.Context, key string, refresh RefreshFunc) (Result, error) {
	if !keyPattern.MatchString(key) {
		return Result{}, fmt.Errorf("cachestore: invalid key %q", key)
	}

	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	return s.refresh(ctx, key, s.path(key), refresh)
}

func (s *Store) refresh(ctx context.Context, key, path string, refresh RefreshFunc) (Result, error) {
	events, err := refresh(ctx)
	if err == nil {
		if events == nil {
			events = []models.Event{}
		}
		if werr := s.write(path, events); werr != nil {
			// Persistence is best-effort; the fresh result still goes out.
			s.m.CacheWriteError()
			s.log.Warn("cache write failed", slog.String("key", key), slog.Any("err", werr))
		}
		return Result{Events: events}, nil
	}

	s.log.Warn("refresh failed", slog.String("key", key), slog.Any("err", err))
	if prev, ok := s.read(path); ok {
		return Result{Events: prev, FromCache: true, Stale: true}, nil
	}
	return Result{Events: []models.Event{}}, fmt.Errorf("%w: %w", ErrNoData, err)
}

// Prune removes cache files whose modification time is older than maxAge and
// returns how many were deleted.
func (s *Store) Prune(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return 0, fmt.Errorf("cachestore: read dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.cfg.Dir, entry.Name())); err != nil {
			s.log.Warn("prune remove failed", slog.String("file", entry.Name()), slog.Any("err", err))
			continue
		}
		removed++
	}

	return removed, nil
}

// Check verifies the cache directory is writable.
func (s *Store) Check() error {
	probe := filepath.Join(s.cfg.Dir, ".probe-"+uuid.NewString())
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("cachestore: dir not writable: %w", err)
	}
	return os.Remove(probe)
}

func (s *Store) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.keys[key]
	if !ok {
		lock = &sync.Mutex{}
		s.keys[key] = lock
	}
	return lock
}

func (s *Store) path(key string) string {
	return filepath.Join(s.cfg.Dir, key+".json")
}

func (s *Store) readFresh(path string, ttl time.Duration) ([]models.Event, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if time.Since(info.ModTime()) > ttl {
		return nil, false
	}
	return s.read(path)
}

func (s *Store) read(path string) ([]models.Event, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var events []models.Event
	if err := json.Unmarshal(data, &events); err != nil {
		s.log.Warn("cache file corrupt", slog.String("path", path), slog.Any("err", err))
		return nil, false
	}
	return events, true
}

// write replaces the cache file atomically: serialize to a temp file in the
// same directory, then rename over the target so readers never observe a
// torn write.
func (s *Store) write(path string, events []models.Event) error {
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}

	tmp := path + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace cache file: %w", err)
	}
	return nil
}
