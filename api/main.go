package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tolosaweb/agenda/backend/internal/aggregate"
	"github.com/tolosaweb/agenda/backend/internal/cachestore"
	"github.com/tolosaweb/agenda/backend/internal/config"
	"github.com/tolosaweb/agenda/backend/internal/logger"
	"github.com/tolosaweb/agenda/backend/internal/metrics"
	"github.com/tolosaweb/agenda/backend/internal/models"
	"github.com/tolosaweb/agenda/backend/internal/source"
)

func main() {
	_ = godotenv.Load()
	log := logger.New("api")

	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	cat, err := config.LoadCatalogue(cfg.SourcesFile)
	if err != nil {
		log.Error("load source catalogue", slog.Any("err", err))
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	store, err := cachestore.New(cachestore.Config{Dir: cfg.CacheDir, TTL: cfg.CacheTTL}, log, m)
	if err != nil {
		log.Error("init cache store", slog.Any("err", err))
		os.Exit(1)
	}

	aggs, ttls, err := buildSets(cfg.Common, cat, log, m)
	if err != nil {
		log.Error("build source adapters", slog.Any("err", err))
		os.Exit(1)
	}

	srv := &server{log: log, cfg: cfg, store: store, aggs: aggs, ttls: ttls}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", srv.handleHealth)
	r.Get("/events", srv.handleEvents)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go func() {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}

// buildSets constructs one aggregator per catalogue set.
func buildSets(cfg config.Common, cat *config.Catalogue, log *slog.Logger, m *metrics.Metrics) (map[string]*aggregate.Aggregator, map[string]time.Duration, error) {
	aggs := make(map[string]*aggregate.Aggregator, len(cat.Sets))
	ttls := make(map[string]time.Duration, len(cat.Sets))

	for _, set := range cat.Sets {
		adapters := make([]source.Adapter, 0, len(set.Sources))
		for _, d := range set.Sources {
			adapter, err := source.New(d, log)
			if err != nil {
				return nil, nil, err
			}
			adapters = append(adapters, adapter)
		}

		var enricher *source.Enricher
		if cfg.ScrapeEnrichment {
			enricher = source.NewEnricher(0, cfg.ScrapeBudget, log)
		}

		aggs[set.Name] = aggregate.New(adapters, enricher, log, m)
		ttls[set.Name] = set.TTL
	}

	return aggs, ttls, nil
}

type server struct {
	log   *slog.Logger
	cfg   *config.API
	store *cachestore.Store
	aggs  map[string]*aggregate.Aggregator
	ttls  map[string]time.Duration
}

type errorResponse struct {
	Error string `json:"error"`
}

type eventsResponse struct {
	Events []models.Event `json:"events"`
	Total  int            `json:"total"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Check(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleEvents serves one source set, refreshing through the cache store when
// its file is stale. Partial source failure still answers 200; only "every
// source failed and no cache exists" becomes a 500.
func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	set := strings.TrimSpace(r.URL.Query().Get("set"))
	if set == "" {
		set = s.cfg.DefaultSet
	}

	agg, ok := s.aggs[set]
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown source set"})
		return
	}

	result, err := s.store.Get(ctx, set, s.ttls[set], agg.Aggregate)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, eventsResponse{Events: result.Events, Total: len(result.Events)})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
