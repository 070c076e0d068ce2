package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tolosaweb/agenda/backend/internal/aggregate"
	"github.com/tolosaweb/agenda/backend/internal/cachestore"
	"github.com/tolosaweb/agenda/backend/internal/config"
	"github.com/tolosaweb/agenda/backend/internal/logger"
	"github.com/tolosaweb/agenda/backend/internal/metrics"
	"github.com/tolosaweb/agenda/backend/internal/source"
)

// The worker rebuilds every source set's cache file on an interval so API
// requests usually land on the cache-hit path.
func main() {
	_ = godotenv.Load()
	log := logger.New("worker")

	cfg, err := config.LoadWorker()
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

	sets, err := buildSets(cfg.Common, cat, log, m)
	if err != nil {
		log.Error("build source adapters", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	log.Info("worker started",
		slog.Int("sets", len(sets)),
		slog.Duration("interval", cfg.RefreshInterval),
	)

	ticker := time.NewTicker(cfg.RefreshInterval)
	defer ticker.Stop()

	refreshAll(ctx, log, store, sets, cfg.RefreshTimeout)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
			refreshAll(ctx, log, store, sets, cfg.RefreshTimeout)
		}
	}
}

type refreshSet struct {
	name string
	agg  *aggregate.Aggregator
}

func buildSets(cfg config.Common, cat *config.Catalogue, log *slog.Logger, m *metrics.Metrics) ([]refreshSet, error) {
	sets := make([]refreshSet, 0, len(cat.Sets))
	for _, set := range cat.Sets {
		adapters := make([]source.Adapter, 0, len(set.Sources))
		for _, d := range set.Sources {
			adapter, err := source.New(d, log)
			if err != nil {
				return nil, err
			}
			adapters = append(adapters, adapter)
		}

		var enricher *source.Enricher
		if cfg.ScrapeEnrichment {
			enricher = source.NewEnricher(0, cfg.ScrapeBudget, log)
		}

		sets = append(sets, refreshSet{name: set.Name, agg: aggregate.New(adapters, enricher, log, m)})
	}
	return sets, nil
}

func refreshAll(ctx context.Context, log *slog.Logger, store *cachestore.Store, sets []refreshSet, timeout time.Duration) {
	for _, set := range sets {
		select {
		case <-ctx.Done():
			return
		default:
		}

		subCtx, cancel := context.WithTimeout(ctx, timeout)
		result, err := store.Refresh(subCtx, set.name, set.agg.Aggregate)
		cancel()

		if err != nil {
			log.Warn("set refresh failed (will retry on next interval)",
				slog.String("set", set.name),
				slog.Any("err", err),
			)
			continue
		}

		log.Info("set refreshed",
			slog.String("set", set.name),
			slog.Int("events", len(result.Events)),
			slog.Bool("stale", result.Stale),
		)
	}
}
