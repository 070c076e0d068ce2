package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tolosaweb/agenda/backend/internal/cachestore"
	"github.com/tolosaweb/agenda/backend/internal/config"
	"github.com/tolosaweb/agenda/backend/internal/logger"
)

// The retention binary prunes cache files that stopped being refreshed:
// renamed source sets, removed sets, dead deployments.
func main() {
	_ = godotenv.Load()
	log := logger.New("retention")

	cfg, err := config.LoadRetention()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	store, err := cachestore.New(cachestore.Config{Dir: cfg.CacheDir, TTL: cfg.CacheTTL}, log, nil)
	if err != nil {
		log.Error("init cache store", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	log.Info("retention job running",
		slog.Duration("interval", cfg.Interval),
		slog.Duration("max_age", cfg.MaxAge),
	)

	runOnce(log, store, cfg)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
			runOnce(log, store, cfg)
		}
	}
}

func runOnce(log *slog.Logger, store *cachestore.Store, cfg *config.Retention) {
	removed, err := store.Prune(cfg.MaxAge)
	if err != nil {
		log.Warn("retention run failed (will retry on next interval)", slog.Any("err", err))
		return
	}

	if removed > 0 {
		log.Info("retention run completed", slog.Int("removed", removed))
	} else {
		log.Debug("retention run completed, no stale cache files found")
	}
}
