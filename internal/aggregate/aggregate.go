package aggregate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tolosaweb/agenda/backend/internal/dedupe"
	"github.com/tolosaweb/agenda/backend/internal/freshness"
	"github.com/tolosaweb/agenda/backend/internal/metrics"
	"github.com/tolosaweb/agenda/backend/internal/models"
	"github.com/tolosaweb/agenda/backend/internal/normalize"
	"github.com/tolosaweb/agenda/backend/internal/source"
)

// ErrAllSourcesFailed reports that not a single adapter produced a result.
// Partial failure is not an error: failed sources just contribute nothing.
var ErrAllSourcesFailed = errors.New("aggregate: every configured source failed")

// Aggregator fans out to every configured source adapter, waits for all of
// them, and runs the normalize → freshness → dedupe → sort pipeline over the
// merged results.
type Aggregator struct {
	adapters []source.Adapter
	enricher *source.Enricher
	log      *slog.Logger
	m        *metrics.Metrics
	now      func() time.Time
}

// New builds an Aggregator. enricher may be nil to disable page scraping.
func New(adapters []source.Adapter, enricher *source.Enricher, log *slog.Logger, m *metrics.Metrics) *Aggregator {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Aggregator{
		adapters: adapters,
		enricher: enricher,
		log:      log,
		m:        m,
		now:      time.Now,
	}
}

type fetchResult struct {
	items []source.RawItem
	err   error
}

// Aggregate fetches all sources concurrently and returns the unified,
// deduplicated, date-ascending collection. The returned error is non-nil
// only when every adapter failed; zero events with a nil error is valid.
func (a *Aggregator) Aggregate(ctx context.Context) ([]models.Event, error) {
	results := make([]fetchResult, len(a.adapters))

	var wg sync.WaitGroup
	for i, adapter := range a.adapters {
		wg.Add(1)
		go func(i int, adapter source.Adapter) {
			defer wg.Done()
			items, err := adapter.Fetch(ctx)
			results[i] = fetchResult{items: items, err: err}
		}(i, adapter)
	}
	// Merge only begins once every adapter resolved; there is no abort on
	// first error and no streaming of partial results.
	wg.Wait()

	now := a.now()
	failures := 0
	events := make([]models.Event, 0, 64)

	for i, res := range results {
		adapter := a.adapters[i]
		if res.err != nil {
			failures++
			a.m.FetchFailure(adapter.Name())
			a.log.Warn("source fetch failed",
				slog.String("source", adapter.Name()),
				slog.Any("err", res.err),
			)
			continue
		}
		a.m.FetchSuccess(adapter.Name(), len(res.items))

		batch := make([]models.Event, 0, len(res.items))
		for _, item := range res.items {
			ev, ok := normalize.Normalize(item, normalize.Context{Source: adapter.Name(), Kind: adapter.Kind()})
			if !ok {
				a.m.RecordDropped(adapter.Name())
				continue
			}
			batch = append(batch, ev)
		}

		events = append(events, freshness.Apply(batch, adapter.Kind(), now)...)
	}

	events = dedupe.Deduplicate(events)
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Date.Equal(events[j].Date) {
			return events[i].Title < events[j].Title
		}
		return events[i].Date.Before(events[j].Date)
	})

	if a.enricher != nil {
		events = a.enricher.Enrich(ctx, events)
	}

	if len(a.adapters) > 0 && failures == len(a.adapters) {
		return events, ErrAllSourcesFailed
	}

	a.log.Info("aggregation completed",
		slog.Int("sources", len(a.adapters)),
		slog.Int("failed", failures),
		slog.Int("events", len(events)),
	)
	return events, nil
}
