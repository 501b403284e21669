package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"EcoLedger/internal/economy"
	"EcoLedger/internal/events"
	"EcoLedger/internal/observability"
)

// Store is the slice of the balance store the scheduler needs.
type Store interface {
	UpsertBatch(ctx context.Context, rows []economy.AccountRow) error
}

// AutoSave periodically drains the balance cache into durable storage,
// bounding the data-loss window without ever blocking hot-path operations.
// A failed flush re-marks the cache dirty; the next tick retries with a
// fresh snapshot, which may include newer mutations — eventual durability,
// not delta tracking.
type AutoSave struct {
	cache    *economy.BalanceCache
	store    Store
	interval time.Duration
	log      zerolog.Logger
	metrics  *observability.Metrics
	publish  chan<- events.Event // may be nil
}

// NewAutoSave creates the scheduler. metrics and publish may be nil.
func NewAutoSave(cache *economy.BalanceCache, store Store, interval time.Duration, log zerolog.Logger, metrics *observability.Metrics, publish chan<- events.Event) *AutoSave {
	return &AutoSave{
		cache:    cache,
		store:    store,
		interval: interval,
		log:      log,
		metrics:  metrics,
		publish:  publish,
	}
}

// Run starts the autosave loop. Blocks until ctx is cancelled. The shutdown
// flush is NOT performed here: the orchestrator calls FlushNow after session
// queues have drained, so the final write always sees the freshest state.
func (a *AutoSave) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			if err := a.FlushNow(ctx, "autosave"); err != nil {
				a.log.Error().Err(err).Msg("autosave flush failed, will retry next tick")
			}
		}
	}
}

// FlushNow flushes the whole cache if it is dirty. The dirty flag is claimed
// before the snapshot is taken and restored on failure, so mutations that
// race the flush I/O are never silently dropped from dirty tracking.
func (a *AutoSave) FlushNow(ctx context.Context, kind string) error {
	if !a.cache.BeginFlush() {
		return nil
	}

	rows := a.cache.Snapshot()
	start := time.Now()

	if err := a.store.UpsertBatch(ctx, rows); err != nil {
		a.cache.MarkDirty()
		if a.metrics != nil {
			a.metrics.FlushErrors.Inc()
		}
		return fmt.Errorf("%s flush of %d accounts: %w", kind, len(rows), err)
	}

	if a.metrics != nil {
		a.metrics.FlushDuration.Observe(time.Since(start).Seconds())
		a.metrics.FlushRows.Observe(float64(len(rows)))
		a.metrics.FlushesTotal.WithLabelValues(kind).Inc()
	}

	if a.publish != nil {
		select {
		case a.publish <- events.Event{Type: events.TypeAutosaveFlush, Accounts: len(rows)}:
		default:
		}
	}

	a.log.Debug().Int("accounts", len(rows)).Str("kind", kind).Dur("took", time.Since(start)).Msg("flushed cache")
	return nil
}
