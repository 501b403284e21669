package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"EcoLedger/internal/economy"
	"EcoLedger/internal/events"
	"EcoLedger/internal/observability"
)

// Store is the slice of the balance store the lifecycle needs.
type Store interface {
	LoadOne(ctx context.Context, id uuid.UUID) (economy.AccountRow, bool, error)
	UpsertBatch(ctx context.Context, rows []economy.AccountRow) error
}

// Lifecycle bridges session start/end events to the balance cache. Start and
// end for the same account id execute in submission order on a per-id FIFO
// queue, so a slow end-flush can never run after — and clobber — a later
// start for the same account. Operations on different ids run concurrently.
type Lifecycle struct {
	ctx     context.Context // bounds all storage I/O issued by the queues
	cache   *economy.BalanceCache
	store   Store
	log     zerolog.Logger
	metrics *observability.Metrics
	publish chan<- events.Event // may be nil

	mu     sync.Mutex
	queues map[uuid.UUID][]func()
	wg     sync.WaitGroup
}

// NewLifecycle creates a session lifecycle. ctx bounds every storage call the
// queues make; cancelling it aborts wedged I/O so Wait can return during
// shutdown. metrics and publish may be nil.
func NewLifecycle(ctx context.Context, cache *economy.BalanceCache, store Store, log zerolog.Logger, metrics *observability.Metrics, publish chan<- events.Event) *Lifecycle {
	return &Lifecycle{
		ctx:     ctx,
		cache:   cache,
		store:   store,
		log:     log,
		metrics: metrics,
		publish: publish,
		queues:  make(map[uuid.UUID][]func()),
	}
}

// OnSessionStart schedules the load for a starting session. done (may be nil)
// receives the outcome once the load has run.
func (l *Lifecycle) OnSessionStart(id uuid.UUID, displayName string, done func(error)) {
	l.submit(id, func() {
		err := l.handleStart(id, displayName)
		if done != nil {
			done(err)
		}
	})
}

// OnSessionEnd schedules the flush-and-evict for an ending session. done
// (may be nil) receives the outcome once the unload has run.
func (l *Lifecycle) OnSessionEnd(id uuid.UUID, done func(error)) {
	l.submit(id, func() {
		err := l.handleEnd(id)
		if done != nil {
			done(err)
		}
	})
}

// Wait blocks until every queued operation has completed. Called during
// shutdown before the final flush.
func (l *Lifecycle) Wait() {
	l.wg.Wait()
}

// submit appends fn to the per-id queue, starting a drain goroutine if the
// queue was idle. FIFO order per id is the whole point: it is what makes
// rapid reconnects safe.
func (l *Lifecycle) submit(id uuid.UUID, fn func()) {
	l.mu.Lock()
	q, running := l.queues[id]
	l.queues[id] = append(q, fn)
	l.mu.Unlock()

	// The drain goroutine deletes the key once empty, so a present key means
	// a goroutine is still draining it.
	if running {
		return
	}

	l.wg.Add(1)
	go l.drain(id)
}

func (l *Lifecycle) drain(id uuid.UUID) {
	defer l.wg.Done()
	for {
		l.mu.Lock()
		q := l.queues[id]
		if len(q) == 0 {
			delete(l.queues, id)
			l.mu.Unlock()
			return
		}
		fn := q[0]
		l.queues[id] = q[1:]
		l.mu.Unlock()

		fn()
	}
}

// handleStart loads the persisted balance, or defaults a brand-new account.
// If the lookup itself fails the session start fails: substituting the
// default here would let a later flush overwrite a real balance that was
// merely unreadable for a moment.
func (l *Lifecycle) handleStart(id uuid.UUID, displayName string) error {
	if l.cache.HasAccount(id) {
		// Rapid reconnect with the previous entry still cached (for example a
		// retained entry after a failed end-flush). The cached state is newer
		// than storage; only the display name is refreshed.
		l.cache.SetDisplayName(id, displayName)
		l.countLoad("retained")
		return nil
	}

	row, found, err := l.store.LoadOne(l.ctx, id)
	if err != nil {
		l.countLoad("failed")
		l.log.Error().Err(err).Stringer("account", id).Msg("session start load failed")
		return fmt.Errorf("session start %s: %w", id, err)
	}

	if found {
		// Install the persisted state clean, then apply the rename on top so a
		// changed name marks the cache dirty and gets persisted by autosave.
		l.cache.Load(id, row.Balance, row.DisplayName)
		l.cache.SetDisplayName(id, displayName)
		l.countLoad("loaded")
	} else {
		l.cache.CreateAccountIfAbsent(id, displayName)
		l.countLoad("defaulted")
	}

	l.emit(events.Event{Type: events.TypeSessionLoaded, AccountID: id, DisplayName: displayName, Balance: l.cache.GetBalance(id)})
	l.log.Debug().Stringer("account", id).Str("name", displayName).Bool("found", found).Msg("session started")
	return nil
}

// handleEnd persists the single entry and evicts it. On flush failure the
// entry stays cached so the next autosave retries it.
func (l *Lifecycle) handleEnd(id uuid.UUID) error {
	row, ok := l.cache.Row(id)
	if !ok {
		l.countUnload("absent")
		return nil
	}

	if err := l.store.UpsertBatch(l.ctx, []economy.AccountRow{row}); err != nil {
		l.countUnload("failed")
		if l.metrics != nil {
			l.metrics.FlushErrors.Inc()
		}
		l.log.Error().Err(err).Stringer("account", id).Msg("session end flush failed, entry retained")
		return fmt.Errorf("session end %s: %w", id, err)
	}

	l.cache.Evict(id)
	l.countUnload("flushed")
	if l.metrics != nil {
		l.metrics.FlushesTotal.WithLabelValues("session_end").Inc()
	}

	l.emit(events.Event{Type: events.TypeSessionUnloaded, AccountID: id, DisplayName: row.DisplayName, Balance: row.Balance})
	l.log.Debug().Stringer("account", id).Msg("session ended, entry flushed and evicted")
	return nil
}

func (l *Lifecycle) emit(evt events.Event) {
	if l.publish == nil {
		return
	}
	select {
	case l.publish <- evt:
	default:
		// Drop if the publish channel is full.
	}
}

func (l *Lifecycle) countLoad(outcome string) {
	if l.metrics != nil {
		l.metrics.SessionLoads.WithLabelValues(outcome).Inc()
	}
}

func (l *Lifecycle) countUnload(outcome string) {
	if l.metrics != nil {
		l.metrics.SessionUnloads.WithLabelValues(outcome).Inc()
	}
}
