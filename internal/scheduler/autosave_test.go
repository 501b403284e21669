package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"EcoLedger/internal/economy"
	"EcoLedger/internal/scheduler"
)

type fakeStore struct {
	mu      sync.Mutex
	batches [][]economy.AccountRow
	err     error
}

func (f *fakeStore) UpsertBatch(_ context.Context, rows []economy.AccountRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, rows)
	return nil
}

func (f *fakeStore) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func newAutoSave(cache *economy.BalanceCache, store scheduler.Store) *scheduler.AutoSave {
	return scheduler.NewAutoSave(cache, store, time.Hour, zerolog.Nop(), nil, nil)
}

func TestFlushNow_WritesWholeCacheWhenDirty(t *testing.T) {
	cache := economy.NewBalanceCache(0, nil)
	store := &fakeStore{}
	a, b := uuid.New(), uuid.New()
	cache.SetBalance(a, 10)
	cache.SetBalance(b, 20)

	as := newAutoSave(cache, store)
	if err := as.FlushNow(context.Background(), "autosave"); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	if got := store.batchCount(); got != 1 {
		t.Fatalf("got %d batches, want 1", got)
	}
	if got := len(store.batches[0]); got != 2 {
		t.Errorf("got %d rows, want the whole cache (2)", got)
	}
	if cache.Dirty() {
		t.Error("cache should be clean after a successful flush")
	}
}

func TestFlushNow_NoOpWhenClean(t *testing.T) {
	cache := economy.NewBalanceCache(0, nil)
	cache.Load(uuid.New(), 5, "x") // loaded, not dirty
	store := &fakeStore{}

	as := newAutoSave(cache, store)
	if err := as.FlushNow(context.Background(), "autosave"); err != nil {
		t.Fatal(err)
	}
	if got := store.batchCount(); got != 0 {
		t.Errorf("clean cache flushed %d batches, want 0", got)
	}
}

func TestFlushNow_FailureRestoresDirty(t *testing.T) {
	cache := economy.NewBalanceCache(0, nil)
	cache.SetBalance(uuid.New(), 10)
	store := &fakeStore{err: errors.New("timeout")}

	as := newAutoSave(cache, store)
	if err := as.FlushNow(context.Background(), "autosave"); err == nil {
		t.Fatal("flush should surface the store error")
	}
	if !cache.Dirty() {
		t.Error("failed flush must leave the cache dirty so the next tick retries")
	}

	// Next attempt succeeds and drains the retained state.
	store.mu.Lock()
	store.err = nil
	store.mu.Unlock()
	if err := as.FlushNow(context.Background(), "autosave"); err != nil {
		t.Fatal(err)
	}
	if got := store.batchCount(); got != 1 {
		t.Errorf("got %d batches after retry, want 1", got)
	}
}

func TestRun_FlushesOnTick(t *testing.T) {
	cache := economy.NewBalanceCache(0, nil)
	cache.SetBalance(uuid.New(), 1)
	store := &fakeStore{}

	as := scheduler.NewAutoSave(cache, store, 10*time.Millisecond, zerolog.Nop(), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- as.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for store.batchCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("no flush happened within the deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
}
