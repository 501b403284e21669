package economy

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"EcoLedger/internal/observability"
)

// BalanceCache is the authoritative in-memory state for all accounts with an
// active session, and the sole target of hot-path balance reads and writes.
// All methods are safe for concurrent use. Mutations never touch storage;
// durability is the job of the autosave scheduler and the session lifecycle.
//
// Dirty tracking is deliberately coarse: a single process-wide flag meaning
// "at least one entry differs from storage." Every flush writes the whole
// cache, trading write amplification for simplicity. The flag is cleared
// via BeginFlush BEFORE the snapshot is taken, so a mutation racing the
// flush I/O re-marks the cache dirty instead of being silently lost.
type BalanceCache struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*entry
	names   map[string]uuid.UUID // lower-cased display name -> account id

	dirty atomic.Bool

	defaultBalance float64
	metrics        *observability.Metrics
}

// entry is the cached state of one account. The entry mutex serializes
// read-modify-write balance updates per account, independent of the map lock.
type entry struct {
	mu      sync.Mutex
	balance float64
	name    string
}

// NewBalanceCache creates an empty cache. metrics may be nil.
func NewBalanceCache(defaultBalance float64, metrics *observability.Metrics) *BalanceCache {
	return &BalanceCache{
		entries:        make(map[uuid.UUID]*entry),
		names:          make(map[string]uuid.UUID),
		defaultBalance: defaultBalance,
		metrics:        metrics,
	}
}

// HasAccount reports whether an entry is currently cached for id.
// It never consults the store.
func (c *BalanceCache) HasAccount(id uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[id]
	return ok
}

// Load installs an entry with state read from durable storage, replacing any
// existing entry for id. The entry is NOT marked dirty: it matches the
// persisted row by construction.
func (c *BalanceCache) Load(id uuid.UUID, balance float64, displayName string) {
	c.mu.Lock()
	if old, ok := c.entries[id]; ok {
		c.unindexNameLocked(id, old.name)
	}
	c.entries[id] = &entry{balance: balance, name: displayName}
	c.indexNameLocked(id, displayName)
	c.mu.Unlock()
	c.updateSizeGauge()
}

// SetDisplayName updates the cached display name to the latest seen value
// and marks dirty if it changed. No-op for uncached accounts.
func (c *BalanceCache) SetDisplayName(id uuid.UUID, displayName string) {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok || e.name == displayName {
		c.mu.Unlock()
		return
	}
	c.unindexNameLocked(id, e.name)
	e.name = displayName
	c.indexNameLocked(id, displayName)
	c.mu.Unlock()
	c.markDirty()
}

// CreateAccountIfAbsent inserts an entry with the default balance and marks
// the cache dirty. Idempotent: a second call for the same id is a no-op and
// returns false.
func (c *BalanceCache) CreateAccountIfAbsent(id uuid.UUID, displayName string) bool {
	c.mu.Lock()
	if _, ok := c.entries[id]; ok {
		c.mu.Unlock()
		return false
	}
	c.entries[id] = &entry{balance: c.defaultBalance, name: displayName}
	c.indexNameLocked(id, displayName)
	c.mu.Unlock()

	c.markDirty()
	c.updateSizeGauge()
	return true
}

// GetBalance returns the cached balance, or 0 if the account is not cached.
// Absence is not an error at this layer.
func (c *BalanceCache) GetBalance(id uuid.UUID) float64 {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balance
}

// SetBalance overwrites the balance and marks dirty. Negative amounts are
// rejected without mutation. Setting the balance of an uncached account
// creates an entry for it.
func (c *BalanceCache) SetBalance(id uuid.UUID, amount float64) bool {
	if amount < 0 {
		c.countOp("set", "rejected")
		return false
	}

	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		c.entries[id] = &entry{balance: amount}
		c.mu.Unlock()
		c.markDirty()
		c.updateSizeGauge()
		c.countOp("set", "ok")
		return true
	}
	c.mu.Unlock()

	e.mu.Lock()
	e.balance = amount
	e.mu.Unlock()
	c.markDirty()
	c.countOp("set", "ok")
	return true
}

// Deposit atomically adds amount to the balance. Non-positive amounts are
// rejected. Depositing into an uncached account creates an entry holding
// exactly the deposited amount.
func (c *BalanceCache) Deposit(id uuid.UUID, amount float64) bool {
	if amount <= 0 {
		c.countOp("deposit", "rejected")
		return false
	}

	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok {
		c.depositAbsent(id, amount)
		c.countOp("deposit", "ok")
		return true
	}

	e.mu.Lock()
	e.balance += amount
	e.mu.Unlock()
	c.markDirty()
	c.countOp("deposit", "ok")
	return true
}

// depositAbsent handles a deposit that observed no entry. Existence is
// re-checked under the map lock: a concurrent deposit may have created the
// entry in the meantime, and overwriting here would lose its amount.
func (c *BalanceCache) depositAbsent(id uuid.UUID, amount float64) {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		c.entries[id] = &entry{balance: amount}
		c.mu.Unlock()
		c.markDirty()
		c.updateSizeGauge()
		return
	}
	c.mu.Unlock()

	e.mu.Lock()
	e.balance += amount
	e.mu.Unlock()
	c.markDirty()
}

// Withdraw atomically subtracts amount from the balance. It rejects
// non-positive amounts and insufficient funds; the sufficiency check and the
// subtraction happen under the same per-account lock, so concurrent
// withdrawals cannot overdraw.
func (c *BalanceCache) Withdraw(id uuid.UUID, amount float64) bool {
	if amount <= 0 {
		c.countOp("withdraw", "rejected")
		return false
	}

	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok {
		c.countOp("withdraw", "insufficient")
		return false
	}

	e.mu.Lock()
	if e.balance < amount {
		e.mu.Unlock()
		c.countOp("withdraw", "insufficient")
		return false
	}
	e.balance -= amount
	e.mu.Unlock()
	c.markDirty()
	c.countOp("withdraw", "ok")
	return true
}

// Has reports whether the cached balance covers amount.
func (c *BalanceCache) Has(id uuid.UUID, amount float64) bool {
	return c.GetBalance(id) >= amount
}

// DisplayName returns the cached display name for id.
func (c *BalanceCache) DisplayName(id uuid.UUID) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	if !ok {
		return "", false
	}
	return e.name, true
}

// ResolveName maps a display name (case-insensitive) to a cached account id.
// If two active accounts share a name, the most recently indexed one wins.
func (c *BalanceCache) ResolveName(name string) (uuid.UUID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.names[strings.ToLower(name)]
	return id, ok
}

// Snapshot returns a point-in-time copy of every cached entry, for use by
// batch flushes. No lock is held while the caller performs I/O on the result.
func (c *BalanceCache) Snapshot() []AccountRow {
	c.mu.RLock()
	rows := make([]AccountRow, 0, len(c.entries))
	for id, e := range c.entries {
		e.mu.Lock()
		rows = append(rows, AccountRow{ID: id, Balance: e.balance, DisplayName: e.name})
		e.mu.Unlock()
	}
	c.mu.RUnlock()
	return rows
}

// Row returns the current state of one account as a persistable row.
func (c *BalanceCache) Row(id uuid.UUID) (AccountRow, bool) {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok {
		return AccountRow{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return AccountRow{ID: id, Balance: e.balance, DisplayName: e.name}, true
}

// Evict removes an entry. Callers must have flushed it first; eviction drops
// the in-memory state without any durability guarantee of its own.
func (c *BalanceCache) Evict(id uuid.UUID) {
	c.mu.Lock()
	if e, ok := c.entries[id]; ok {
		c.unindexNameLocked(id, e.name)
		delete(c.entries, id)
	}
	c.mu.Unlock()
	c.updateSizeGauge()
}

// Len returns the number of cached accounts.
func (c *BalanceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Dirty reports whether any entry has changed since the last successful flush.
func (c *BalanceCache) Dirty() bool {
	return c.dirty.Load()
}

// BeginFlush atomically claims the dirty state for a flush attempt. It
// returns true if the cache was dirty, clearing the flag before the caller
// snapshots — mutations that land during the flush I/O set it again. If the
// flush fails the caller must call MarkDirty to restore the flag.
func (c *BalanceCache) BeginFlush() bool {
	if !c.dirty.CompareAndSwap(true, false) {
		return false
	}
	if c.metrics != nil {
		c.metrics.CacheDirty.Set(0)
	}
	return true
}

// MarkDirty flags the cache as having unsaved changes.
func (c *BalanceCache) MarkDirty() {
	c.markDirty()
}

func (c *BalanceCache) markDirty() {
	c.dirty.Store(true)
	if c.metrics != nil {
		c.metrics.CacheDirty.Set(1)
	}
}

// indexNameLocked and unindexNameLocked maintain the name index; callers hold c.mu.
func (c *BalanceCache) indexNameLocked(id uuid.UUID, name string) {
	if name == "" {
		return
	}
	c.names[strings.ToLower(name)] = id
}

func (c *BalanceCache) unindexNameLocked(id uuid.UUID, name string) {
	key := strings.ToLower(name)
	if owner, ok := c.names[key]; ok && owner == id {
		delete(c.names, key)
	}
}

func (c *BalanceCache) updateSizeGauge() {
	if c.metrics != nil {
		c.metrics.CacheEntries.Set(float64(c.Len()))
	}
}

func (c *BalanceCache) countOp(op, outcome string) {
	if c.metrics != nil {
		c.metrics.CacheOps.WithLabelValues(op, outcome).Inc()
	}
}
