package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"EcoLedger/internal/economy"
)

// BalanceStore is the durable side of the ledger: one Postgres row per known
// account. It owns schema creation, point lookups and batched upserts, and
// nothing else — retry policy belongs to the callers. A single mutex
// serializes storage calls; every caller runs on a background goroutine, so
// one in-flight statement at a time is all that is needed.
type BalanceStore struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// NewBalanceStore wraps an open database handle. The store takes ownership
// of the handle: Close releases it.
func NewBalanceStore(db *sql.DB) *BalanceStore {
	return &BalanceStore{db: db}
}

// EnsureSchema idempotently creates the accounts table. Safe to call on
// every startup.
func (s *BalanceStore) EnsureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `CREATE SCHEMA IF NOT EXISTS economy`); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS economy.accounts (
			account_id   UUID PRIMARY KEY,
			balance      DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (balance >= 0),
			display_name TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create accounts table: %w", err)
	}
	return nil
}

// LoadOne looks up a single account row. A missing row is reported via the
// boolean, not an error.
func (s *BalanceStore) LoadOne(ctx context.Context, id uuid.UUID) (economy.AccountRow, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var row economy.AccountRow
	err := s.db.QueryRowContext(ctx, `
		SELECT account_id, balance, display_name
		FROM economy.accounts
		WHERE account_id = $1
	`, id).Scan(&row.ID, &row.Balance, &row.DisplayName)
	if err == sql.ErrNoRows {
		return economy.AccountRow{}, false, nil
	}
	if err != nil {
		return economy.AccountRow{}, false, fmt.Errorf("load account %s: %w", id, err)
	}
	return row, true, nil
}

// UpsertBatch inserts or replaces every given row in one multi-row INSERT.
// An empty batch is a no-op. The statement is atomic: either all rows are
// written or none are.
func (s *BalanceStore) UpsertBatch(ctx context.Context, rows []economy.AccountRow) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `INSERT INTO economy.accounts (account_id, balance, display_name) VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*3)

	for i, r := range rows {
		base := i * 3
		values = append(values, fmt.Sprintf("($%d, $%d, $%d)", base+1, base+2, base+3))
		args = append(args, r.ID, r.Balance, r.DisplayName)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (account_id) DO UPDATE
		SET balance = EXCLUDED.balance, display_name = EXCLUDED.display_name`

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert %d accounts: %w", len(rows), err)
	}
	return nil
}

// Close releases the database handle. Safe to call at most once; any pending
// flush must have completed before this is invoked.
func (s *BalanceStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store already closed")
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
