// Package bridge exposes the ledger to third-party components that know
// accounts only by display name. It maps names to account ids through the
// cache's name index and delegates to the same cache operations the command
// layer uses. Every failure — unknown name, invalid amount, insufficient
// funds — comes back as a structured Result, never a panic.
package bridge

import (
	"EcoLedger/internal/economy"
	"EcoLedger/internal/messages"
)

// Result is the structured outcome of a bridge operation.
type Result struct {
	OK      bool    `json:"ok"`
	Amount  float64 `json:"amount"`  // amount moved (0 on failure)
	Balance float64 `json:"balance"` // balance after the operation
	Reason  string  `json:"reason,omitempty"`
}

// Economy is the name-keyed adapter over the balance cache. Only accounts
// with an active session are reachable: the bridge never touches storage.
type Economy struct {
	cache      *economy.BalanceCache
	fmtr       *messages.Formatter
	systemName string
}

func NewEconomy(cache *economy.BalanceCache, fmtr *messages.Formatter, systemName string) *Economy {
	return &Economy{cache: cache, fmtr: fmtr, systemName: systemName}
}

// Name returns the configured system display name.
func (e *Economy) Name() string { return e.systemName }

// FractionalDigits returns the display precision of amounts.
func (e *Economy) FractionalDigits() int { return 2 }

// Format renders an amount with the currency name.
func (e *Economy) Format(amount float64) string { return e.fmtr.FormatAmount(amount) }

// CurrencyNameSingular returns the singular currency name.
func (e *Economy) CurrencyNameSingular() string { return e.fmtr.CurrencyName() }

// CurrencyNamePlural returns the plural currency name.
func (e *Economy) CurrencyNamePlural() string { return e.fmtr.CurrencyNamePlural() }

// HasAccount reports whether an active account carries this display name.
func (e *Economy) HasAccount(name string) bool {
	id, ok := e.cache.ResolveName(name)
	return ok && e.cache.HasAccount(id)
}

// Balance returns the cached balance for the named account, 0 if unknown.
func (e *Economy) Balance(name string) float64 {
	id, ok := e.cache.ResolveName(name)
	if !ok {
		return 0
	}
	return e.cache.GetBalance(id)
}

// Has reports whether the named account's balance covers amount.
func (e *Economy) Has(name string, amount float64) bool {
	id, ok := e.cache.ResolveName(name)
	if !ok {
		return false
	}
	return e.cache.Has(id, amount)
}

// Withdraw removes amount from the named account.
func (e *Economy) Withdraw(name string, amount float64) Result {
	id, ok := e.cache.ResolveName(name)
	if !ok {
		return Result{Reason: messages.Render(messages.UnknownAccount, map[string]string{"player": name})}
	}
	if amount <= 0 {
		return Result{Balance: e.cache.GetBalance(id), Reason: messages.InvalidAmount}
	}
	if !e.cache.Withdraw(id, amount) {
		return Result{
			Balance: e.cache.GetBalance(id),
			Reason: messages.Render(messages.InsufficientFunds, map[string]string{
				"player":   name,
				"currency": e.fmtr.CurrencyNamePlural(),
			}),
		}
	}
	return Result{OK: true, Amount: amount, Balance: e.cache.GetBalance(id)}
}

// Deposit adds amount to the named account.
func (e *Economy) Deposit(name string, amount float64) Result {
	id, ok := e.cache.ResolveName(name)
	if !ok {
		return Result{Reason: messages.Render(messages.UnknownAccount, map[string]string{"player": name})}
	}
	if amount <= 0 {
		return Result{Balance: e.cache.GetBalance(id), Reason: messages.InvalidAmount}
	}
	if !e.cache.Deposit(id, amount) {
		return Result{Balance: e.cache.GetBalance(id), Reason: messages.InvalidAmount}
	}
	return Result{OK: true, Amount: amount, Balance: e.cache.GetBalance(id)}
}

// TopBalances returns the ranked leaderboard limited to limit entries.
func (e *Economy) TopBalances(limit int) []economy.LeaderboardEntry {
	if limit <= 0 {
		return nil
	}
	return e.cache.TopBalances(limit)
}
