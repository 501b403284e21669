package bridge_test

import (
	"testing"

	"github.com/google/uuid"

	"EcoLedger/internal/bridge"
	"EcoLedger/internal/economy"
	"EcoLedger/internal/messages"
)

func newBridge() (*bridge.Economy, *economy.BalanceCache) {
	cache := economy.NewBalanceCache(100, nil)
	fmtr := messages.NewFormatter("Coin", "Coins", "")
	return bridge.NewEconomy(cache, fmtr, "EcoLedger"), cache
}

func TestEconomy_Identity(t *testing.T) {
	e, _ := newBridge()
	if e.Name() != "EcoLedger" {
		t.Errorf("got %q", e.Name())
	}
	if e.FractionalDigits() != 2 {
		t.Errorf("got %d fractional digits, want 2", e.FractionalDigits())
	}
	if e.CurrencyNameSingular() != "Coin" || e.CurrencyNamePlural() != "Coins" {
		t.Error("currency names not wired through")
	}
}

func TestEconomy_BalanceByName(t *testing.T) {
	e, cache := newBridge()
	id := uuid.New()
	cache.Load(id, 250, "Alice")

	if !e.HasAccount("alice") {
		t.Error("case-insensitive lookup should find Alice")
	}
	if got := e.Balance("ALICE"); got != 250 {
		t.Errorf("got %v, want 250", got)
	}
	if e.HasAccount("nobody") {
		t.Error("unknown name should not resolve")
	}
	if got := e.Balance("nobody"); got != 0 {
		t.Errorf("unknown name balance: got %v, want 0", got)
	}
}

func TestEconomy_Has(t *testing.T) {
	e, cache := newBridge()
	cache.Load(uuid.New(), 50, "bob")

	if !e.Has("bob", 50) {
		t.Error("Has(50) should be true")
	}
	if e.Has("bob", 51) {
		t.Error("Has(51) should be false")
	}
	if e.Has("nobody", 0) {
		t.Error("unknown name should fail Has")
	}
}

func TestEconomy_WithdrawOutcomes(t *testing.T) {
	e, cache := newBridge()
	cache.Load(uuid.New(), 100, "carol")

	res := e.Withdraw("carol", 40)
	if !res.OK || res.Balance != 60 || res.Amount != 40 {
		t.Errorf("got %+v, want OK with balance 60", res)
	}

	res = e.Withdraw("carol", 100)
	if res.OK {
		t.Error("overdraw should fail")
	}
	if res.Balance != 60 {
		t.Errorf("failed withdraw must report the unchanged balance, got %v", res.Balance)
	}
	if res.Reason == "" {
		t.Error("failure should carry a reason")
	}

	res = e.Withdraw("carol", -5)
	if res.OK || res.Reason != messages.InvalidAmount {
		t.Errorf("got %+v, want invalid-amount failure", res)
	}

	res = e.Withdraw("nobody", 10)
	if res.OK || res.Reason == "" {
		t.Errorf("got %+v, want unknown-account failure", res)
	}
}

func TestEconomy_DepositOutcomes(t *testing.T) {
	e, cache := newBridge()
	cache.Load(uuid.New(), 10, "dave")

	res := e.Deposit("dave", 15)
	if !res.OK || res.Balance != 25 {
		t.Errorf("got %+v, want OK with balance 25", res)
	}

	res = e.Deposit("dave", 0)
	if res.OK {
		t.Error("zero deposit should fail")
	}

	res = e.Deposit("nobody", 10)
	if res.OK {
		t.Error("unknown name should fail")
	}
}

func TestEconomy_TopBalances(t *testing.T) {
	e, cache := newBridge()
	cache.Load(uuid.New(), 5, "a")
	cache.Load(uuid.New(), 50, "b")

	top := e.TopBalances(1)
	if len(top) != 1 || top[0].Balance != 50 {
		t.Errorf("got %+v, want single entry with balance 50", top)
	}
	if e.TopBalances(0) != nil {
		t.Error("non-positive limit should return nil")
	}
}
