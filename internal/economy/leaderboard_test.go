package economy_test

import (
	"testing"

	"github.com/google/uuid"

	"EcoLedger/internal/economy"
)

func TestTopBalances_OrderAndRanks(t *testing.T) {
	c := economy.NewBalanceCache(0, nil)
	for i, bal := range []float64{10, 500, 250, 40} {
		c.Load(uuid.New(), bal, string(rune('a'+i)))
	}

	top := c.TopBalances(10)

	if len(top) != 4 {
		t.Fatalf("got %d entries, want 4", len(top))
	}
	for i, e := range top {
		if e.Rank != i+1 {
			t.Errorf("entry %d: rank %d, want %d", i, e.Rank, i+1)
		}
		if i > 0 && top[i-1].Balance < e.Balance {
			t.Errorf("entry %d: balances not non-increasing (%v then %v)", i, top[i-1].Balance, e.Balance)
		}
	}
	if top[0].Balance != 500 {
		t.Errorf("top balance: got %v, want 500", top[0].Balance)
	}
}

func TestTopBalances_TruncatesToLimit(t *testing.T) {
	c := economy.NewBalanceCache(0, nil)
	for i := 0; i < 8; i++ {
		c.Load(uuid.New(), float64(i), "p")
	}

	top := c.TopBalances(3)
	if len(top) != 3 {
		t.Fatalf("got %d entries, want 3", len(top))
	}
	if top[0].Balance != 7 || top[2].Balance != 5 {
		t.Errorf("got balances %v, %v, %v; want 7, 6, 5", top[0].Balance, top[1].Balance, top[2].Balance)
	}
}

func TestTopBalances_FewerEntriesThanLimit(t *testing.T) {
	c := economy.NewBalanceCache(0, nil)
	c.Load(uuid.New(), 1, "solo")

	if got := len(c.TopBalances(100)); got != 1 {
		t.Errorf("got %d entries, want 1", got)
	}
}

func TestTopBalances_TieBreakDeterministic(t *testing.T) {
	c := economy.NewBalanceCache(0, nil)
	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high := uuid.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff")
	c.Load(high, 100, "zed")
	c.Load(low, 100, "amy")

	top := c.TopBalances(2)
	if top[0].AccountID != low {
		t.Errorf("equal balances should order by id ascending: got %v first", top[0].AccountID)
	}

	// Same result regardless of insertion order.
	c2 := economy.NewBalanceCache(0, nil)
	c2.Load(low, 100, "amy")
	c2.Load(high, 100, "zed")
	top2 := c2.TopBalances(2)
	if top2[0].AccountID != top[0].AccountID || top2[1].AccountID != top[1].AccountID {
		t.Error("tie-break should be independent of insertion order")
	}
}

func TestTopBalances_EmptyCache(t *testing.T) {
	c := economy.NewBalanceCache(0, nil)
	if got := len(c.TopBalances(5)); got != 0 {
		t.Errorf("got %d entries, want 0", got)
	}
}
