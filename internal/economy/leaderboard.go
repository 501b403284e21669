package economy

import (
	"sort"

	"github.com/google/uuid"
)

// LeaderboardEntry is one ranked line of the top-balances view.
type LeaderboardEntry struct {
	Rank        int
	AccountID   uuid.UUID
	DisplayName string
	Balance     float64
}

// TopBalances returns the limit highest cached balances, ranked from 1.
// Ordering is balance descending; equal balances break ties by account id
// ascending so the result is deterministic. The caller must reject
// non-positive limits before calling.
func (c *BalanceCache) TopBalances(limit int) []LeaderboardEntry {
	rows := c.Snapshot()

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Balance != rows[j].Balance {
			return rows[i].Balance > rows[j].Balance
		}
		return rows[i].ID.String() < rows[j].ID.String()
	})

	if limit < len(rows) {
		rows = rows[:limit]
	}

	top := make([]LeaderboardEntry, len(rows))
	for i, r := range rows {
		top[i] = LeaderboardEntry{
			Rank:        i + 1,
			AccountID:   r.ID,
			DisplayName: r.DisplayName,
			Balance:     r.Balance,
		}
	}

	if c.metrics != nil {
		c.metrics.LeaderboardQueries.Inc()
	}
	return top
}
