package economy

import "github.com/google/uuid"

// AccountRow is the durable representation of an account: one row in
// economy.accounts. It is the unit exchanged between the cache and the store.
type AccountRow struct {
	ID          uuid.UUID
	Balance     float64
	DisplayName string
}
