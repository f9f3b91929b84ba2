package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// MaxQuantity bounds quotas and purchase quantities to what the INTEGER
// quota and sold columns hold.
const MaxQuantity = math.MaxInt32

// TicketType is a purchasable admission category with a finite quota.
// Sold is only ever changed by the inventory ledger; 0 <= Sold <= Quota.
type TicketType struct {
	ID          string
	EventID     string
	Name        string
	Description string
	Price       decimal.Decimal
	Quota       int
	Sold        int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (t TicketType) Available() int {
	if t.Sold >= t.Quota {
		return 0
	}
	return t.Quota - t.Sold
}
