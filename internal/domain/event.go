package domain

import "time"

// Event is something tickets are sold for. Inventory lives on its ticket types.
type Event struct {
	ID       string
	Name     string
	StartsAt time.Time
}
