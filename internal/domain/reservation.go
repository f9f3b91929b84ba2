package domain

import "time"

type ReservationStatus string

const (
	ReservationHeld      ReservationStatus = "held"
	ReservationCommitted ReservationStatus = "committed"
	ReservationReleased  ReservationStatus = "released"
)

// Reservation records units claimed from a ticket type's quota. Releasing
// is keyed by ID so a retried compensation cannot give back units twice.
type Reservation struct {
	ID           string
	TicketTypeID string
	EventID      string
	Quantity     int
	Status       ReservationStatus
	CreatedAt    time.Time
}
