package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionCancelled TransactionStatus = "cancelled"
	TransactionFailed    TransactionStatus = "failed"
)

func ParseTransactionStatus(s string) (TransactionStatus, error) {
	switch st := TransactionStatus(s); st {
	case TransactionPending, TransactionCompleted, TransactionCancelled, TransactionFailed:
		return st, nil
	}
	return "", ErrInvalidStatus
}

// CanTransition reports whether a stored transaction may move from s to next.
func (s TransactionStatus) CanTransition(next TransactionStatus) bool {
	switch s {
	case TransactionPending:
		return next == TransactionCompleted || next == TransactionCancelled
	case TransactionCompleted:
		return next == TransactionCancelled
	}
	return false
}

// Transaction is one purchase. A completed transaction owns exactly
// Quantity ticket passes.
type Transaction struct {
	ID            string
	OrderCode     string
	ReservationID string
	UserID        string
	CustomerName  string
	EventID       string
	TicketTypeID  string
	Quantity      int
	TotalPrice    decimal.Decimal
	Status        TransactionStatus
	InitiatedBy   Role
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TransactionFilter narrows a transaction listing. An empty UserID means all users.
type TransactionFilter struct {
	UserID string
	Search string
	Status TransactionStatus
	Limit  int
	Offset int
}

// TicketPass is one redeemable admission. Token is the QR payload.
type TicketPass struct {
	ID            string
	TransactionID string
	TicketTypeID  string
	Token         string
	CreatedAt     time.Time
}

const (
	EventTransactionCompleted = "transaction.completed"
	EventTransactionPending   = "transaction.pending"
	EventTransactionCancelled = "transaction.cancelled"
	EventTransactionDeleted   = "transaction.deleted"
)

// TransactionEvent is published after a transaction changes state.
type TransactionEvent struct {
	Type          string            `json:"type"`
	TransactionID string            `json:"transaction_id"`
	OrderCode     string            `json:"order_code"`
	EventID       string            `json:"event_id"`
	TicketTypeID  string            `json:"ticket_type_id"`
	UserID        string            `json:"user_id,omitempty"`
	Quantity      int               `json:"quantity"`
	TotalPrice    decimal.Decimal   `json:"total_price"`
	Status        TransactionStatus `json:"status"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

func NewTransactionEvent(eventType string, txn Transaction, at time.Time) TransactionEvent {
	return TransactionEvent{
		Type:          eventType,
		TransactionID: txn.ID,
		OrderCode:     txn.OrderCode,
		EventID:       txn.EventID,
		TicketTypeID:  txn.TicketTypeID,
		UserID:        txn.UserID,
		Quantity:      txn.Quantity,
		TotalPrice:    txn.TotalPrice,
		Status:        txn.Status,
		OccurredAt:    at,
	}
}
