package app

import (
	"context"
	"time"

	"github.com/NavanKen/Eventify/internal/domain"
)

// InventoryLedger is the only component allowed to change TicketType.Sold.
// Reserve must be a single conditional increment evaluated by the store.
type InventoryLedger interface {
	Reserve(ctx context.Context, ticketTypeID string, quantity int) (domain.Reservation, error)
	Commit(ctx context.Context, reservationID string) error
	Release(ctx context.Context, reservationID string) error
}

type StaleReservationReleaser interface {
	ReleaseStale(ctx context.Context, heldBefore time.Time) (int, error)
}

type TransactionStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateTransaction(ctx context.Context, txn domain.Transaction) error
	GetTransaction(ctx context.Context, id string) (domain.Transaction, error)
	GetTransactionForUpdate(ctx context.Context, id string) (domain.Transaction, error)
	FindTransactionByOrderCode(ctx context.Context, orderCode string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, int, error)
	UpdateTransactionStatus(ctx context.Context, id string, status domain.TransactionStatus, at time.Time) error
	DeleteTransaction(ctx context.Context, id string) error
}

type PassStore interface {
	InsertPasses(ctx context.Context, passes []domain.TicketPass) error
	ListPassesByTransaction(ctx context.Context, transactionID string) ([]domain.TicketPass, error)
	DeletePassesByTransaction(ctx context.Context, transactionID string) (int, error)
}

// EventPublisher delivers transaction notifications. Failures are logged by
// callers and never undo a purchase.
type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, evt domain.TransactionEvent) error
}

// OrderLocker rejects concurrent submissions of the same order code.
type OrderLocker interface {
	Lock(ctx context.Context, orderCode string) (token string, err error)
	Unlock(ctx context.Context, orderCode, token string) error
}
