package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/NavanKen/Eventify/internal/clock"
	"github.com/NavanKen/Eventify/internal/domain"
	"github.com/NavanKen/Eventify/internal/metrics"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type TransactionService struct {
	txns    TransactionStore
	passes  PassStore
	ledger  InventoryLedger
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
	notify  notifier
}

type TransactionOption func(*TransactionService)

func WithTransactionLogger(l *slog.Logger) TransactionOption {
	return func(s *TransactionService) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithTransactionMetrics(m *metrics.Metrics) TransactionOption {
	return func(s *TransactionService) { s.metrics = m }
}

func WithTransactionPublisher(p EventPublisher) TransactionOption {
	return func(s *TransactionService) { s.notify.publisher = p }
}

func NewTransactionService(txns TransactionStore, passes PassStore, ledger InventoryLedger, clk clock.Clock, opts ...TransactionOption) *TransactionService {
	svc := &TransactionService{
		txns:   txns,
		passes: passes,
		ledger: ledger,
		clock:  clk,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.notify = notifier{
		publisher: svc.notify.publisher,
		logger:    svc.logger,
		metrics:   svc.metrics,
		clock:     clk,
	}
	return svc
}

type TransactionDetail struct {
	Transaction domain.Transaction
	Passes      []domain.TicketPass
}

func (s *TransactionService) Get(ctx context.Context, actor domain.Actor, id string) (TransactionDetail, error) {
	if id == "" {
		return TransactionDetail{}, domain.ErrInvalidID
	}
	txn, err := s.txns.GetTransaction(ctx, id)
	if err != nil {
		return TransactionDetail{}, err
	}
	// Customers get not-found rather than forbidden so ids cannot be probed.
	if !actor.IsBackOffice() && txn.UserID != actor.UserID {
		return TransactionDetail{}, domain.ErrTransactionNotFound
	}

	passes, err := s.passes.ListPassesByTransaction(ctx, id)
	if err != nil {
		return TransactionDetail{}, err
	}
	return TransactionDetail{Transaction: txn, Passes: passes}, nil
}

type TransactionPage struct {
	Items  []domain.Transaction
	Total  int
	Limit  int
	Offset int
}

// List returns a page of transactions. Admins see every transaction; everyone
// else sees only their own.
func (s *TransactionService) List(ctx context.Context, actor domain.Actor, filter domain.TransactionFilter) (TransactionPage, error) {
	if filter.Status != "" {
		if _, err := domain.ParseTransactionStatus(string(filter.Status)); err != nil {
			return TransactionPage{}, err
		}
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	filter.UserID = actor.UserID
	if actor.Role == domain.RoleAdmin {
		filter.UserID = ""
	}

	items, total, err := s.txns.ListTransactions(ctx, filter)
	if err != nil {
		return TransactionPage{}, err
	}
	return TransactionPage{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// UpdateStatus moves a transaction along its lifecycle. Cancelling removes the
// passes and returns the units to the ticket type in the same store transaction.
func (s *TransactionService) UpdateStatus(ctx context.Context, actor domain.Actor, id string, next domain.TransactionStatus) (domain.Transaction, error) {
	if !actor.IsBackOffice() {
		return domain.Transaction{}, domain.ErrForbidden
	}
	if id == "" {
		return domain.Transaction{}, domain.ErrInvalidID
	}
	if _, err := domain.ParseTransactionStatus(string(next)); err != nil {
		return domain.Transaction{}, err
	}

	now := s.clock.Now()
	var updated domain.Transaction
	err := s.txns.WithTx(ctx, func(txCtx context.Context) error {
		txn, err := s.txns.GetTransactionForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if !txn.Status.CanTransition(next) {
			return domain.ErrInvalidStatusTransition
		}

		if next == domain.TransactionCancelled {
			if _, err := s.passes.DeletePassesByTransaction(txCtx, id); err != nil {
				return err
			}
			if err := s.ledger.Release(txCtx, txn.ReservationID); err != nil {
				return fmt.Errorf("release reservation: %w", err)
			}
		}

		if err := s.txns.UpdateTransactionStatus(txCtx, id, next, now); err != nil {
			return err
		}
		txn.Status = next
		txn.UpdatedAt = now
		updated = txn
		return nil
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	if next == domain.TransactionCancelled {
		s.metrics.ObserveRelease("cancelled", updated.Quantity, nil)
	}
	s.notify.publish(ctx, statusEventType(next), updated)
	s.logger.Info("transaction status updated",
		"transaction_id", updated.ID,
		"status", updated.Status,
		"by", actor.UserID,
	)
	return updated, nil
}

// Delete removes a transaction and its passes. Units still counted against the
// ticket type are released.
func (s *TransactionService) Delete(ctx context.Context, actor domain.Actor, id string) error {
	if actor.Role != domain.RoleAdmin {
		return domain.ErrForbidden
	}
	if id == "" {
		return domain.ErrInvalidID
	}

	var deleted domain.Transaction
	err := s.txns.WithTx(ctx, func(txCtx context.Context) error {
		txn, err := s.txns.GetTransactionForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if _, err := s.passes.DeletePassesByTransaction(txCtx, id); err != nil {
			return err
		}
		if txn.Status != domain.TransactionCancelled {
			if err := s.ledger.Release(txCtx, txn.ReservationID); err != nil {
				return fmt.Errorf("release reservation: %w", err)
			}
		}
		if err := s.txns.DeleteTransaction(txCtx, id); err != nil {
			return err
		}
		deleted = txn
		return nil
	})
	if err != nil {
		return err
	}

	if deleted.Status != domain.TransactionCancelled {
		s.metrics.ObserveRelease("deleted", deleted.Quantity, nil)
	}
	s.notify.publish(ctx, domain.EventTransactionDeleted, deleted)
	s.logger.Info("transaction deleted", "transaction_id", deleted.ID, "by", actor.UserID)
	return nil
}

func statusEventType(status domain.TransactionStatus) string {
	switch status {
	case domain.TransactionCancelled:
		return domain.EventTransactionCancelled
	case domain.TransactionPending:
		return domain.EventTransactionPending
	}
	return domain.EventTransactionCompleted
}
