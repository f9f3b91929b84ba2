package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/NavanKen/Eventify/internal/clock"
	"github.com/NavanKen/Eventify/internal/domain"
	"github.com/NavanKen/Eventify/internal/metrics"
	"github.com/shopspring/decimal"
)

const defaultReleaseTimeout = 5 * time.Second

// PurchaseService coordinates reserve -> record -> mint, and releases the
// reservation on every failure path after a successful reserve.
type PurchaseService struct {
	ledger         InventoryLedger
	txns           TransactionStore
	passes         PassStore
	minter         *PassMinter
	clock          clock.Clock
	logger         *slog.Logger
	metrics        *metrics.Metrics
	locker         OrderLocker
	notify         notifier
	releaseTimeout time.Duration
}

type PurchaseOption func(*PurchaseService)

func WithPurchaseLogger(l *slog.Logger) PurchaseOption {
	return func(s *PurchaseService) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithPurchaseMetrics(m *metrics.Metrics) PurchaseOption {
	return func(s *PurchaseService) { s.metrics = m }
}

func WithPurchasePublisher(p EventPublisher) PurchaseOption {
	return func(s *PurchaseService) { s.notify.publisher = p }
}

// WithOrderLocker enables the per-order-code lock that turns double submits
// into ErrPurchaseInProgress before any inventory is touched.
func WithOrderLocker(l OrderLocker) PurchaseOption {
	return func(s *PurchaseService) { s.locker = l }
}

func WithTokenSource(t TokenSource) PurchaseOption {
	return func(s *PurchaseService) {
		if t != nil {
			s.minter.tokens = t
		}
	}
}

// WithReleaseTimeout bounds a compensating release. The release runs detached
// from the caller's context so an aborted request still gives inventory back.
func WithReleaseTimeout(d time.Duration) PurchaseOption {
	return func(s *PurchaseService) {
		if d > 0 {
			s.releaseTimeout = d
		}
	}
}

func NewPurchaseService(ledger InventoryLedger, txns TransactionStore, passes PassStore, clk clock.Clock, opts ...PurchaseOption) *PurchaseService {
	svc := &PurchaseService{
		ledger:         ledger,
		txns:           txns,
		passes:         passes,
		minter:         NewPassMinter(passes, nil, clk),
		clock:          clk,
		logger:         slog.Default(),
		releaseTimeout: defaultReleaseTimeout,
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

type PurchaseInput struct {
	OrderCode    string
	TicketTypeID string
	Quantity     int
	TotalPrice   decimal.Decimal
	Actor        domain.Actor
	CustomerName string
	// Status is optional. Back-office sales may record an unpaid order as pending.
	Status domain.TransactionStatus
}

type PurchaseResult struct {
	Transaction domain.Transaction
	Passes      []domain.TicketPass
	// Created is false when an existing transaction was returned for a
	// repeated order code.
	Created bool
}

func (s *PurchaseService) Purchase(ctx context.Context, in PurchaseInput) (result PurchaseResult, err error) {
	started := time.Now()
	defer func() {
		s.metrics.ObservePurchase(purchaseOutcome(result, err), in.Quantity, time.Since(started))
	}()

	status, err := normalizePurchase(&in)
	if err != nil {
		return PurchaseResult{}, err
	}

	if res, found, err := s.replay(ctx, in); err != nil || found {
		return res, err
	}

	if s.locker != nil {
		token, err := s.locker.Lock(ctx, in.OrderCode)
		switch {
		case errors.Is(err, domain.ErrPurchaseInProgress):
			return PurchaseResult{}, err
		case err != nil:
			s.logger.Warn("order lock unavailable, continuing without it", "order_code", in.OrderCode, "error", err)
		default:
			defer s.unlock(ctx, in.OrderCode, token)
		}
	}

	reservation, err := s.ledger.Reserve(ctx, in.TicketTypeID, in.Quantity)
	if err != nil {
		return PurchaseResult{}, reserveFailure(err)
	}

	guard := &reservationGuard{svc: s, reservation: reservation}
	defer guard.releaseUnlessCommitted(ctx)

	now := s.clock.Now()
	txn := domain.Transaction{
		ID:            newUUID(),
		OrderCode:     in.OrderCode,
		ReservationID: reservation.ID,
		UserID:        in.Actor.UserID,
		CustomerName:  in.CustomerName,
		EventID:       reservation.EventID,
		TicketTypeID:  in.TicketTypeID,
		Quantity:      in.Quantity,
		TotalPrice:    in.TotalPrice,
		Status:        status,
		InitiatedBy:   in.Actor.Role,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var passes []domain.TicketPass
	err = s.txns.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.txns.CreateTransaction(txCtx, txn); err != nil {
			return &stepError{step: stepPersist, err: err}
		}
		minted, err := s.minter.Mint(txCtx, txn.ID, txn.TicketTypeID, txn.Quantity)
		if err != nil {
			return &stepError{step: stepMint, err: err}
		}
		if err := s.ledger.Commit(txCtx, reservation.ID); err != nil {
			return &stepError{step: stepPersist, err: err}
		}
		passes = minted
		return nil
	})
	if err != nil {
		s.discard(ctx, txn.ID)
		guard.releaseUnlessCommitted(ctx)

		if errors.Is(err, domain.ErrOrderCodeConflict) {
			res, found, rerr := s.replay(ctx, in)
			if rerr != nil || found {
				return res, rerr
			}
		}
		s.logger.Error("purchase failed",
			"order_code", in.OrderCode,
			"ticket_type_id", in.TicketTypeID,
			"quantity", in.Quantity,
			"error", err,
		)
		return PurchaseResult{}, stepFailure(err)
	}
	guard.commit()

	eventType := domain.EventTransactionCompleted
	if txn.Status == domain.TransactionPending {
		eventType = domain.EventTransactionPending
	}
	s.notify.publish(ctx, eventType, txn)

	s.logger.Info("purchase completed",
		"transaction_id", txn.ID,
		"order_code", txn.OrderCode,
		"ticket_type_id", txn.TicketTypeID,
		"quantity", txn.Quantity,
		"initiated_by", txn.InitiatedBy,
	)
	return PurchaseResult{Transaction: txn, Passes: passes, Created: true}, nil
}

func normalizePurchase(in *PurchaseInput) (domain.TransactionStatus, error) {
	if in.Quantity < 1 || in.Quantity > domain.MaxQuantity {
		return "", domain.ErrInvalidQuantity
	}
	if in.TotalPrice.IsNegative() {
		return "", domain.ErrInvalidPrice
	}
	if in.TicketTypeID == "" {
		return "", domain.ErrTicketTypeNotFound
	}
	if in.Actor.Role == "" {
		in.Actor.Role = domain.RoleCustomer
	}
	if in.OrderCode == "" {
		in.OrderCode = newOrderCode()
	}
	if in.CustomerName == "" {
		in.CustomerName = in.Actor.Name
	}

	switch in.Status {
	case "", domain.TransactionCompleted:
		return domain.TransactionCompleted, nil
	case domain.TransactionPending:
		if !in.Actor.IsBackOffice() {
			return "", domain.ErrForbidden
		}
		return domain.TransactionPending, nil
	}
	return "", domain.ErrInvalidStatus
}

// replay returns the transaction already recorded under the order code, if any.
func (s *PurchaseService) replay(ctx context.Context, in PurchaseInput) (PurchaseResult, bool, error) {
	existing, err := s.txns.FindTransactionByOrderCode(ctx, in.OrderCode)
	if err != nil {
		return PurchaseResult{}, false, fmt.Errorf("%w: %w", domain.ErrPersistenceFailed, err)
	}
	if existing == nil {
		return PurchaseResult{}, false, nil
	}
	if existing.TicketTypeID != in.TicketTypeID ||
		existing.Quantity != in.Quantity ||
		existing.UserID != in.Actor.UserID {
		return PurchaseResult{}, true, domain.ErrOrderCodeConflict
	}

	passes, err := s.passes.ListPassesByTransaction(ctx, existing.ID)
	if err != nil {
		return PurchaseResult{}, true, fmt.Errorf("%w: %w", domain.ErrPersistenceFailed, err)
	}
	return PurchaseResult{Transaction: *existing, Passes: passes, Created: false}, true, nil
}

func (s *PurchaseService) discard(ctx context.Context, transactionID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.releaseTimeout)
	defer cancel()
	if err := s.txns.DeleteTransaction(ctx, transactionID); err != nil && !errors.Is(err, domain.ErrTransactionNotFound) {
		s.logger.Error("discard failed transaction", "transaction_id", transactionID, "error", err)
	}
}

func (s *PurchaseService) unlock(ctx context.Context, orderCode, token string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.releaseTimeout)
	defer cancel()
	if err := s.locker.Unlock(ctx, orderCode, token); err != nil {
		s.logger.Warn("release order lock", "order_code", orderCode, "error", err)
	}
}

// reservationGuard releases its reservation exactly once unless committed.
type reservationGuard struct {
	svc         *PurchaseService
	reservation domain.Reservation
	done        bool
}

func (g *reservationGuard) commit() {
	g.done = true
}

func (g *reservationGuard) releaseUnlessCommitted(ctx context.Context) {
	if g.done {
		return
	}
	g.done = true

	s := g.svc
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.releaseTimeout)
	defer cancel()

	err := s.ledger.Release(ctx, g.reservation.ID)
	s.metrics.ObserveRelease("purchase_failed", g.reservation.Quantity, err)
	if err != nil {
		s.logger.Error("release reservation failed, units stay reserved until swept",
			"reservation_id", g.reservation.ID,
			"ticket_type_id", g.reservation.TicketTypeID,
			"quantity", g.reservation.Quantity,
			"error", err,
		)
	}
}

type purchaseStep int

const (
	stepPersist purchaseStep = iota
	stepMint
)

type stepError struct {
	step purchaseStep
	err  error
}

func (e *stepError) Error() string {
	if e.step == stepMint {
		return "mint passes: " + e.err.Error()
	}
	return "persist transaction: " + e.err.Error()
}

func (e *stepError) Unwrap() error {
	return e.err
}

func reserveFailure(err error) error {
	var inv *domain.InsufficientInventoryError
	switch {
	case errors.As(err, &inv):
		return &domain.SoldOutError{Available: inv.Available}
	case errors.Is(err, domain.ErrTicketTypeNotFound), errors.Is(err, domain.ErrInvalidQuantity):
		return err
	}
	return fmt.Errorf("%w: reserve: %w", domain.ErrPersistenceFailed, err)
}

func stepFailure(err error) error {
	var se *stepError
	if errors.As(err, &se) && se.step == stepMint {
		return fmt.Errorf("%w: %w", domain.ErrPassGenerationFailed, se.err)
	}
	return fmt.Errorf("%w: %w", domain.ErrPersistenceFailed, err)
}

func purchaseOutcome(res PurchaseResult, err error) string {
	switch {
	case err == nil && !res.Created:
		return metrics.OutcomeReplayed
	case err == nil:
		return metrics.OutcomeCompleted
	case errors.Is(err, domain.ErrSoldOut):
		return metrics.OutcomeSoldOut
	case errors.Is(err, domain.ErrPassGenerationFailed):
		return metrics.OutcomePassGeneration
	case errors.Is(err, domain.ErrPersistenceFailed):
		return metrics.OutcomePersistence
	case errors.Is(err, domain.ErrTicketTypeNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, domain.ErrOrderCodeConflict), errors.Is(err, domain.ErrPurchaseInProgress):
		return metrics.OutcomeConflict
	}
	return metrics.OutcomeInvalid
}
