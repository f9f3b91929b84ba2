package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NavanKen/Eventify/internal/clock"
	"github.com/NavanKen/Eventify/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ledger owns ticket_types.sold. Every change to the counter is a single
// conditional statement, so concurrent buyers are serialized by the row lock
// Postgres takes for the UPDATE.
type Ledger struct {
	conn
	clock clock.Clock
}

func NewLedger(pool *pgxpool.Pool, clk clock.Clock) *Ledger {
	return &Ledger{conn: conn{pool: pool}, clock: clk}
}

func (l *Ledger) Reserve(ctx context.Context, ticketTypeID string, quantity int) (domain.Reservation, error) {
	if quantity < 1 || quantity > domain.MaxQuantity {
		return domain.Reservation{}, domain.ErrInvalidQuantity
	}

	now := l.clock.Now()
	res := domain.Reservation{
		ID:           uuid.NewString(),
		TicketTypeID: ticketTypeID,
		Quantity:     quantity,
		Status:       domain.ReservationHeld,
		CreatedAt:    now,
	}

	err := withTx(ctx, l.pool, func(txCtx context.Context) error {
		const reserve = `
UPDATE ticket_types
SET sold = sold + $2, updated_at = $3
WHERE id = $1 AND $2 <= quota - sold
RETURNING event_id`

		err := l.queryRow(txCtx, reserve, ticketTypeID, quantity, now).Scan(&res.EventID)
		if errors.Is(err, pgx.ErrNoRows) {
			return l.shortfall(txCtx, ticketTypeID)
		}
		if err != nil {
			if isInvalidUUID(err) {
				return domain.ErrTicketTypeNotFound
			}
			return fmt.Errorf("reserve inventory: %w", err)
		}

		const insert = `
INSERT INTO inventory_reservations (id, ticket_type_id, quantity, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)`
		if _, err := l.exec(txCtx, insert, res.ID, ticketTypeID, quantity, string(res.Status), now); err != nil {
			return fmt.Errorf("record reservation: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Reservation{}, err
	}
	return res, nil
}

// shortfall explains why the conditional increment matched no row.
func (l *Ledger) shortfall(ctx context.Context, ticketTypeID string) error {
	var quota, sold int
	err := l.queryRow(ctx, `SELECT quota, sold FROM ticket_types WHERE id = $1`, ticketTypeID).Scan(&quota, &sold)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrTicketTypeNotFound
	}
	if err != nil {
		return fmt.Errorf("read inventory: %w", err)
	}
	available := quota - sold
	if available < 0 {
		available = 0
	}
	return &domain.InsufficientInventoryError{Available: available}
}

func (l *Ledger) Commit(ctx context.Context, reservationID string) error {
	const stmt = `
UPDATE inventory_reservations
SET status = 'committed', updated_at = $2
WHERE id = $1 AND status = 'held'`

	tag, err := l.exec(ctx, stmt, reservationID, l.clock.Now())
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrReservationNotHeld
		}
		return fmt.Errorf("commit reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrReservationNotHeld
	}
	return nil
}

// Release gives a reservation's units back. Releasing an unknown or already
// released reservation is a no-op.
func (l *Ledger) Release(ctx context.Context, reservationID string) error {
	const stmt = `
WITH released AS (
	UPDATE inventory_reservations
	SET status = 'released', updated_at = $2
	WHERE id = $1 AND status IN ('held', 'committed')
	RETURNING ticket_type_id, quantity
)
UPDATE ticket_types t
SET sold = GREATEST(t.sold - r.quantity, 0), updated_at = $2
FROM released r
WHERE t.id = r.ticket_type_id`

	if _, err := l.exec(ctx, stmt, reservationID, l.clock.Now()); err != nil {
		if isInvalidUUID(err) {
			return nil
		}
		return fmt.Errorf("release reservation: %w", err)
	}
	return nil
}

// ReleaseStale releases every reservation still held since before heldBefore
// and returns the number of units given back.
func (l *Ledger) ReleaseStale(ctx context.Context, heldBefore time.Time) (int, error) {
	const stmt = `
WITH released AS (
	UPDATE inventory_reservations
	SET status = 'released', updated_at = $2
	WHERE status = 'held' AND created_at < $1
	RETURNING ticket_type_id, quantity
), totals AS (
	SELECT ticket_type_id, SUM(quantity)::int AS quantity
	FROM released
	GROUP BY ticket_type_id
), adjusted AS (
	UPDATE ticket_types t
	SET sold = GREATEST(t.sold - totals.quantity, 0), updated_at = $2
	FROM totals
	WHERE t.id = totals.ticket_type_id
	RETURNING totals.quantity
)
SELECT COALESCE(SUM(quantity), 0)::int FROM adjusted`

	var released int
	if err := l.queryRow(ctx, stmt, heldBefore, l.clock.Now()).Scan(&released); err != nil {
		return 0, fmt.Errorf("release stale reservations: %w", err)
	}
	return released, nil
}
