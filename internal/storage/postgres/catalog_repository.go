package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/NavanKen/Eventify/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const ticketTypeNameConstraint = "ticket_types_event_name_key"

type CatalogRepository struct {
	conn
}

func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{conn: conn{pool: pool}}
}

func (r *CatalogRepository) CreateEvent(ctx context.Context, event domain.Event) error {
	const stmt = `
INSERT INTO events (id, name, starts_at)
VALUES ($1, $2, $3)`
	_, err := r.exec(ctx, stmt, event.ID, event.Name, event.StartsAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

func (r *CatalogRepository) GetEvent(ctx context.Context, id string) (domain.Event, error) {
	const query = `SELECT id, name, starts_at FROM events WHERE id = $1`

	var event domain.Event
	err := r.queryRow(ctx, query, id).Scan(&event.ID, &event.Name, &event.StartsAt)
	if err != nil {
		if isInvalidUUID(err) || errors.Is(err, pgx.ErrNoRows) {
			return domain.Event{}, domain.ErrEventNotFound
		}
		return domain.Event{}, fmt.Errorf("get event: %w", err)
	}
	event.StartsAt = event.StartsAt.UTC()
	return event, nil
}

func (r *CatalogRepository) ListEvents(ctx context.Context) ([]domain.Event, error) {
	const query = `
SELECT id, name, starts_at
FROM events
ORDER BY starts_at ASC, id ASC`
	rows, err := r.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.Event, 0)
	for rows.Next() {
		var event domain.Event
		if err := rows.Scan(&event.ID, &event.Name, &event.StartsAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.StartsAt = event.StartsAt.UTC()
		events = append(events, event)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate events: %w", rows.Err())
	}
	return events, nil
}

func (r *CatalogRepository) UpdateEvent(ctx context.Context, event domain.Event) error {
	const stmt = `UPDATE events SET name = $2, starts_at = $3 WHERE id = $1`

	tag, err := r.exec(ctx, stmt, event.ID, event.Name, event.StartsAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrEventNotFound
		}
		return fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}

// DeleteEvent cascades to ticket types and reservations. Transactions
// reference the event without a cascade, so an event with sales stays.
func (r *CatalogRepository) DeleteEvent(ctx context.Context, id string) error {
	tag, err := r.exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrEventNotFound
		}
		if isForeignKeyViolation(err) {
			return domain.ErrEventInUse
		}
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}

func (r *CatalogRepository) CreateTicketType(ctx context.Context, tt domain.TicketType) error {
	const stmt = `
INSERT INTO ticket_types (id, event_id, name, description, price, quota, sold, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8)`
	_, err := r.exec(ctx, stmt,
		tt.ID, tt.EventID, tt.Name, tt.Description, tt.Price.String(), tt.Quota, tt.CreatedAt, tt.UpdatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isUniqueViolationOf(err, ticketTypeNameConstraint) {
			return domain.ErrTicketTypeAlreadyExists
		}
		if isForeignKeyViolation(err) {
			return domain.ErrEventNotFound
		}
		if isCheckViolation(err) {
			return domain.ErrInvalidQuota
		}
		return fmt.Errorf("create ticket type: %w", err)
	}
	return nil
}

const ticketTypeColumns = `
id, event_id, name, description, price::text, quota, sold, created_at, updated_at`

func (r *CatalogRepository) GetTicketType(ctx context.Context, id string) (domain.TicketType, error) {
	tt, err := scanTicketType(r.queryRow(ctx, `SELECT`+ticketTypeColumns+` FROM ticket_types WHERE id = $1`, id))
	if err != nil {
		if isInvalidUUID(err) || errors.Is(err, pgx.ErrNoRows) {
			return domain.TicketType{}, domain.ErrTicketTypeNotFound
		}
		return domain.TicketType{}, fmt.Errorf("get ticket type: %w", err)
	}
	return tt, nil
}

func (r *CatalogRepository) ListTicketTypesByEvent(ctx context.Context, eventID string) ([]domain.TicketType, error) {
	query := `SELECT` + ticketTypeColumns + `
FROM ticket_types
WHERE event_id = $1
ORDER BY created_at ASC, name ASC`
	rows, err := r.query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("list ticket types: %w", err)
	}
	defer rows.Close()

	types := make([]domain.TicketType, 0)
	for rows.Next() {
		tt, err := scanTicketType(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket type: %w", err)
		}
		types = append(types, tt)
	}
	if rows.Err() != nil {
		if isInvalidUUID(rows.Err()) {
			return nil, domain.ErrEventNotFound
		}
		return nil, fmt.Errorf("iterate ticket types: %w", rows.Err())
	}
	return types, nil
}

// UpdateTicketType rewrites the editable fields. The quota guard is part of
// the UPDATE so a concurrent sale cannot slip under a shrinking quota.
func (r *CatalogRepository) UpdateTicketType(ctx context.Context, tt domain.TicketType) (domain.TicketType, error) {
	query := `
UPDATE ticket_types
SET name = $2, description = $3, price = $4, quota = $5, updated_at = $6
WHERE id = $1 AND sold <= $5
RETURNING` + ticketTypeColumns

	updated, err := scanTicketType(r.queryRow(ctx, query,
		tt.ID, tt.Name, tt.Description, tt.Price.String(), tt.Quota, tt.UpdatedAt,
	))
	if err == nil {
		return updated, nil
	}
	switch {
	case isInvalidUUID(err):
		return domain.TicketType{}, domain.ErrTicketTypeNotFound
	case isUniqueViolationOf(err, ticketTypeNameConstraint):
		return domain.TicketType{}, domain.ErrTicketTypeAlreadyExists
	case isCheckViolation(err):
		return domain.TicketType{}, domain.ErrInvalidQuota
	case !errors.Is(err, pgx.ErrNoRows):
		return domain.TicketType{}, fmt.Errorf("update ticket type: %w", err)
	}

	if _, err := r.GetTicketType(ctx, tt.ID); err != nil {
		return domain.TicketType{}, err
	}
	return domain.TicketType{}, domain.ErrQuotaBelowSold
}

func (r *CatalogRepository) DeleteTicketType(ctx context.Context, id string) error {
	tag, err := r.exec(ctx, `DELETE FROM ticket_types WHERE id = $1`, id)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrTicketTypeNotFound
		}
		if isForeignKeyViolation(err) {
			return domain.ErrTicketTypeInUse
		}
		return fmt.Errorf("delete ticket type: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTicketTypeNotFound
	}
	return nil
}

func scanTicketType(row pgx.Row) (domain.TicketType, error) {
	var (
		tt    domain.TicketType
		price string
	)
	err := row.Scan(&tt.ID, &tt.EventID, &tt.Name, &tt.Description, &price, &tt.Quota, &tt.Sold, &tt.CreatedAt, &tt.UpdatedAt)
	if err != nil {
		return domain.TicketType{}, err
	}
	tt.Price, err = decimal.NewFromString(price)
	if err != nil {
		return domain.TicketType{}, fmt.Errorf("parse price %q: %w", price, err)
	}
	tt.CreatedAt = tt.CreatedAt.UTC()
	tt.UpdatedAt = tt.UpdatedAt.UTC()
	return tt, nil
}
