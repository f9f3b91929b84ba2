package postgres

import (
	"context"
	"fmt"

	"github.com/NavanKen/Eventify/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PassRepository struct {
	conn
}

func NewPassRepository(pool *pgxpool.Pool) *PassRepository {
	return &PassRepository{conn: conn{pool: pool}}
}

// InsertPasses writes the whole batch with one COPY, which either stores
// every row or none.
func (r *PassRepository) InsertPasses(ctx context.Context, passes []domain.TicketPass) error {
	if len(passes) == 0 {
		return nil
	}

	// COPY uses the binary protocol, so ids go in as uuid.UUID rather than text.
	rows := make([][]any, 0, len(passes))
	for _, p := range passes {
		ids, err := parseUUIDs(p.ID, p.TransactionID, p.TicketTypeID)
		if err != nil {
			return fmt.Errorf("insert passes: %w", domain.ErrInvalidID)
		}
		rows = append(rows, []any{ids[0], ids[1], ids[2], p.Token, p.CreatedAt})
	}

	n, err := r.copyFrom(ctx,
		pgx.Identifier{"ticket_passes"},
		[]string{"id", "transaction_id", "ticket_type_id", "token", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrTransactionNotFound
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("insert passes: duplicate token: %w", err)
		}
		return fmt.Errorf("insert passes: %w", err)
	}
	if int(n) != len(passes) {
		return fmt.Errorf("insert passes: stored %d of %d", n, len(passes))
	}
	return nil
}

func parseUUIDs(values ...string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func (r *PassRepository) ListPassesByTransaction(ctx context.Context, transactionID string) ([]domain.TicketPass, error) {
	const query = `
SELECT id, transaction_id, ticket_type_id, token, created_at
FROM ticket_passes
WHERE transaction_id = $1
ORDER BY created_at ASC, id ASC`

	rows, err := r.query(ctx, query, transactionID)
	if err != nil {
		if isInvalidUUID(err) {
			return []domain.TicketPass{}, nil
		}
		return nil, fmt.Errorf("list passes: %w", err)
	}
	defer rows.Close()

	passes := make([]domain.TicketPass, 0)
	for rows.Next() {
		var p domain.TicketPass
		if err := rows.Scan(&p.ID, &p.TransactionID, &p.TicketTypeID, &p.Token, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pass: %w", err)
		}
		p.CreatedAt = p.CreatedAt.UTC()
		passes = append(passes, p)
	}
	if rows.Err() != nil {
		if isInvalidUUID(rows.Err()) {
			return []domain.TicketPass{}, nil
		}
		return nil, fmt.Errorf("iterate passes: %w", rows.Err())
	}
	return passes, nil
}

func (r *PassRepository) DeletePassesByTransaction(ctx context.Context, transactionID string) (int, error) {
	tag, err := r.exec(ctx, `DELETE FROM ticket_passes WHERE transaction_id = $1`, transactionID)
	if err != nil {
		if isInvalidUUID(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("delete passes: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
