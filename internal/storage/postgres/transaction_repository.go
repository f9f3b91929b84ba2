package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NavanKen/Eventify/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const orderCodeConstraint = "transactions_order_code_key"

type TransactionRepository struct {
	conn
}

func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{conn: conn{pool: pool}}
}

func (r *TransactionRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

const transactionColumns = `
id, order_code, reservation_id, user_id, customer_name, event_id, ticket_type_id,
quantity, total_price::text, status, initiated_by, created_at, updated_at`

func (r *TransactionRepository) CreateTransaction(ctx context.Context, txn domain.Transaction) error {
	const stmt = `
INSERT INTO transactions (
	id, order_code, reservation_id, user_id, customer_name, event_id, ticket_type_id,
	quantity, total_price, status, initiated_by, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.exec(ctx, stmt,
		txn.ID, txn.OrderCode, txn.ReservationID, txn.UserID, txn.CustomerName,
		txn.EventID, txn.TicketTypeID, txn.Quantity, txn.TotalPrice.String(),
		string(txn.Status), string(txn.InitiatedBy), txn.CreatedAt, txn.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolationOf(err, orderCodeConstraint) {
			return domain.ErrOrderCodeConflict
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			return domain.ErrTicketTypeNotFound
		}
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepository) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	return r.getTransaction(ctx, `SELECT`+transactionColumns+` FROM transactions WHERE id = $1`, id)
}

func (r *TransactionRepository) GetTransactionForUpdate(ctx context.Context, id string) (domain.Transaction, error) {
	return r.getTransaction(ctx, `SELECT`+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id)
}

func (r *TransactionRepository) getTransaction(ctx context.Context, query, id string) (domain.Transaction, error) {
	txn, err := scanTransaction(r.queryRow(ctx, query, id))
	if err != nil {
		if isInvalidUUID(err) || errors.Is(err, pgx.ErrNoRows) {
			return domain.Transaction{}, domain.ErrTransactionNotFound
		}
		return domain.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return txn, nil
}

func (r *TransactionRepository) FindTransactionByOrderCode(ctx context.Context, orderCode string) (*domain.Transaction, error) {
	txn, err := scanTransaction(r.queryRow(ctx, `SELECT`+transactionColumns+` FROM transactions WHERE order_code = $1`, orderCode))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find transaction by order code: %w", err)
	}
	return &txn, nil
}

func (r *TransactionRepository) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, int, error) {
	var (
		where []string
		args  []any
	)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+escapeLike(s)+"%")
		where = append(where, fmt.Sprintf(`(order_code ILIKE $%[1]d OR customer_name ILIKE $%[1]d OR EXISTS (
	SELECT 1 FROM ticket_types tt JOIN events e ON e.id = tt.event_id
	WHERE tt.id = transactions.ticket_type_id AND (tt.name ILIKE $%[1]d OR e.name ILIKE $%[1]d)))`, len(args)))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.queryRow(ctx, `SELECT COUNT(*) FROM transactions`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	args = append(args, filter.Limit, filter.Offset)
	query := `SELECT` + transactionColumns + ` FROM transactions` + clause +
		fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txns := make([]domain.Transaction, 0)
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan transaction: %w", err)
		}
		txns = append(txns, txn)
	}
	if rows.Err() != nil {
		return nil, 0, fmt.Errorf("iterate transactions: %w", rows.Err())
	}
	return txns, total, nil
}

func (r *TransactionRepository) UpdateTransactionStatus(ctx context.Context, id string, status domain.TransactionStatus, at time.Time) error {
	const stmt = `UPDATE transactions SET status = $2, updated_at = $3 WHERE id = $1`

	tag, err := r.exec(ctx, stmt, id, string(status), at)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrTransactionNotFound
		}
		return fmt.Errorf("update transaction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}

// DeleteTransaction removes the transaction; its passes go with it through
// the ON DELETE CASCADE foreign key.
func (r *TransactionRepository) DeleteTransaction(ctx context.Context, id string) error {
	tag, err := r.exec(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrTransactionNotFound
		}
		return fmt.Errorf("delete transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}

func scanTransaction(row pgx.Row) (domain.Transaction, error) {
	var (
		txn         domain.Transaction
		total       string
		status      string
		initiatedBy string
	)
	err := row.Scan(
		&txn.ID, &txn.OrderCode, &txn.ReservationID, &txn.UserID, &txn.CustomerName,
		&txn.EventID, &txn.TicketTypeID, &txn.Quantity, &total, &status, &initiatedBy,
		&txn.CreatedAt, &txn.UpdatedAt,
	)
	if err != nil {
		return domain.Transaction{}, err
	}
	price, err := decimal.NewFromString(total)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("parse total price %q: %w", total, err)
	}
	txn.TotalPrice = price
	txn.Status = domain.TransactionStatus(status)
	txn.InitiatedBy = domain.Role(initiatedBy)
	txn.CreatedAt = txn.CreatedAt.UTC()
	txn.UpdatedAt = txn.UpdatedAt.UTC()
	return txn, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
