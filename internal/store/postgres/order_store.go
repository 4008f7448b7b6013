// Package postgres implements the order.Store contract against
// PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/swaprouter/engine/internal/domain/order"
)

const (
	defaultOrderLimit = 50
	maxOrderLimit     = 500
)

const orderSelectBase = `
SELECT id, token_in, token_out, amount, status, slippage_tolerance, max_retries,
       retry_count, selected_venue, executed_price, transaction_hash, error_message,
       confirmed_at, created_at, updated_at
FROM orders`

const orderInsertSQL = `
INSERT INTO orders (id, token_in, token_out, amount, status, slippage_tolerance, max_retries,
                     retry_count, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
RETURNING id, token_in, token_out, amount, status, slippage_tolerance, max_retries,
          retry_count, selected_venue, executed_price, transaction_hash, error_message,
          confirmed_at, created_at, updated_at`

const orderUpdateSQL = `
UPDATE orders
SET status = $2, retry_count = $3, selected_venue = $4, executed_price = $5,
    transaction_hash = $6, error_message = $7, confirmed_at = $8
WHERE id = $1
RETURNING id, token_in, token_out, amount, status, slippage_tolerance, max_retries,
          retry_count, selected_venue, executed_price, transaction_hash, error_message,
          confirmed_at, created_at, updated_at`

const auditInsertSQL = `
INSERT INTO order_history (id, order_id, event_type, event_data, event_version, metadata, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (order_id, event_version) DO NOTHING`

const auditSelectSQL = `
SELECT id, order_id, event_type, event_data, event_version, metadata, occurred_at
FROM order_history
WHERE order_id = $1
ORDER BY occurred_at ASC, event_version ASC`

// OrderStore implements order.Store against a pgxpool connection pool.
type OrderStore struct {
	pool *pgxpool.Pool
}

// New constructs an OrderStore over pool.
func New(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

func (s *OrderStore) Create(ctx context.Context, input order.CreateInput) (*order.Order, error) {
	now := time.Now().UTC()
	id := uuid.New()
	row := s.pool.QueryRow(ctx, orderInsertSQL,
		id, input.TokenIn, input.TokenOut, input.Amount, order.StatusPending,
		*input.SlippageTolerance, *input.MaxRetries, 0, now,
	)
	return scanOrder(row)
}

func (s *OrderStore) FindByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	row := s.pool.QueryRow(ctx, orderSelectBase+" WHERE id = $1", id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, order.ErrNotFound(id.String())
	}
	return o, err
}

// Update applies partial under a transaction that reads the current row
// with a row lock before writing, so concurrent retry attempts on the
// same order serialize instead of racing (spec §4.1).
func (s *OrderStore) Update(ctx context.Context, id uuid.UUID, partial order.Update) (*order.Order, error) {
	var result *order.Order
	err := s.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		current, err := lockOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		merged := applyPartial(current, partial)
		row := tx.QueryRow(ctx, orderUpdateSQL,
			merged.ID, merged.Status, merged.RetryCount, nullableString(merged.SelectedVenue),
			nullableDecimal(merged.ExecutedPrice), nullableString(merged.TransactionHash),
			nullableString(merged.ErrorMessage), merged.ConfirmedAt,
		)
		result, err = scanOrder(row)
		return err
	})
	return result, err
}

func (s *OrderStore) UpdateStatus(ctx context.Context, id uuid.UUID, next order.Status) (*order.Order, error) {
	var result *order.Order
	err := s.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		current, err := lockOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		if !current.Status.CanTransition(next) {
			return order.ErrIllegalTransition(current.Status, next)
		}
		merged := *current
		merged.Status = next
		row := tx.QueryRow(ctx, orderUpdateSQL,
			merged.ID, merged.Status, merged.RetryCount, nullableString(merged.SelectedVenue),
			nullableDecimal(merged.ExecutedPrice), nullableString(merged.TransactionHash),
			nullableString(merged.ErrorMessage), merged.ConfirmedAt,
		)
		result, err = scanOrder(row)
		return err
	})
	return result, err
}

// Delete hard-deletes an order row whose status is pending; it does not
// check whether a job was ever enqueued for the order. It exists
// solely to roll back Create when the subsequent Enqueue fails (spec
// §4.1/§7); user-initiated cancellation goes through UpdateStatus to
// StatusCancelled instead, which is reachable from any non-terminal
// status, not just pending.
func (s *OrderStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1 AND status = $2`, id, order.StatusPending)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.FindByID(ctx, id); err != nil {
			return err
		}
		return order.ErrDeleteNotAllowed(id.String())
	}
	return nil
}

func (s *OrderStore) Count(ctx context.Context, query order.Query) (int, error) {
	where, args := buildWhere(query)
	sql := "SELECT count(*) FROM orders" + where
	var count int
	if err := s.pool.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return count, nil
}

func (s *OrderStore) FindAll(ctx context.Context, query order.Query) ([]*order.Order, error) {
	where, args := buildWhere(query)
	limit := query.Limit
	if limit <= 0 {
		limit = defaultOrderLimit
	}
	if limit > maxOrderLimit {
		limit = maxOrderLimit
	}
	args = append(args, limit, query.Offset)
	sql := fmt.Sprintf("%s%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d", orderSelectBase, where, len(args)-1, len(args))
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("find orders: %w", err)
	}
	defer rows.Close()

	var out []*order.Order
	for rows.Next() {
		o, err := scanOrderRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *OrderStore) AppendAudit(ctx context.Context, record order.AuditRecord) error {
	eventData, err := json.Marshal(record.EventData)
	if err != nil {
		return fmt.Errorf("marshal audit event data: %w", err)
	}
	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}
	id := record.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	occurredAt := record.Timestamp
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx, auditInsertSQL, id, record.OrderID, record.EventType, eventData, record.EventVersion, metadata, occurredAt)
	if err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}

func (s *OrderStore) ListAudit(ctx context.Context, orderID uuid.UUID) ([]order.AuditRecord, error) {
	rows, err := s.pool.Query(ctx, auditSelectSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	var out []order.AuditRecord
	for rows.Next() {
		var rec order.AuditRecord
		var eventData, metadata []byte
		if err := rows.Scan(&rec.ID, &rec.OrderID, &rec.EventType, &eventData, &rec.EventVersion, &metadata, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		if len(eventData) > 0 {
			if err := json.Unmarshal(eventData, &rec.EventData); err != nil {
				return nil, fmt.Errorf("decode audit event data: %w", err)
			}
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *OrderStore) withTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func lockOrder(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*order.Order, error) {
	row := tx.QueryRow(ctx, orderSelectBase+" WHERE id = $1 FOR UPDATE", id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, order.ErrNotFound(id.String())
	}
	return o, err
}

func applyPartial(current *order.Order, partial order.Update) *order.Order {
	merged := *current
	if partial.Status != nil {
		merged.Status = *partial.Status
	}
	if partial.RetryCount != nil {
		merged.RetryCount = *partial.RetryCount
	}
	if partial.SelectedVenue != nil {
		merged.SelectedVenue = *partial.SelectedVenue
	}
	if partial.ExecutedPrice != nil {
		merged.ExecutedPrice = *partial.ExecutedPrice
	}
	if partial.TransactionHash != nil {
		merged.TransactionHash = *partial.TransactionHash
	}
	if partial.ErrorMessage != nil {
		merged.ErrorMessage = *partial.ErrorMessage
	}
	if partial.ConfirmedAt != nil {
		merged.ConfirmedAt = partial.ConfirmedAt
	}
	return &merged
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*order.Order, error) {
	return scanOrderRow(row)
}

func scanOrderRow(row rowScanner) (*order.Order, error) {
	var o order.Order
	var selectedVenue, transactionHash, errorMessage *string
	var executedPrice *decimal.Decimal
	if err := row.Scan(
		&o.ID, &o.TokenIn, &o.TokenOut, &o.Amount, &o.Status, &o.SlippageTolerance, &o.MaxRetries,
		&o.RetryCount, &selectedVenue, &executedPrice, &transactionHash, &errorMessage,
		&o.ConfirmedAt, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}
	if selectedVenue != nil {
		o.SelectedVenue = *selectedVenue
	}
	if executedPrice != nil {
		o.ExecutedPrice = *executedPrice
	}
	if transactionHash != nil {
		o.TransactionHash = *transactionHash
	}
	if errorMessage != nil {
		o.ErrorMessage = *errorMessage
	}
	return &o, nil
}

func nullableString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func nullableDecimal(value decimal.Decimal) *decimal.Decimal {
	if value.IsZero() {
		return nil
	}
	return &value
}

func buildWhere(query order.Query) (string, []any) {
	var clauses []string
	var args []any

	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if query.Status != nil {
		add("status = $%d", *query.Status)
	}
	if query.TokenIn != "" {
		add("token_in = $%d", query.TokenIn)
	}
	if query.TokenOut != "" {
		add("token_out = $%d", query.TokenOut)
	}
	if query.MinAmount != nil {
		add("amount >= $%d", *query.MinAmount)
	}
	if query.MaxAmount != nil {
		add("amount <= $%d", *query.MaxAmount)
	}
	if query.CreatedFrom != nil {
		add("created_at >= $%d", *query.CreatedFrom)
	}
	if query.CreatedTo != nil {
		add("created_at <= $%d", *query.CreatedTo)
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
