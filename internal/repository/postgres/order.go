package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/coinledger/internal/apperrors"
	"github.com/nkiryanov/coinledger/internal/models"
	"github.com/nkiryanov/coinledger/internal/repository"
)

type OrderRepo struct {
	DB DBTX
}

const orderColumns = `id, account_id, items, total_cost, status, stage, failure_reason, created_at, updated_at`

const createOrder = `-- name: CreateOrder
INSERT INTO orders (id, account_id, items, total_cost, status, stage, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
RETURNING ` + orderColumns

func (r *OrderRepo) CreateOrder(ctx context.Context, o models.Order) (models.Order, error) {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Stage == "" {
		o.Stage = models.StagePending
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	o.Status = o.Stage.Status()

	rows, _ := r.DB.Query(ctx, createOrder, o.ID, o.AccountID, o.Items, o.TotalCost, o.Status, o.Stage, o.CreatedAt)
	o, err := pgx.CollectOneRow(rows, rowToOrder)
	if err != nil {
		return o, fmt.Errorf("db error: %w", err)
	}

	return o, nil
}

func (r *OrderRepo) GetOrder(ctx context.Context, orderID uuid.UUID) (models.Order, error) {
	rows, _ := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	o, err := pgx.CollectOneRow(rows, rowToOrder)

	switch {
	case err == nil:
		return o, nil
	case errors.Is(err, pgx.ErrNoRows):
		return o, apperrors.ErrOrderNotFound
	default:
		return o, fmt.Errorf("db error: %w", err)
	}
}

const listOrders = `-- name: ListOrders
SELECT ` + orderColumns + ` FROM orders
WHERE ($1::uuid IS NULL OR account_id = $1)
	AND (cardinality($2::text[]) = 0 OR stage = ANY($2))
	AND ($3::timestamptz IS NULL OR updated_at < $3)
ORDER BY created_at DESC, id
LIMIT $4 OFFSET $5
`

func (r *OrderRepo) ListOrders(ctx context.Context, opts repository.ListOrdersOpts) ([]models.Order, error) {
	stages := make([]string, 0, len(opts.Stages))
	for _, s := range opts.Stages {
		stages = append(stages, string(s))
	}

	rows, _ := r.DB.Query(ctx, listOrders, opts.AccountID, stages, opts.UpdatedBefore, opts.Limit, opts.Skip)
	orders, err := pgx.CollectRows(rows, rowToOrder)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return orders, nil
}

// Compare-and-set on stage; keeps previous failure reason if a new one not given
const transitStage = `-- name: TransitStage
UPDATE orders
SET stage = $3, status = $4, failure_reason = COALESCE($5, failure_reason), updated_at = NOW()
WHERE id = $1 AND stage = $2
`

func (r *OrderRepo) TransitStage(ctx context.Context, orderID uuid.UUID, from models.OrderStage, to models.OrderStage, reason string) (bool, error) {
	tag, err := r.DB.Exec(ctx, transitStage, orderID, from, to, to.Status(), nullString(reason))
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (r *OrderRepo) SetItems(ctx context.Context, orderID uuid.UUID, items []models.OrderItem) error {
	tag, err := r.DB.Exec(ctx, `UPDATE orders SET items = $2, updated_at = NOW() WHERE id = $1`, orderID, items)
	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case tag.RowsAffected() == 0:
		return apperrors.ErrOrderNotFound
	default:
		return nil
	}
}

func rowToOrder(row pgx.CollectableRow) (models.Order, error) {
	var o models.Order
	var reason *string

	err := row.Scan(&o.ID, &o.AccountID, &o.Items, &o.TotalCost, &o.Status, &o.Stage, &reason, &o.CreatedAt, &o.UpdatedAt)

	o.FailureReason = fromNullString(reason)
	return o, err
}
