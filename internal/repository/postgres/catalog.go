package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/coinledger/internal/apperrors"
	"github.com/nkiryanov/coinledger/internal/models"
)

type CatalogRepo struct {
	DB DBTX
}

const catalogColumns = `id, name, coin_cost, inventory, is_active, secret`

func (r *CatalogRepo) CreateItem(ctx context.Context, item models.CatalogItem) (models.CatalogItem, error) {
	const createItem = `
	INSERT INTO catalog_items (id, name, coin_cost, inventory, is_active, secret)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING ` + catalogColumns

	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}

	rows, _ := r.DB.Query(ctx, createItem, item.ID, item.Name, item.CoinCost, item.Inventory, item.IsActive, item.Secret)
	item, err := pgx.CollectOneRow(rows, rowToCatalogItem)
	if err != nil {
		return item, fmt.Errorf("db error: %w", err)
	}

	return item, nil
}

func (r *CatalogRepo) GetItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.CatalogItem, error) {
	rows, _ := r.DB.Query(ctx, `SELECT `+catalogColumns+` FROM catalog_items WHERE id = ANY($1)`, ids)
	items, err := pgx.CollectRows(rows, rowToCatalogItem)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	byID := make(map[uuid.UUID]models.CatalogItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	return byID, nil
}

// Conditional decrement; NULL inventory (unlimited) stays NULL
const reserveStock = `-- name: ReserveStock
UPDATE catalog_items
SET inventory = inventory - $2
WHERE id = $1 AND is_active AND (inventory IS NULL OR inventory >= $2)
`

func (r *CatalogRepo) ReserveStock(ctx context.Context, itemID uuid.UUID, quantity int) error {
	tag, err := r.DB.Exec(ctx, reserveStock, itemID, quantity)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Nothing updated: find out why
	var isActive bool
	err = r.DB.QueryRow(ctx, `SELECT is_active FROM catalog_items WHERE id = $1`, itemID).Scan(&isActive)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return apperrors.ErrInvalidItem
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case !isActive:
		return apperrors.ErrItemUnavailable
	default:
		return apperrors.ErrStockInsufficient
	}
}

func (r *CatalogRepo) ReleaseStock(ctx context.Context, itemID uuid.UUID, quantity int) error {
	const releaseStock = `
	UPDATE catalog_items
	SET inventory = inventory + $2
	WHERE id = $1
	`

	tag, err := r.DB.Exec(ctx, releaseStock, itemID, quantity)
	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case tag.RowsAffected() == 0:
		return apperrors.ErrInvalidItem
	default:
		return nil
	}
}

func rowToCatalogItem(row pgx.CollectableRow) (models.CatalogItem, error) {
	var item models.CatalogItem
	err := row.Scan(&item.ID, &item.Name, &item.CoinCost, &item.Inventory, &item.IsActive, &item.Secret)
	return item, err
}
