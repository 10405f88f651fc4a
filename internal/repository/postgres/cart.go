package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/coinledger/internal/apperrors"
	"github.com/nkiryanov/coinledger/internal/models"
)

type CartRepo struct {
	DB DBTX
}

func (r *CartRepo) ListItems(ctx context.Context, accountID uuid.UUID) ([]models.CartItem, error) {
	const listItems = `
	SELECT catalog_item_id, quantity FROM cart_items
	WHERE account_id = $1
	ORDER BY added_at, catalog_item_id
	`

	rows, _ := r.DB.Query(ctx, listItems, accountID)
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.CartItem, error) {
		var item models.CartItem
		err := row.Scan(&item.CatalogItemID, &item.Quantity)
		return item, err
	})
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return items, nil
}

func (r *CartRepo) SetItem(ctx context.Context, accountID uuid.UUID, itemID uuid.UUID, quantity int) error {
	const setItem = `
	INSERT INTO cart_items (account_id, catalog_item_id, quantity)
	VALUES ($1, $2, $3)
	ON CONFLICT (account_id, catalog_item_id) DO UPDATE
	SET quantity = EXCLUDED.quantity
	`

	_, err := r.DB.Exec(ctx, setItem, accountID, itemID, quantity)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return apperrors.ErrInvalidItem
		}

		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *CartRepo) RemoveItem(ctx context.Context, accountID uuid.UUID, itemID uuid.UUID) error {
	_, err := r.DB.Exec(ctx, `DELETE FROM cart_items WHERE account_id = $1 AND catalog_item_id = $2`, accountID, itemID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *CartRepo) Clear(ctx context.Context, accountID uuid.UUID) error {
	_, err := r.DB.Exec(ctx, `DELETE FROM cart_items WHERE account_id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
