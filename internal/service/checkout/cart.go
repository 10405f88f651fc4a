package checkout

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nkiryanov/coinledger/internal/apperrors"
)

const maxItemQuantity = 100

type CartLine struct {
	CatalogItemID uuid.UUID
	Name          string
	UnitCost      int64
	Quantity      int
	Available     bool // active and enough stock at the moment
}

type Cart struct {
	Lines     []CartLine
	TotalCost int64
}

// Cart with live prices; lines of vanished items are not shown
func (s *CheckoutService) GetCart(ctx context.Context, accountID uuid.UUID) (Cart, error) {
	var cart Cart

	items, err := s.storage.Cart().ListItems(ctx, accountID)
	if err != nil {
		return cart, err
	}
	if len(items) == 0 {
		return cart, nil
	}

	catalog, err := s.storage.Catalog().GetItems(ctx, cartItemIDs(items))
	if err != nil {
		return cart, err
	}

	for _, line := range items {
		item, ok := catalog[line.CatalogItemID]
		if !ok {
			continue
		}

		cart.Lines = append(cart.Lines, CartLine{
			CatalogItemID: item.ID,
			Name:          item.Name,
			UnitCost:      item.CoinCost,
			Quantity:      line.Quantity,
			Available:     item.IsActive && item.HasStock(line.Quantity),
		})
		cart.TotalCost += item.CoinCost * int64(line.Quantity)
	}

	return cart, nil
}

// Set quantity of the item in cart; zero quantity removes the item
func (s *CheckoutService) SetCartItem(ctx context.Context, accountID uuid.UUID, itemID uuid.UUID, quantity int) error {
	switch {
	case quantity < 0 || quantity > maxItemQuantity:
		return fmt.Errorf("%w: quantity must be between 0 and %d", apperrors.ErrInvalidQuantity, maxItemQuantity)
	case quantity == 0:
		return s.RemoveCartItem(ctx, accountID, itemID)
	}

	catalog, err := s.storage.Catalog().GetItems(ctx, []uuid.UUID{itemID})
	if err != nil {
		return err
	}

	item, ok := catalog[itemID]
	switch {
	case !ok:
		return apperrors.ErrInvalidItem
	case !item.IsActive:
		return fmt.Errorf("%w: %s", apperrors.ErrItemUnavailable, item.Name)
	}

	return s.storage.Cart().SetItem(ctx, accountID, itemID, quantity)
}

func (s *CheckoutService) RemoveCartItem(ctx context.Context, accountID uuid.UUID, itemID uuid.UUID) error {
	return s.storage.Cart().RemoveItem(ctx, accountID, itemID)
}
