package models

import (
	"github.com/google/uuid"
)

type CatalogItem struct {
	ID        uuid.UUID
	Name      string
	CoinCost  int64
	Inventory *int // nil means unlimited
	IsActive  bool
	Secret    *string // redeem code revealed to the buyer after purchase
}

// Whether requested quantity may be served from current inventory
func (i CatalogItem) HasStock(quantity int) bool {
	return i.Inventory == nil || *i.Inventory >= quantity
}

type CartItem struct {
	CatalogItemID uuid.UUID
	Quantity      int
}
