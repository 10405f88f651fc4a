package models

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderFailed    OrderStatus = "failed"
	OrderCancelled OrderStatus = "cancelled"
)

// Checkout saga sub-state persisted on the order
type OrderStage string

const (
	StagePending       OrderStage = "pending"
	StageStockReserved OrderStage = "stock_reserved"
	StageDebited       OrderStage = "debited"
	StageCompleted     OrderStage = "completed"
	StageCompensating  OrderStage = "compensating"
	StageCompensated   OrderStage = "compensated"
	StageFailed        OrderStage = "failed"
	StageCancelled     OrderStage = "cancelled"
)

// Status the order has while it is in the stage
func (s OrderStage) Status() OrderStatus {
	switch s {
	case StageCompleted:
		return OrderCompleted
	case StageCompensated, StageFailed:
		return OrderFailed
	case StageCancelled:
		return OrderCancelled
	default:
		return OrderPending
	}
}

type OrderItem struct {
	CatalogItemID  uuid.UUID `json:"catalogItemId"`
	Name           string    `json:"name"`
	UnitCost       int64     `json:"unitCost"`
	Quantity       int       `json:"quantity"`
	RevealedSecret *string   `json:"revealedSecret,omitempty"` // set only when order is completed
}

type Order struct {
	ID            uuid.UUID
	AccountID     uuid.UUID
	Items         []OrderItem
	TotalCost     int64
	Status        OrderStatus
	Stage         OrderStage
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
