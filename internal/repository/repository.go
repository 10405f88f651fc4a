package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/coinledger/internal/models"
)

type Storage interface {
	Account() AccountRepo
	Ledger() LedgerRepo
	RewardClaim() RewardClaimRepo
	Referral() ReferralRepo
	Catalog() CatalogRepo
	Cart() CartRepo
	Order() OrderRepo
	Audit() AuditRepo

	// Run fn in database transaction
	// Storage passed to fn is bound to the transaction; nested calls create savepoints
	InTx(ctx context.Context, fn func(Storage) error) error
}

type AccountRepo interface {
	// Create account if it not exists and sync standing flags from identity provider
	// Referral code is generated once, on insert
	EnsureAccount(ctx context.Context, accountID uuid.UUID, standing models.Standing) (models.Account, error)

	// Get account. With lock=true the row is locked until transaction end (SELECT ... FOR UPDATE)
	// Has to return apperrors.ErrAccountNotFound if account not exists
	GetAccount(ctx context.Context, accountID uuid.UUID, lock bool) (models.Account, error)
	GetAccountByReferralCode(ctx context.Context, code string) (models.Account, error)

	// Apply delta to balance only if the result stays non-negative
	// Return new balance; apperrors.ErrBalanceInsufficient or apperrors.ErrAccountNotFound otherwise
	ApplyBalanceDelta(ctx context.Context, accountID uuid.UUID, delta int64) (newBalance int64, err error)

	IncrementRewardStats(ctx context.Context, accountID uuid.UUID, amount int64) error
	IncrementReferralCount(ctx context.Context, accountID uuid.UUID) error

	ListAccountIDs(ctx context.Context, afterID uuid.UUID, limit int) ([]uuid.UUID, error)
}

type ListTransactionsOpts struct {
	Limit int
	Skip  int
}

type CountCreditsOpts struct {
	Source    string
	Reference *string // nil: any reference
	Since     time.Time
}

type LedgerRepo interface {
	CreateTransaction(ctx context.Context, t models.Transaction) (models.Transaction, error)

	// Transactions of the account ordered newest first
	ListTransactions(ctx context.Context, accountID uuid.UUID, opts ListTransactionsOpts) ([]models.Transaction, error)

	// Latest completed transaction time with the source; zero time if none
	LastCreditAt(ctx context.Context, accountID uuid.UUID, source string) (time.Time, error)
	CountCredits(ctx context.Context, accountID uuid.UUID, opts CountCreditsOpts) (int, error)

	Reconcile(ctx context.Context, accountID uuid.UUID) (models.Reconciliation, error)
	ListMismatches(ctx context.Context, limit int) ([]models.Reconciliation, error)
}

type RewardClaimRepo interface {
	// Insert claim; must return apperrors.ErrReferenceLimitReached if claim already exists
	CreateClaim(ctx context.Context, accountID uuid.UUID, rewardType string, reference string, claimNo int, transactionID uuid.UUID) error
}

type ReferralRepo interface {
	// Must return apperrors.ErrAlreadyReferred if the referred account has a referral already
	CreateReferral(ctx context.Context, r models.Referral) (models.Referral, error)
	ListAppliedReferrals(ctx context.Context, referredID uuid.UUID) ([]models.Referral, error)
}

type CatalogRepo interface {
	CreateItem(ctx context.Context, item models.CatalogItem) (models.CatalogItem, error)

	// Return found items only, callers check for missing ones
	GetItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.CatalogItem, error)

	// Decrement inventory only if item is active and inventory >= quantity
	// Must return apperrors.ErrStockInsufficient if condition not met
	ReserveStock(ctx context.Context, itemID uuid.UUID, quantity int) error
	ReleaseStock(ctx context.Context, itemID uuid.UUID, quantity int) error
}

type CartRepo interface {
	ListItems(ctx context.Context, accountID uuid.UUID) ([]models.CartItem, error)
	SetItem(ctx context.Context, accountID uuid.UUID, itemID uuid.UUID, quantity int) error
	RemoveItem(ctx context.Context, accountID uuid.UUID, itemID uuid.UUID) error
	Clear(ctx context.Context, accountID uuid.UUID) error
}

type ListOrdersOpts struct {
	AccountID *uuid.UUID
	Stages    []models.OrderStage
	// Only orders not updated since
	UpdatedBefore *time.Time
	Limit         int
	Skip          int
}

type OrderRepo interface {
	CreateOrder(ctx context.Context, o models.Order) (models.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (models.Order, error)
	ListOrders(ctx context.Context, opts ListOrdersOpts) ([]models.Order, error)

	// Move order to stage `to` only if it currently is in stage `from`
	// Return ok=false when order is in another stage (somebody else moved it)
	TransitStage(ctx context.Context, orderID uuid.UUID, from models.OrderStage, to models.OrderStage, reason string) (ok bool, err error)

	// Replace order items; used to reveal secrets on completion
	SetItems(ctx context.Context, orderID uuid.UUID, items []models.OrderItem) error
}

type AuditRepo interface {
	Append(ctx context.Context, e models.AuditEntry) (models.AuditEntry, error)
	ListEntries(ctx context.Context, accountID uuid.UUID, limit int) ([]models.AuditEntry, error)
}
