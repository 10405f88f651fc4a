// Package checkout turns the server held cart into an order.
//
// Checkout is a saga persisted on the order stage:
//
//	pending -> stock_reserved -> debited -> completed
//	pending -> failed                       (reservation failed, nothing moved)
//	stock_reserved -> compensating -> compensated (debit failed, stock released)
//	pending -> cancelled                    (by the owner or the sweeper)
//
// Every transition is conditional on the expected current stage, so the
// request path and the recovery sweeper never apply a step twice.
package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nkiryanov/coinledger/internal/apperrors"
	"github.com/nkiryanov/coinledger/internal/logger"
	"github.com/nkiryanov/coinledger/internal/metrics"
	"github.com/nkiryanov/coinledger/internal/models"
	"github.com/nkiryanov/coinledger/internal/repository"
	"github.com/nkiryanov/coinledger/internal/service/audit"
	"github.com/nkiryanov/coinledger/internal/service/ledger"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Order was moved to another stage by somebody else (sweeper or owner)
var errStageMoved = errors.New("order stage changed concurrently")

type CheckoutService struct {
	storage repository.Storage
	ledger  *ledger.LedgerService
	audit   *audit.Service
	logger  logger.Logger
}

func NewService(storage repository.Storage, ledgerService *ledger.LedgerService, auditor *audit.Service, l logger.Logger) *CheckoutService {
	return &CheckoutService{
		storage: storage,
		ledger:  ledgerService,
		audit:   auditor,
		logger:  l.WithGroup("checkout"),
	}
}

// Checkout buys everything in the account's cart with prices of the live catalog
func (s *CheckoutService) Checkout(ctx context.Context, accountID uuid.UUID) (models.Order, error) {
	order, err := s.prepare(ctx, accountID)
	if err != nil {
		s.reject(ctx, accountID, uuid.Nil, err)
		return order, err
	}

	order, err = s.storage.Order().CreateOrder(ctx, order)
	if err != nil {
		return order, fmt.Errorf("error while creating order. Err: %w", err)
	}
	log := s.logger.With("order_id", order.ID, "account_id", accountID)

	if err := s.reserve(ctx, order); err != nil {
		if errors.Is(err, errStageMoved) {
			err = fmt.Errorf("%w: %w", apperrors.ErrReservationConflict, err)
			s.reject(ctx, accountID, order.ID, err)
			return order, err
		}

		if _, ferr := s.storage.Order().TransitStage(ctx, order.ID, models.StagePending, models.StageFailed, err.Error()); ferr != nil {
			log.Error("Failed order not marked failed", "error", ferr)
		}
		s.reject(ctx, accountID, order.ID, err)

		// Stock was there on validation, so the reservation lost a race
		if isReservationMiss(err) {
			return order, fmt.Errorf("%w: %w", apperrors.ErrReservationConflict, err)
		}
		return order, err
	}

	if err := s.debit(ctx, order); err != nil {
		if errors.Is(err, errStageMoved) {
			err = fmt.Errorf("%w: %w", apperrors.ErrReservationConflict, err)
			s.reject(ctx, accountID, order.ID, err)
			return order, err
		}

		ok, terr := s.storage.Order().TransitStage(ctx, order.ID, models.StageStockReserved, models.StageCompensating, err.Error())
		if terr != nil || !ok {
			// Left in stock_reserved; sweeper will compensate it
			log.Error("Order not moved to compensating", "error", terr, "moved", ok)
		}

		recErr := s.ledger.RecordFailure(ctx, purchaseParams(order), err)
		if recErr != nil {
			log.Error("Failed purchase not recorded", "error", recErr)
		}

		if ok {
			if cerr := s.compensate(ctx, order.ID); cerr != nil {
				log.Error("Order not compensated", "error", cerr)
			}
		}

		s.reject(ctx, accountID, order.ID, err)
		return order, err
	}

	// Coins are already taken; if completion fails sweeper rolls the order forward
	if err := s.complete(ctx, order.ID); err != nil {
		log.Error("Debited order not completed", "error", err)
	} else {
		metrics.CheckoutOrders.WithLabelValues(string(models.OrderCompleted)).Inc()
	}

	return s.storage.Order().GetOrder(ctx, order.ID)
}

// Validate cart against live catalog and balance, nothing is written
func (s *CheckoutService) prepare(ctx context.Context, accountID uuid.UUID) (models.Order, error) {
	order := models.Order{AccountID: accountID, Stage: models.StagePending}

	account, err := s.storage.Account().GetAccount(ctx, accountID, false)
	if err != nil {
		return order, err
	}
	if !account.InGoodStanding() {
		return order, apperrors.ErrAccountInactive
	}

	cart, err := s.storage.Cart().ListItems(ctx, accountID)
	if err != nil {
		return order, err
	}
	if len(cart) == 0 {
		return order, apperrors.ErrCartEmpty
	}

	catalog, err := s.storage.Catalog().GetItems(ctx, cartItemIDs(cart))
	if err != nil {
		return order, err
	}

	for _, line := range cart {
		item, ok := catalog[line.CatalogItemID]
		switch {
		case !ok:
			return order, fmt.Errorf("%w: %s", apperrors.ErrInvalidItem, line.CatalogItemID)
		case !item.IsActive:
			return order, fmt.Errorf("%w: %s", apperrors.ErrItemUnavailable, item.Name)
		case !item.HasStock(line.Quantity):
			return order, fmt.Errorf("%w for item %s", apperrors.ErrStockInsufficient, item.Name)
		}

		order.Items = append(order.Items, models.OrderItem{
			CatalogItemID: item.ID,
			Name:          item.Name,
			UnitCost:      item.CoinCost,
			Quantity:      line.Quantity,
		})
		order.TotalCost += item.CoinCost * int64(line.Quantity)
	}

	if account.Balance < order.TotalCost {
		return order, fmt.Errorf("%w: order costs %d, balance is %d", apperrors.ErrBalanceInsufficient, order.TotalCost, account.Balance)
	}

	return order, nil
}

// Decrement inventory of every item; either all items are reserved or none
func (s *CheckoutService) reserve(ctx context.Context, order models.Order) error {
	return s.storage.InTx(ctx, func(storage repository.Storage) error {
		for _, item := range order.Items {
			if err := storage.Catalog().ReserveStock(ctx, item.CatalogItemID, item.Quantity); err != nil {
				return fmt.Errorf("%w for item %s", err, item.Name)
			}
		}
		return transit(ctx, storage, order.ID, models.StagePending, models.StageStockReserved, "")
	})
}

func (s *CheckoutService) debit(ctx context.Context, order models.Order) error {
	return s.storage.InTx(ctx, func(storage repository.Storage) error {
		if order.TotalCost > 0 {
			if _, err := s.ledger.Apply(ctx, storage, purchaseParams(order)); err != nil {
				return err
			}
		}
		if err := storage.Cart().Clear(ctx, order.AccountID); err != nil {
			return err
		}
		return transit(ctx, storage, order.ID, models.StageStockReserved, models.StageDebited, "")
	})
}

// Mark order completed and reveal item secrets
func (s *CheckoutService) complete(ctx context.Context, orderID uuid.UUID) error {
	return s.storage.InTx(ctx, func(storage repository.Storage) error {
		if err := transit(ctx, storage, orderID, models.StageDebited, models.StageCompleted, ""); err != nil {
			return err
		}

		order, err := storage.Order().GetOrder(ctx, orderID)
		if err != nil {
			return err
		}

		ids := make([]uuid.UUID, 0, len(order.Items))
		for _, item := range order.Items {
			ids = append(ids, item.CatalogItemID)
		}
		catalog, err := storage.Catalog().GetItems(ctx, ids)
		if err != nil {
			return err
		}

		for i, item := range order.Items {
			if secret := catalog[item.CatalogItemID].Secret; secret != nil {
				order.Items[i].RevealedSecret = secret
			}
		}
		if err := storage.Order().SetItems(ctx, orderID, order.Items); err != nil {
			return err
		}

		return s.audit.Record(ctx, storage, models.AuditEntry{
			AccountID: order.AccountID,
			Action:    audit.ActionCheckout,
			Reference: orderID.String(),
			Details:   map[string]any{"total_cost": order.TotalCost},
		})
	})
}

// Release reserved stock of the compensating order
func (s *CheckoutService) compensate(ctx context.Context, orderID uuid.UUID) error {
	return s.storage.InTx(ctx, func(storage repository.Storage) error {
		if err := transit(ctx, storage, orderID, models.StageCompensating, models.StageCompensated, ""); err != nil {
			return err
		}

		order, err := storage.Order().GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		for _, item := range order.Items {
			if err := storage.Catalog().ReleaseStock(ctx, item.CatalogItemID, item.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
}

// Cancel order of the account; only orders nothing was done for may be cancelled
func (s *CheckoutService) Cancel(ctx context.Context, accountID uuid.UUID, orderID uuid.UUID) (models.Order, error) {
	order, err := s.GetOrder(ctx, accountID, orderID)
	if err != nil {
		return order, err
	}

	ok, err := s.storage.Order().TransitStage(ctx, orderID, models.StagePending, models.StageCancelled, "cancelled by owner")
	switch {
	case err != nil:
		return order, err
	case !ok:
		return order, apperrors.ErrOrderNotCancellable
	}

	return s.storage.Order().GetOrder(ctx, orderID)
}

// GetOrder returns apperrors.ErrOrderNotFound for orders of other accounts as well
func (s *CheckoutService) GetOrder(ctx context.Context, accountID uuid.UUID, orderID uuid.UUID) (models.Order, error) {
	order, err := s.storage.Order().GetOrder(ctx, orderID)
	if err != nil {
		return order, err
	}
	if order.AccountID != accountID {
		return models.Order{}, apperrors.ErrOrderNotFound
	}
	return order, nil
}

func (s *CheckoutService) ListOrders(ctx context.Context, accountID uuid.UUID, limit int, skip int) ([]models.Order, error) {
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}

	return s.storage.Order().ListOrders(ctx, repository.ListOrdersOpts{
		AccountID: &accountID,
		Limit:     limit,
		Skip:      max(skip, 0),
	})
}

// Rejected checkouts are audited; orderID is uuid.Nil if order was not created
func (s *CheckoutService) reject(ctx context.Context, accountID uuid.UUID, orderID uuid.UUID, cause error) {
	code := apperrors.Code(cause)
	metrics.CheckoutOrders.WithLabelValues(code).Inc()

	if code == apperrors.CodeInternal {
		s.logger.Error("Checkout failed", "account_id", accountID, "order_id", orderID, "error", cause)
	}
	if errors.Is(cause, apperrors.ErrAccountNotFound) {
		return
	}

	entry := models.AuditEntry{
		AccountID: accountID,
		Action:    audit.ActionCheckoutRejected,
		Outcome:   models.OutcomeFailure,
		Details:   map[string]any{"code": code, "reason": cause.Error()},
	}
	if orderID != uuid.Nil {
		entry.Reference = orderID.String()
	}

	if err := s.audit.Record(ctx, s.storage, entry); err != nil {
		s.logger.Error("Rejected checkout not audited", "account_id", accountID, "error", err)
	}
}

func transit(ctx context.Context, storage repository.Storage, orderID uuid.UUID, from, to models.OrderStage, reason string) error {
	ok, err := storage.Order().TransitStage(ctx, orderID, from, to, reason)
	switch {
	case err != nil:
		return err
	case !ok:
		return fmt.Errorf("%w: expected %s -> %s", errStageMoved, from, to)
	default:
		return nil
	}
}

func purchaseParams(order models.Order) ledger.RecordParams {
	return ledger.RecordParams{
		AccountID: order.AccountID,
		Type:      models.TransactionPurchase,
		Amount:    -order.TotalCost,
		Reference: order.ID.String(),
		Metadata:  map[string]any{"order_id": order.ID.String(), "items": len(order.Items)},
	}
}

func isReservationMiss(err error) bool {
	return errors.Is(err, apperrors.ErrStockInsufficient) ||
		errors.Is(err, apperrors.ErrItemUnavailable) ||
		errors.Is(err, apperrors.ErrInvalidItem)
}

func cartItemIDs(cart []models.CartItem) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(cart))
	for _, line := range cart {
		ids = append(ids, line.CatalogItemID)
	}
	return ids
}
