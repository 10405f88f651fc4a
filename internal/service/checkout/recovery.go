package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/nkiryanov/coinledger/internal/metrics"
	"github.com/nkiryanov/coinledger/internal/models"
	"github.com/nkiryanov/coinledger/internal/repository"
	"github.com/nkiryanov/coinledger/internal/service/audit"
)

// Actions taken by Recover
const (
	ActionNone        = "none"
	ActionCancelled   = "cancelled"
	ActionCompensated = "compensated"
	ActionCompleted   = "completed"
)

var recoverableStages = []models.OrderStage{
	models.StagePending,
	models.StageStockReserved,
	models.StageDebited,
	models.StageCompensating,
}

// Orders stuck in a non terminal stage for longer than staleAfter
func (s *CheckoutService) ListStale(ctx context.Context, staleAfter time.Duration, limit int) ([]models.Order, error) {
	before := time.Now().Add(-staleAfter)

	return s.storage.Order().ListOrders(ctx, repository.ListOrdersOpts{
		Stages:        recoverableStages,
		UpdatedBefore: &before,
		Limit:         limit,
	})
}

// Recover drives stuck order to a terminal stage:
// abandoned pending orders are cancelled, reservations without a debit are released
// and debited orders are completed
func (s *CheckoutService) Recover(ctx context.Context, order models.Order) (string, error) {
	action := ActionNone
	var err error

	switch order.Stage {
	case models.StagePending:
		action = ActionCancelled
		err = transit(ctx, s.storage, order.ID, models.StagePending, models.StageCancelled, "abandoned before reservation")

	case models.StageStockReserved:
		action = ActionCompensated
		err = transit(ctx, s.storage, order.ID, models.StageStockReserved, models.StageCompensating, "abandoned after reservation")
		if err == nil {
			err = s.compensate(ctx, order.ID)
		}

	case models.StageCompensating:
		action = ActionCompensated
		err = s.compensate(ctx, order.ID)

	case models.StageDebited:
		action = ActionCompleted
		err = s.complete(ctx, order.ID)

	default:
		return ActionNone, nil
	}

	// Somebody else finished the order meanwhile
	if errors.Is(err, errStageMoved) {
		return ActionNone, nil
	}
	if err != nil {
		return action, err
	}

	metrics.SweepActions.WithLabelValues(action).Inc()

	err = s.audit.Record(ctx, s.storage, models.AuditEntry{
		AccountID: order.AccountID,
		Action:    audit.ActionOrderRecovered,
		Reference: order.ID.String(),
		Details:   map[string]any{"from_stage": string(order.Stage), "action": action},
	})
	if err != nil {
		s.logger.Error("Recovered order not audited", "order_id", order.ID, "error", err)
	}

	return action, nil
}
