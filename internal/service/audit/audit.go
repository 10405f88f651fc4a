// Package audit writes the audit trail of balance affecting operations
// and escalates suspicious entries to an alert sink.
package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nkiryanov/coinledger/internal/logger"
	"github.com/nkiryanov/coinledger/internal/metrics"
	"github.com/nkiryanov/coinledger/internal/models"
	"github.com/nkiryanov/coinledger/internal/repository"
)

const (
	ActionTransaction      = "ledger.transaction"
	ActionTransactionFail  = "ledger.transaction_failed"
	ActionReconcile        = "ledger.reconcile"
	ActionRewardIssued     = "reward.issued"
	ActionRewardRejected   = "reward.rejected"
	ActionReferralApplied  = "referral.applied"
	ActionReferralRejected = "referral.rejected"
	ActionCheckout         = "checkout.order"
	ActionCheckoutRejected = "checkout.rejected"
	ActionOrderRecovered   = "checkout.recovered"
)

// AlertSink receives entries that need human attention
type AlertSink interface {
	Alert(ctx context.Context, entry models.AuditEntry)
}

type AlertFunc func(ctx context.Context, entry models.AuditEntry)

func (f AlertFunc) Alert(ctx context.Context, entry models.AuditEntry) {
	f(ctx, entry)
}

// Alerts as log records: critical ones as errors, others as warnings
func LogSink(l logger.Logger) AlertSink {
	return AlertFunc(func(_ context.Context, e models.AuditEntry) {
		args := []any{
			"action", e.Action,
			"account_id", e.AccountID,
			"outcome", e.Outcome,
			"reference", e.Reference,
			"details", e.Details,
		}

		if e.Severity == models.SeverityCritical {
			l.Error("Audit alert", args...)
			return
		}
		l.Warn("Audit alert", args...)
	})
}

type Service struct {
	alerts AlertSink
}

func NewService(alerts AlertSink) *Service {
	return &Service{alerts: alerts}
}

// Record appends entry using storage, so it commits or rolls back with the caller's transaction
func (s *Service) Record(ctx context.Context, storage repository.Storage, entry models.AuditEntry) error {
	if entry.Outcome == "" {
		entry.Outcome = models.OutcomeSuccess
	}
	if entry.Severity == "" {
		entry.Severity = models.SeverityInfo
	}

	entry, err := storage.Audit().Append(ctx, entry)
	if err != nil {
		return fmt.Errorf("error while appending audit entry. Err: %w", err)
	}

	if entry.Severity != models.SeverityInfo && s.alerts != nil {
		metrics.AuditAlerts.WithLabelValues(entry.Severity).Inc()
		s.alerts.Alert(ctx, entry)
	}

	return nil
}

func (s *Service) List(ctx context.Context, storage repository.Storage, accountID uuid.UUID, limit int) ([]models.AuditEntry, error) {
	return storage.Audit().ListEntries(ctx, accountID, limit)
}
