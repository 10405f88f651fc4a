package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/coinledger/internal/apperrors"
	"github.com/nkiryanov/coinledger/internal/logger"
	"github.com/nkiryanov/coinledger/internal/metrics"
	"github.com/nkiryanov/coinledger/internal/models"
	"github.com/nkiryanov/coinledger/internal/repository"
	"github.com/nkiryanov/coinledger/internal/service/audit"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

type RecordParams struct {
	AccountID uuid.UUID
	Type      models.TransactionType
	Source    string // reward type, set for reward credits only
	Amount    int64
	Reference string
	Metadata  map[string]any
}

type LedgerService struct {
	storage repository.Storage
	audit   *audit.Service
	logger  logger.Logger

	now func() time.Time
}

func NewService(storage repository.Storage, auditor *audit.Service, l logger.Logger) *LedgerService {
	return &LedgerService{
		storage: storage,
		audit:   auditor,
		logger:  l.WithGroup("ledger"),
		now:     time.Now,
	}
}

// Record applies the transaction in its own db transaction
// A rejected attempt is persisted as failed transaction with the cause
func (s *LedgerService) Record(ctx context.Context, p RecordParams) (models.Transaction, error) {
	var t models.Transaction

	err := s.storage.InTx(ctx, func(storage repository.Storage) error {
		var err error
		t, err = s.Apply(ctx, storage, p)
		return err
	})
	if err != nil {
		if ferr := s.RecordFailure(ctx, p, err); ferr != nil {
			s.logger.Error("Failed transaction not recorded", "account_id", p.AccountID, "error", ferr)
		}
		return t, err
	}

	return t, nil
}

// Apply the transaction using storage bound to the caller's db transaction
// Nothing is written on failure; it is up to caller to call RecordFailure after rollback
func (s *LedgerService) Apply(ctx context.Context, storage repository.Storage, p RecordParams) (models.Transaction, error) {
	var t models.Transaction

	if err := validate(p); err != nil {
		return t, err
	}

	newBalance, err := storage.Account().ApplyBalanceDelta(ctx, p.AccountID, p.Amount)
	if err != nil {
		return t, err
	}

	t, err = storage.Ledger().CreateTransaction(ctx, models.Transaction{
		AccountID:       p.AccountID,
		Type:            p.Type,
		Source:          p.Source,
		Amount:          p.Amount,
		Status:          models.TransactionCompleted,
		Reference:       p.Reference,
		Metadata:        p.Metadata,
		PreviousBalance: newBalance - p.Amount,
		NewBalance:      newBalance,
		CreatedAt:       s.now(),
	})
	if err != nil {
		return t, fmt.Errorf("error while creating transaction. Err: %w", err)
	}

	severity := models.SeverityInfo
	if p.Type == models.TransactionFraudPenalty {
		severity = models.SeverityCritical
	}

	err = s.audit.Record(ctx, storage, models.AuditEntry{
		AccountID: p.AccountID,
		Action:    audit.ActionTransaction,
		Outcome:   models.OutcomeSuccess,
		Severity:  severity,
		Reference: p.Reference,
		Details: map[string]any{
			"transaction_id": t.ID.String(),
			"type":           string(p.Type),
			"amount":         p.Amount,
			"new_balance":    newBalance,
		},
	})
	if err != nil {
		return t, err
	}

	metrics.LedgerTransactions.WithLabelValues(string(p.Type), string(models.TransactionCompleted)).Inc()
	metrics.LedgerCoins.WithLabelValues(metrics.Direction(p.Amount)).Add(float64(abs(p.Amount)))

	return t, nil
}

// RecordFailure leaves the trace of rejected attempt: failed transaction and audit entry
// Transaction is skipped when it can not be stored (unknown account, zero amount)
func (s *LedgerService) RecordFailure(ctx context.Context, p RecordParams, cause error) error {
	metrics.LedgerTransactions.WithLabelValues(string(p.Type), string(models.TransactionFailed)).Inc()

	return s.storage.InTx(ctx, func(storage repository.Storage) error {
		details := map[string]any{
			"type":   string(p.Type),
			"amount": p.Amount,
			"code":   apperrors.Code(cause),
		}

		if p.Amount != 0 && p.Type.Valid() {
			account, err := storage.Account().GetAccount(ctx, p.AccountID, false)
			switch {
			case errors.Is(err, apperrors.ErrAccountNotFound):
			case err != nil:
				return err
			default:
				t, err := storage.Ledger().CreateTransaction(ctx, models.Transaction{
					AccountID:       p.AccountID,
					Type:            p.Type,
					Source:          p.Source,
					Amount:          p.Amount,
					Status:          models.TransactionFailed,
					Reference:       p.Reference,
					Metadata:        p.Metadata,
					PreviousBalance: account.Balance,
					NewBalance:      account.Balance,
					FailureReason:   cause.Error(),
					CreatedAt:       s.now(),
				})
				if err != nil {
					return fmt.Errorf("error while creating failed transaction. Err: %w", err)
				}
				details["transaction_id"] = t.ID.String()
			}
		}

		// Failed debits are what fraud analytics looks for
		severity := models.SeverityInfo
		if p.Amount < 0 {
			severity = models.SeverityWarning
		}

		return s.audit.Record(ctx, storage, models.AuditEntry{
			AccountID: p.AccountID,
			Action:    audit.ActionTransactionFail,
			Outcome:   models.OutcomeFailure,
			Severity:  severity,
			Reference: p.Reference,
			Details:   details,
		})
	})
}

func (s *LedgerService) GetAccount(ctx context.Context, accountID uuid.UUID) (models.Account, error) {
	return s.storage.Account().GetAccount(ctx, accountID, false)
}

func (s *LedgerService) GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	account, err := s.storage.Account().GetAccount(ctx, accountID, false)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// Transactions newest first. Limit defaults to DefaultHistoryLimit and is capped with MaxHistoryLimit
func (s *LedgerService) GetHistory(ctx context.Context, accountID uuid.UUID, limit int, skip int) ([]models.Transaction, error) {
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	skip = max(skip, 0)

	if _, err := s.storage.Account().GetAccount(ctx, accountID, false); err != nil {
		return nil, err
	}

	return s.storage.Ledger().ListTransactions(ctx, accountID, repository.ListTransactionsOpts{Limit: limit, Skip: skip})
}

// Reconcile compares balance with sum of completed transactions
// Mismatch is returned along with apperrors.ErrLedgerMismatch and audited as critical
func (s *LedgerService) Reconcile(ctx context.Context, accountID uuid.UUID) (models.Reconciliation, error) {
	rec, err := s.storage.Ledger().Reconcile(ctx, accountID)
	if err != nil {
		return rec, err
	}
	if rec.Balanced() {
		return rec, nil
	}

	err = s.audit.Record(ctx, s.storage, models.AuditEntry{
		AccountID: accountID,
		Action:    audit.ActionReconcile,
		Outcome:   models.OutcomeFailure,
		Severity:  models.SeverityCritical,
		Details: map[string]any{
			"balance":    rec.Balance,
			"ledger_sum": rec.LedgerSum,
		},
	})
	if err != nil {
		s.logger.Error("Reconcile mismatch not audited", "account_id", accountID, "error", err)
	}

	return rec, fmt.Errorf("%w: balance %d, ledger sum %d", apperrors.ErrLedgerMismatch, rec.Balance, rec.LedgerSum)
}

func (s *LedgerService) ListMismatches(ctx context.Context, limit int) ([]models.Reconciliation, error) {
	if limit <= 0 {
		limit = MaxHistoryLimit
	}
	return s.storage.Ledger().ListMismatches(ctx, limit)
}

// ValidateAdjustment checks manual balance change made by an operator:
// only adjustment types are allowed, penalties only take coins and refunds only give them
func ValidateAdjustment(p RecordParams) error {
	switch p.Type {
	case models.TransactionAdminAdjustment:
	case models.TransactionFraudPenalty:
		if p.Amount > 0 {
			return fmt.Errorf("%w: fraud penalty must be negative", apperrors.ErrInvalidAmount)
		}
	case models.TransactionRefund:
		if p.Amount < 0 {
			return fmt.Errorf("%w: refund must be positive", apperrors.ErrInvalidAmount)
		}
	default:
		return fmt.Errorf("%w: %q is not an adjustment", apperrors.ErrInvalidAmount, p.Type)
	}
	return validate(p)
}

func validate(p RecordParams) error {
	if p.Amount == 0 {
		return apperrors.ErrInvalidAmount
	}
	if !p.Type.Valid() {
		return fmt.Errorf("unknown transaction type %q", p.Type)
	}
	return nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
