// Package reward issues coins for completed activities under per reward type rate limits.
package reward

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
	"github.com/nkiryanov/coinledger/internal/service/ledger"
)

type Result struct {
	Transaction models.Transaction
	NewBalance  int64
}

type Config struct {
	Policies Policies

	// Daily limits are counted from midnight in the location, UTC if not set
	Location *time.Location
}

type RewardService struct {
	policies Policies
	location *time.Location

	storage repository.Storage
	ledger  *ledger.LedgerService
	audit   *audit.Service
	logger  logger.Logger

	now func() time.Time
}

func NewService(cfg Config, storage repository.Storage, ledgerService *ledger.LedgerService, auditor *audit.Service, l logger.Logger) *RewardService {
	if cfg.Policies == nil {
		cfg.Policies = DefaultPolicies()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	return &RewardService{
		policies: cfg.Policies,
		location: cfg.Location,
		storage:  storage,
		ledger:   ledgerService,
		audit:    auditor,
		logger:   l.WithGroup("reward"),
		now:      time.Now,
	}
}

func (s *RewardService) Policies() Policies {
	return s.policies
}

// Issue credits the reward if every limit of the reward policy allows it
// Checks and the credit run in one db transaction holding the account row lock,
// so concurrent claims of the same account are serialized
func (s *RewardService) Issue(ctx context.Context, accountID uuid.UUID, rewardType string, reference string, metadata map[string]any) (Result, error) {
	var result Result

	policy, ok := s.policies[rewardType]
	if !ok {
		s.reject(ctx, accountID, rewardType, reference, apperrors.ErrInvalidReward)
		return result, apperrors.ErrInvalidReward
	}

	err := s.storage.InTx(ctx, func(storage repository.Storage) error {
		account, err := storage.Account().GetAccount(ctx, accountID, true)
		if err != nil {
			return err
		}

		now := s.now()
		if err := s.check(ctx, storage, account, policy, reference, now); err != nil {
			return err
		}

		t, err := s.ledger.Apply(ctx, storage, ledger.RecordParams{
			AccountID: accountID,
			Type:      models.TransactionRewardCredit,
			Source:    rewardType,
			Amount:    policy.Amount,
			Reference: reference,
			Metadata:  metadata,
		})
		if err != nil {
			return err
		}

		if policy.MaxPerUser > 0 {
			// Storage level guard: claim slots are unique per reference
			claimed, err := storage.Ledger().CountCredits(ctx, accountID, repository.CountCreditsOpts{
				Source:    rewardType,
				Reference: &reference,
			})
			if err != nil {
				return err
			}
			if err := storage.RewardClaim().CreateClaim(ctx, accountID, rewardType, reference, claimed, t.ID); err != nil {
				return err
			}
		}

		if err := storage.Account().IncrementRewardStats(ctx, accountID, policy.Amount); err != nil {
			return err
		}

		err = s.audit.Record(ctx, storage, models.AuditEntry{
			AccountID: accountID,
			Action:    audit.ActionRewardIssued,
			Reference: reference,
			Details: map[string]any{
				"reward_type":    rewardType,
				"amount":         policy.Amount,
				"transaction_id": t.ID.String(),
			},
		})
		if err != nil {
			return err
		}

		result = Result{Transaction: t, NewBalance: t.NewBalance}
		return nil
	})

	if err != nil {
		s.reject(ctx, accountID, rewardType, reference, err)
		return Result{}, err
	}

	s.logger.Debug("Reward issued", "account_id", accountID, "reward_type", rewardType, "amount", policy.Amount)
	return result, nil
}

// Checks in order: standing, eligibility, cooldown, daily cap, per reference cap
func (s *RewardService) check(ctx context.Context, storage repository.Storage, account models.Account, policy Policy, reference string, now time.Time) error {
	if !account.InGoodStanding() {
		return apperrors.ErrAccountInactive
	}

	if account.Balance < policy.MinBalance {
		return fmt.Errorf("%w: balance below %d", apperrors.ErrRequirementNotMet, policy.MinBalance)
	}
	if policy.MinAccountAge > 0 && now.Sub(account.CreatedAt) < policy.MinAccountAge {
		return fmt.Errorf("%w: account younger than %s", apperrors.ErrRequirementNotMet, policy.MinAccountAge)
	}

	if policy.CooldownMinutes > 0 {
		last, err := storage.Ledger().LastCreditAt(ctx, account.ID, policy.Type)
		if err != nil {
			return err
		}
		if !last.IsZero() && now.Sub(last) < policy.Cooldown() {
			return fmt.Errorf("%w: next claim after %s", apperrors.ErrOnCooldown, last.Add(policy.Cooldown()).UTC().Format(time.RFC3339))
		}
	}

	if policy.MaxPerDay > 0 {
		local := now.In(s.location)
		midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.location)

		today, err := storage.Ledger().CountCredits(ctx, account.ID, repository.CountCreditsOpts{Source: policy.Type, Since: midnight})
		if err != nil {
			return err
		}
		if today >= policy.MaxPerDay {
			return apperrors.ErrDailyLimitReached
		}
	}

	if policy.MaxPerUser > 0 {
		claimed, err := storage.Ledger().CountCredits(ctx, account.ID, repository.CountCreditsOpts{Source: policy.Type, Reference: &reference})
		if err != nil {
			return err
		}
		if claimed >= policy.MaxPerUser {
			return apperrors.ErrReferenceLimitReached
		}
	}

	return nil
}

// Rejected claims do not move the balance, only the audit trail keeps them
func (s *RewardService) reject(ctx context.Context, accountID uuid.UUID, rewardType string, reference string, cause error) {
	code := apperrors.Code(cause)
	metrics.RewardRejections.WithLabelValues(rewardType, code).Inc()

	if code == apperrors.CodeInternal {
		s.logger.Error("Reward not issued", "account_id", accountID, "reward_type", rewardType, "error", cause)
	}

	// Unknown accounts are not audited; nothing to attach the entry to
	if errors.Is(cause, apperrors.ErrAccountNotFound) {
		return
	}

	err := s.audit.Record(ctx, s.storage, models.AuditEntry{
		AccountID: accountID,
		Action:    audit.ActionRewardRejected,
		Outcome:   models.OutcomeFailure,
		Reference: reference,
		Details: map[string]any{
			"reward_type": rewardType,
			"code":        code,
			"reason":      cause.Error(),
		},
	})
	if err != nil {
		s.logger.Error("Rejected reward not audited", "account_id", accountID, "error", err)
	}
}
