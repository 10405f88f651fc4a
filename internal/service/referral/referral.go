package referral

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/coinledger/internal/apperrors"
	"github.com/nkiryanov/coinledger/internal/logger"
	"github.com/nkiryanov/coinledger/internal/models"
	"github.com/nkiryanov/coinledger/internal/repository"
	"github.com/nkiryanov/coinledger/internal/service/audit"
	"github.com/nkiryanov/coinledger/internal/service/ledger"
)

const (
	defaultReferrerReward = 50
	defaultReferredBonus  = 25
)

type Config struct {
	// Credited to the code owner
	ReferrerReward int64

	// Credited to the account applying the code
	ReferredBonus int64
}

type Result struct {
	Referral models.Referral
	Bonus    int64
}

type ReferralService struct {
	referrerReward int64
	referredBonus  int64

	storage repository.Storage
	ledger  *ledger.LedgerService
	audit   *audit.Service
	logger  logger.Logger
}

func NewService(cfg Config, storage repository.Storage, ledgerService *ledger.LedgerService, auditor *audit.Service, l logger.Logger) *ReferralService {
	if cfg.ReferrerReward == 0 {
		cfg.ReferrerReward = defaultReferrerReward
	}
	if cfg.ReferredBonus == 0 {
		cfg.ReferredBonus = defaultReferredBonus
	}

	return &ReferralService{
		referrerReward: cfg.ReferrerReward,
		referredBonus:  cfg.ReferredBonus,
		storage:        storage,
		ledger:         ledgerService,
		audit:          auditor,
		logger:         l.WithGroup("referral"),
	}
}

// Apply links the account to the owner of code and credits both of them
// Either everything commits or the call fails without any effect
func (s *ReferralService) Apply(ctx context.Context, accountID uuid.UUID, code string) (Result, error) {
	var result Result
	code = strings.ToUpper(strings.TrimSpace(code))

	err := s.storage.InTx(ctx, func(storage repository.Storage) error {
		account, referrer, err := lockAccounts(ctx, storage, accountID, code)
		if err != nil {
			return err
		}

		if code == account.ReferralCode {
			return apperrors.ErrSelfReferral
		}

		applied, err := storage.Referral().ListAppliedReferrals(ctx, accountID)
		if err != nil {
			return err
		}
		if len(applied) > 0 {
			return apperrors.ErrAlreadyReferred
		}

		switch {
		case referrer == nil:
			return apperrors.ErrInvalidReferralCode
		case !referrer.InGoodStanding():
			return apperrors.ErrReferrerInactive
		}

		if !account.InGoodStanding() {
			return apperrors.ErrAccountInactive
		}

		ref, err := storage.Referral().CreateReferral(ctx, models.Referral{
			ReferrerID: referrer.ID,
			ReferredID: accountID,
			CodeUsed:   code,
		})
		if err != nil {
			return err
		}

		if err := storage.Account().IncrementReferralCount(ctx, referrer.ID); err != nil {
			return err
		}

		// Both credits carry the referral id, so they may be matched later
		reference := ref.ID.String()
		credits := []ledger.RecordParams{
			{AccountID: referrer.ID, Type: models.TransactionReferralReward, Amount: s.referrerReward, Reference: reference},
			{AccountID: accountID, Type: models.TransactionReferralBonus, Amount: s.referredBonus, Reference: reference},
		}
		for _, p := range credits {
			p.Metadata = map[string]any{"referral_code": code}
			if _, err := s.ledger.Apply(ctx, storage, p); err != nil {
				return err
			}
		}

		err = s.audit.Record(ctx, storage, models.AuditEntry{
			AccountID: accountID,
			Action:    audit.ActionReferralApplied,
			Reference: reference,
			Details: map[string]any{
				"referrer_id": referrer.ID.String(),
				"code":        code,
			},
		})
		if err != nil {
			return err
		}

		result = Result{Referral: ref, Bonus: s.referredBonus}
		return nil
	})

	if err != nil {
		s.reject(ctx, accountID, code, err)
		return Result{}, err
	}

	return result, nil
}

// Lock the account and the owner of code (nil if no one owns it)
// Rows are locked in id order: two accounts applying each other's codes wait instead of deadlocking
func lockAccounts(ctx context.Context, storage repository.Storage, accountID uuid.UUID, code string) (models.Account, *models.Account, error) {
	ids := []uuid.UUID{accountID}

	owner, err := storage.Account().GetAccountByReferralCode(ctx, code)
	found := err == nil
	switch {
	case errors.Is(err, apperrors.ErrAccountNotFound):
	case err != nil:
		return models.Account{}, nil, err
	case owner.ID != accountID:
		ids = append(ids, owner.ID)
	}

	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return strings.Compare(a.String(), b.String())
	})

	locked := make(map[uuid.UUID]models.Account, len(ids))
	for _, id := range ids {
		account, err := storage.Account().GetAccount(ctx, id, true)
		if err != nil {
			return models.Account{}, nil, err
		}
		locked[id] = account
	}

	if !found {
		return locked[accountID], nil, nil
	}
	referrer := locked[owner.ID]
	return locked[accountID], &referrer, nil
}

func (s *ReferralService) reject(ctx context.Context, accountID uuid.UUID, code string, cause error) {
	errCode := apperrors.Code(cause)
	if errCode == apperrors.CodeInternal {
		s.logger.Error("Referral not applied", "account_id", accountID, "error", cause)
	}
	if errors.Is(cause, apperrors.ErrAccountNotFound) {
		return
	}

	err := s.audit.Record(ctx, s.storage, models.AuditEntry{
		AccountID: accountID,
		Action:    audit.ActionReferralRejected,
		Outcome:   models.OutcomeFailure,
		Details: map[string]any{
			"code":       code,
			"error_code": errCode,
		},
	})
	if err != nil {
		s.logger.Error("Rejected referral not audited", "account_id", accountID, "error", err)
	}
}
