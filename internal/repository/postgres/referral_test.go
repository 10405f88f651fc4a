package postgres

import (
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/coinledger/internal/apperrors"
	"github.com/nkiryanov/coinledger/internal/models"
	"github.com/nkiryanov/coinledger/internal/repository"
	"github.com/nkiryanov/coinledger/internal/testutil"
)

func TestReferralRepo(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
		referrer := createAccount(t, storage)
		referred := createAccount(t, storage)

		t.Run("create once", func(t *testing.T) {
			inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
				ref, err := storage.Referral().CreateReferral(t.Context(), models.Referral{
					ReferrerID: referrer.ID,
					ReferredID: referred.ID,
					CodeUsed:   referrer.ReferralCode,
				})
				require.NoError(t, err)
				require.Equal(t, referrer.ReferralCode, ref.CodeUsed)

				applied, err := storage.Referral().ListAppliedReferrals(t.Context(), referred.ID)
				require.NoError(t, err)
				require.Len(t, applied, 1)

				_, err = storage.Referral().CreateReferral(t.Context(), models.Referral{
					ReferrerID: referrer.ID,
					ReferredID: referred.ID,
					CodeUsed:   referrer.ReferralCode,
				})
				require.ErrorIs(t, err, apperrors.ErrAlreadyReferred, "account may be referred only once")
			})
		})

		t.Run("self referral", func(t *testing.T) {
			inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
				_, err := storage.Referral().CreateReferral(t.Context(), models.Referral{
					ReferrerID: referrer.ID,
					ReferredID: referrer.ID,
					CodeUsed:   referrer.ReferralCode,
				})
				require.ErrorIs(t, err, apperrors.ErrSelfReferral)
			})
		})
	})
}

func TestRewardClaimRepo(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
		account := createAccount(t, storage)
		_, err := storage.Account().ApplyBalanceDelta(t.Context(), account.ID, 10)
		require.NoError(t, err)
		transaction, err := storage.Ledger().CreateTransaction(t.Context(), models.Transaction{
			AccountID:  account.ID,
			Type:       models.TransactionRewardCredit,
			Source:     "CODE_VERIFICATION",
			Amount:     10,
			Status:     models.TransactionCompleted,
			Reference:  "code-1",
			NewBalance: 10,
		})
		require.NoError(t, err)

		err = storage.RewardClaim().CreateClaim(t.Context(), account.ID, "CODE_VERIFICATION", "code-1", 1, transaction.ID)
		require.NoError(t, err)

		err = storage.RewardClaim().CreateClaim(t.Context(), account.ID, "CODE_VERIFICATION", "code-1", 1, transaction.ID)
		require.ErrorIs(t, err, apperrors.ErrReferenceLimitReached, "same claim slot can not be taken twice")
	})
}

func TestAuditRepo(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
		account := createAccount(t, storage)

		entry, err := storage.Audit().Append(t.Context(), models.AuditEntry{
			AccountID: account.ID,
			Action:    "reward.claim",
			Outcome:   models.OutcomeFailure,
			Severity:  models.SeverityWarning,
			Details:   map[string]any{"reason": "ON_COOLDOWN"},
		})
		require.NoError(t, err)
		require.NotZero(t, entry.ID)

		_, err = storage.Audit().Append(t.Context(), models.AuditEntry{
			Action:   "ledger.reconcile",
			Outcome:  models.OutcomeSuccess,
			Severity: models.SeverityInfo,
		})
		require.NoError(t, err, "system entries have no account")

		entries, err := storage.Audit().ListEntries(t.Context(), account.ID, 10)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Equal(t, "ON_COOLDOWN", entries[0].Details["reason"])
	})
}
