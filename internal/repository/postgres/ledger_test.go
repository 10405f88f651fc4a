package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/coinledger/internal/apperrors"
	"github.com/nkiryanov/coinledger/internal/models"
	"github.com/nkiryanov/coinledger/internal/repository"
	"github.com/nkiryanov/coinledger/internal/testutil"
)

func TestLedgerRepo(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	credit := func(t *testing.T, storage repository.Storage, accountID uuid.UUID, amount int64, source, reference string, at time.Time) models.Transaction {
		t.Helper()

		prev, err := storage.Account().GetAccount(t.Context(), accountID, false)
		require.NoError(t, err)
		newBalance, err := storage.Account().ApplyBalanceDelta(t.Context(), accountID, amount)
		require.NoError(t, err)

		tx, err := storage.Ledger().CreateTransaction(t.Context(), models.Transaction{
			AccountID:       accountID,
			Type:            models.TransactionRewardCredit,
			Source:          source,
			Amount:          amount,
			Status:          models.TransactionCompleted,
			Reference:       reference,
			PreviousBalance: prev.Balance,
			NewBalance:      newBalance,
			CreatedAt:       at,
		})
		require.NoError(t, err)
		return tx
	}

	t.Run("CreateTransaction", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			account := createAccount(t, storage)

			created, err := storage.Ledger().CreateTransaction(t.Context(), models.Transaction{
				AccountID:       account.ID,
				Type:            models.TransactionAdminAdjustment,
				Amount:          -5,
				Status:          models.TransactionFailed,
				Metadata:        map[string]any{"note": "manual"},
				PreviousBalance: 0,
				NewBalance:      0,
				FailureReason:   "insufficient balance",
			})

			require.NoError(t, err)
			require.NotEqual(t, uuid.Nil, created.ID)
			require.Empty(t, created.Source)
			require.Empty(t, created.Reference)
			require.Equal(t, "manual", created.Metadata["note"])
			require.Equal(t, "insufficient balance", created.FailureReason)
			require.WithinDuration(t, time.Now(), created.CreatedAt, time.Minute)
		})
	})

	t.Run("ListTransactions", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			account := createAccount(t, storage)
			start := time.Now().Add(-time.Hour)
			for i := range 3 {
				credit(t, storage, account.ID, int64(i+1), "VOTE", "", start.Add(time.Duration(i)*time.Minute))
			}

			all, err := storage.Ledger().ListTransactions(t.Context(), account.ID, repository.ListTransactionsOpts{Limit: 10})
			require.NoError(t, err)
			require.Len(t, all, 3)
			require.EqualValues(t, 3, all[0].Amount, "newest transaction goes first")

			page, err := storage.Ledger().ListTransactions(t.Context(), account.ID, repository.ListTransactionsOpts{Limit: 1, Skip: 1})
			require.NoError(t, err)
			require.Len(t, page, 1)
			require.EqualValues(t, 2, page[0].Amount)
		})
	})

	t.Run("credit lookups", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			account := createAccount(t, storage)
			now := time.Now().Truncate(time.Millisecond)

			last, err := storage.Ledger().LastCreditAt(t.Context(), account.ID, "QUIZ_COMPLETION")
			require.NoError(t, err)
			require.True(t, last.IsZero(), "no credits yet")

			credit(t, storage, account.ID, 10, "QUIZ_COMPLETION", "quiz-1", now.Add(-2*time.Hour))
			credit(t, storage, account.ID, 10, "QUIZ_COMPLETION", "quiz-2", now.Add(-time.Hour))
			credit(t, storage, account.ID, 10, "VOTE", "", now)

			last, err = storage.Ledger().LastCreditAt(t.Context(), account.ID, "QUIZ_COMPLETION")
			require.NoError(t, err)
			require.WithinDuration(t, now.Add(-time.Hour), last, time.Millisecond)

			count, err := storage.Ledger().CountCredits(t.Context(), account.ID, repository.CountCreditsOpts{Source: "QUIZ_COMPLETION"})
			require.NoError(t, err)
			require.Equal(t, 2, count)

			count, err = storage.Ledger().CountCredits(t.Context(), account.ID, repository.CountCreditsOpts{
				Source: "QUIZ_COMPLETION",
				Since:  now.Add(-90 * time.Minute),
			})
			require.NoError(t, err)
			require.Equal(t, 1, count, "only credits after since are counted")

			ref := "quiz-1"
			count, err = storage.Ledger().CountCredits(t.Context(), account.ID, repository.CountCreditsOpts{
				Source:    "QUIZ_COMPLETION",
				Reference: &ref,
			})
			require.NoError(t, err)
			require.Equal(t, 1, count, "only credits for the reference are counted")

			empty := ""
			count, err = storage.Ledger().CountCredits(t.Context(), account.ID, repository.CountCreditsOpts{
				Source:    "VOTE",
				Reference: &empty,
			})
			require.NoError(t, err)
			require.Equal(t, 1, count, "credit without reference counted under empty reference")
		})
	})

	t.Run("Reconcile", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			account := createAccount(t, storage)
			credit(t, storage, account.ID, 30, "VOTE", "", time.Now())
			credit(t, storage, account.ID, 12, "VOTE", "", time.Now())

			rec, err := storage.Ledger().Reconcile(t.Context(), account.ID)
			require.NoError(t, err)
			require.True(t, rec.Balanced())
			require.EqualValues(t, 42, rec.LedgerSum)
			require.Equal(t, 2, rec.EntryCount)

			mismatches, err := storage.Ledger().ListMismatches(t.Context(), 10)
			require.NoError(t, err)
			require.Empty(t, mismatches)

			// Corrupt balance directly, bypassing the ledger
			_, err = tx.Exec(t.Context(), `UPDATE accounts SET balance = balance + 1 WHERE id = $1`, account.ID)
			require.NoError(t, err)

			mismatches, err = storage.Ledger().ListMismatches(t.Context(), 10)
			require.NoError(t, err)
			require.Len(t, mismatches, 1)
			require.Equal(t, account.ID, mismatches[0].AccountID)
			require.EqualValues(t, 43, mismatches[0].Balance)

			_, err = storage.Ledger().Reconcile(t.Context(), uuid.New())
			require.ErrorIs(t, err, apperrors.ErrAccountNotFound)
		})
	})
}
