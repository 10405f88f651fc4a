package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/coinledger/internal/apperrors"
	"github.com/nkiryanov/coinledger/internal/models"
	"github.com/nkiryanov/coinledger/internal/repository"
)

type LedgerRepo struct {
	DB DBTX
}

const transactionColumns = `id, account_id, type, source, amount, status, reference, metadata, previous_balance, new_balance, failure_reason, created_at`

const createTransaction = `-- name: CreateTransaction
INSERT INTO transactions (id, account_id, type, source, amount, status, reference, metadata, previous_balance, new_balance, failure_reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING ` + transactionColumns

func (r *LedgerRepo) CreateTransaction(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	rows, _ := r.DB.Query(ctx, createTransaction,
		t.ID, t.AccountID, t.Type, nullString(t.Source), t.Amount, t.Status, nullString(t.Reference),
		t.Metadata, t.PreviousBalance, t.NewBalance, nullString(t.FailureReason), t.CreatedAt,
	)
	t, err := pgx.CollectOneRow(rows, rowToTransaction)
	if err != nil {
		return t, fmt.Errorf("db error: %w", err)
	}

	return t, nil
}

func (r *LedgerRepo) ListTransactions(ctx context.Context, accountID uuid.UUID, opts repository.ListTransactionsOpts) ([]models.Transaction, error) {
	const listTransactions = `
	SELECT ` + transactionColumns + ` FROM transactions
	WHERE account_id = $1
	ORDER BY created_at DESC, id DESC
	LIMIT $2 OFFSET $3
	`

	rows, _ := r.DB.Query(ctx, listTransactions, accountID, opts.Limit, opts.Skip)
	transactions, err := pgx.CollectRows(rows, rowToTransaction)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return transactions, nil
}

func (r *LedgerRepo) LastCreditAt(ctx context.Context, accountID uuid.UUID, source string) (time.Time, error) {
	const lastCreditAt = `
	SELECT MAX(created_at) FROM transactions
	WHERE account_id = $1 AND source = $2 AND status = 'completed' AND amount > 0
	`

	var last *time.Time
	if err := r.DB.QueryRow(ctx, lastCreditAt, accountID, source).Scan(&last); err != nil {
		return time.Time{}, fmt.Errorf("db error: %w", err)
	}
	if last == nil {
		return time.Time{}, nil
	}

	return *last, nil
}

func (r *LedgerRepo) CountCredits(ctx context.Context, accountID uuid.UUID, opts repository.CountCreditsOpts) (int, error) {
	const countCredits = `
	SELECT COUNT(*) FROM transactions
	WHERE account_id = $1 AND source = $2 AND status = 'completed' AND amount > 0
		AND created_at >= $3
		-- missing reference is stored as NULL and claimed under ''
		AND ($4::boolean IS FALSE OR COALESCE(reference, '') = $5::text)
	`

	var count int
	err := r.DB.QueryRow(ctx, countCredits, accountID, opts.Source, opts.Since, opts.Reference != nil, opts.Reference).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return count, nil
}

// Failed transactions never moved the balance so they are out of the sum
const reconcileSelect = `
SELECT a.id, a.balance, COALESCE(SUM(t.amount), 0)::bigint, COUNT(t.id)
FROM accounts a
LEFT JOIN transactions t ON t.account_id = a.id AND t.status = 'completed'
`

func (r *LedgerRepo) Reconcile(ctx context.Context, accountID uuid.UUID) (models.Reconciliation, error) {
	rows, _ := r.DB.Query(ctx, reconcileSelect+` WHERE a.id = $1 GROUP BY a.id`, accountID)
	rec, err := pgx.CollectOneRow(rows, rowToReconciliation)

	switch {
	case err == nil:
		return rec, nil
	case errors.Is(err, pgx.ErrNoRows):
		return rec, apperrors.ErrAccountNotFound
	default:
		return rec, fmt.Errorf("db error: %w", err)
	}
}

func (r *LedgerRepo) ListMismatches(ctx context.Context, limit int) ([]models.Reconciliation, error) {
	query := reconcileSelect + `
	GROUP BY a.id
	HAVING a.balance <> COALESCE(SUM(t.amount), 0)
	ORDER BY a.id
	LIMIT $1
	`

	rows, _ := r.DB.Query(ctx, query, limit)
	recs, err := pgx.CollectRows(rows, rowToReconciliation)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return recs, nil
}

func rowToTransaction(row pgx.CollectableRow) (models.Transaction, error) {
	var t models.Transaction
	var source, reference, reason *string

	err := row.Scan(
		&t.ID, &t.AccountID, &t.Type, &source, &t.Amount, &t.Status, &reference,
		&t.Metadata, &t.PreviousBalance, &t.NewBalance, &reason, &t.CreatedAt,
	)

	t.Source = fromNullString(source)
	t.Reference = fromNullString(reference)
	t.FailureReason = fromNullString(reason)
	return t, err
}

func rowToReconciliation(row pgx.CollectableRow) (models.Reconciliation, error) {
	var rec models.Reconciliation
	err := row.Scan(&rec.AccountID, &rec.Balance, &rec.LedgerSum, &rec.EntryCount)
	return rec, err
}
