package postgres

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/coinledger/internal/apperrors"
	"github.com/nkiryanov/coinledger/internal/models"
)

const (
	referralCodeLen      = 8
	referralCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // no 0/O, 1/I look-alikes
	referralCodeAttempts = 5
)

type AccountRepo struct {
	DB DBTX
}

const accountColumns = `id, balance, is_active, is_blocked, referral_code, referral_count, rewards_claimed, total_rewarded, created_at, updated_at`

const ensureAccount = `-- name: EnsureAccount
INSERT INTO accounts (id, is_active, is_blocked, referral_code)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE
SET is_active = EXCLUDED.is_active,
	is_blocked = EXCLUDED.is_blocked,
	updated_at = NOW()
RETURNING ` + accountColumns

func (r *AccountRepo) EnsureAccount(ctx context.Context, accountID uuid.UUID, standing models.Standing) (models.Account, error) {
	var account models.Account

	// Referral code is random, so it may clash with existed one; just try another
	for range referralCodeAttempts {
		code, err := newReferralCode()
		if err != nil {
			return account, err
		}

		rows, _ := r.DB.Query(ctx, ensureAccount, accountID, standing.IsActive, standing.IsBlocked, code)
		account, err = pgx.CollectOneRow(rows, rowToAccount)

		var pgErr *pgconn.PgError
		switch {
		case err == nil:
			return account, nil
		case errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation:
			continue
		default:
			return account, fmt.Errorf("db error: %w", err)
		}
	}

	return account, errors.New("could not generate unique referral code")
}

func (r *AccountRepo) GetAccount(ctx context.Context, accountID uuid.UUID, lock bool) (models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	rows, _ := r.DB.Query(ctx, query, accountID)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, pgx.ErrNoRows):
		return account, apperrors.ErrAccountNotFound
	default:
		return account, fmt.Errorf("db error: %w", err)
	}
}

func (r *AccountRepo) GetAccountByReferralCode(ctx context.Context, code string) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE referral_code = $1`, code)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, pgx.ErrNoRows):
		return account, apperrors.ErrAccountNotFound
	default:
		return account, fmt.Errorf("db error: %w", err)
	}
}

// Single statement so concurrent deltas never lose updates; the floor is guarded in WHERE
const applyBalanceDelta = `-- name: ApplyBalanceDelta
UPDATE accounts
SET balance = balance + $2, updated_at = NOW()
WHERE id = $1 AND balance + $2 >= 0
RETURNING balance
`

func (r *AccountRepo) ApplyBalanceDelta(ctx context.Context, accountID uuid.UUID, delta int64) (int64, error) {
	rows, _ := r.DB.Query(ctx, applyBalanceDelta, accountID, delta)
	balance, err := pgx.CollectOneRow(rows, pgx.RowTo[int64])

	switch {
	case err == nil:
		return balance, nil
	case errors.Is(err, pgx.ErrNoRows):
		// The account either not exists or the balance would go negative
		var exists bool
		err = r.DB.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, accountID).Scan(&exists)
		switch {
		case err != nil:
			return 0, fmt.Errorf("db error: %w", err)
		case !exists:
			return 0, apperrors.ErrAccountNotFound
		default:
			return 0, apperrors.ErrBalanceInsufficient
		}
	default:
		return 0, fmt.Errorf("db error: %w", err)
	}
}

func (r *AccountRepo) IncrementRewardStats(ctx context.Context, accountID uuid.UUID, amount int64) error {
	const query = `
	UPDATE accounts
	SET rewards_claimed = rewards_claimed + 1, total_rewarded = total_rewarded + $2, updated_at = NOW()
	WHERE id = $1
	`
	return r.increment(ctx, query, accountID, amount)
}

func (r *AccountRepo) IncrementReferralCount(ctx context.Context, accountID uuid.UUID) error {
	const query = `
	UPDATE accounts
	SET referral_count = referral_count + 1, updated_at = NOW()
	WHERE id = $1
	`
	return r.increment(ctx, query, accountID)
}

func (r *AccountRepo) increment(ctx context.Context, query string, args ...any) error {
	tag, err := r.DB.Exec(ctx, query, args...)
	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case tag.RowsAffected() == 0:
		return apperrors.ErrAccountNotFound
	default:
		return nil
	}
}

func (r *AccountRepo) ListAccountIDs(ctx context.Context, afterID uuid.UUID, limit int) ([]uuid.UUID, error) {
	const query = `
	SELECT id FROM accounts
	WHERE id > $1
	ORDER BY id
	LIMIT $2
	`

	rows, _ := r.DB.Query(ctx, query, afterID, limit)
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return ids, nil
}

func rowToAccount(row pgx.CollectableRow) (models.Account, error) {
	var a models.Account
	err := row.Scan(
		&a.ID, &a.Balance, &a.IsActive, &a.IsBlocked, &a.ReferralCode,
		&a.ReferralCount, &a.RewardsClaimed, &a.TotalRewarded, &a.CreatedAt, &a.UpdatedAt,
	)
	return a, err
}

func newReferralCode() (string, error) {
	b := make([]byte, referralCodeLen)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("error while generating referral code. Err: %w", err)
	}

	for i := range b {
		b[i] = referralCodeAlphabet[int(b[i])%len(referralCodeAlphabet)]
	}

	return string(b), nil
}
