package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/coinledger/internal/apperrors"
	"github.com/nkiryanov/coinledger/internal/models"
)

type ReferralRepo struct {
	DB DBTX
}

func (r *ReferralRepo) CreateReferral(ctx context.Context, ref models.Referral) (models.Referral, error) {
	const createReferral = `
	INSERT INTO referrals (id, referrer_id, referred_id, code_used, applied_at)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id, referrer_id, referred_id, code_used, applied_at
	`

	if ref.ID == uuid.Nil {
		ref.ID = uuid.New()
	}
	if ref.AppliedAt.IsZero() {
		ref.AppliedAt = time.Now()
	}

	rows, _ := r.DB.Query(ctx, createReferral, ref.ID, ref.ReferrerID, ref.ReferredID, ref.CodeUsed, ref.AppliedAt)
	created, err := pgx.CollectOneRow(rows, rowToReferral)

	var pgErr *pgconn.PgError
	switch {
	case err == nil:
		return created, nil
	case errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation:
		return created, apperrors.ErrAlreadyReferred
	case errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation:
		return created, apperrors.ErrSelfReferral
	default:
		return created, fmt.Errorf("db error: %w", err)
	}
}

func (r *ReferralRepo) ListAppliedReferrals(ctx context.Context, referredID uuid.UUID) ([]models.Referral, error) {
	const listReferrals = `
	SELECT id, referrer_id, referred_id, code_used, applied_at FROM referrals
	WHERE referred_id = $1
	ORDER BY applied_at
	`

	rows, _ := r.DB.Query(ctx, listReferrals, referredID)
	referrals, err := pgx.CollectRows(rows, rowToReferral)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return referrals, nil
}

func rowToReferral(row pgx.CollectableRow) (models.Referral, error) {
	var ref models.Referral
	err := row.Scan(&ref.ID, &ref.ReferrerID, &ref.ReferredID, &ref.CodeUsed, &ref.AppliedAt)
	return ref, err
}
