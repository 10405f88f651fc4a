package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/coinledger/internal/apperrors"
)

type RewardClaimRepo struct {
	DB DBTX
}

func (r *RewardClaimRepo) CreateClaim(ctx context.Context, accountID uuid.UUID, rewardType string, reference string, claimNo int, transactionID uuid.UUID) error {
	const createClaim = `
	INSERT INTO reward_claims (account_id, reward_type, reference, claim_no, transaction_id)
	VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.DB.Exec(ctx, createClaim, accountID, rewardType, reference, claimNo, transactionID)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return apperrors.ErrReferenceLimitReached
		}

		return fmt.Errorf("db error: %w", err)
	}

	return nil
}
