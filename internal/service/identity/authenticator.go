package identity

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/coinledger/internal/apperrors"
	"github.com/nkiryanov/coinledger/internal/models"
)

const bearerPrefix = "Bearer "

type accountRepo interface {
	EnsureAccount(ctx context.Context, accountID uuid.UUID, standing models.Standing) (models.Account, error)
}

// Authenticator resolves request caller and keeps the local account row in sync with token claims
type Authenticator struct {
	verifier *Verifier
	accounts accountRepo
}

func NewAuthenticator(verifier *Verifier, accounts accountRepo) *Authenticator {
	return &Authenticator{verifier: verifier, accounts: accounts}
}

func (a *Authenticator) Auth(ctx context.Context, r *http.Request) (Identity, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return Identity{}, fmt.Errorf("%w: bearer token required", apperrors.ErrInvalidToken)
	}

	id, err := a.verifier.Parse(strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix)))
	if err != nil {
		return Identity{}, err
	}

	if _, err := a.accounts.EnsureAccount(ctx, id.AccountID, id.Standing); err != nil {
		return Identity{}, fmt.Errorf("error while syncing account. Err: %w", err)
	}

	return id, nil
}
