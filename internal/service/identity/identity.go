// Package identity verifies access tokens issued by the identity provider.
//
// Tokens are HS256 JWTs: `sub` is the account id, `active` and `blocked`
// carry account standing and `role` grants admin endpoints.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/coinledger/internal/apperrors"
	"github.com/nkiryanov/coinledger/internal/models"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

const (
	defaultSigningMethod = "HS256"
	defaultTokenTTL      = 15 * time.Minute
)

type Claims struct {
	jwt.RegisteredClaims
	Active  bool   `json:"active"`
	Blocked bool   `json:"blocked"`
	Role    string `json:"role,omitempty"`
}

type Identity struct {
	AccountID uuid.UUID
	Standing  models.Standing
	Role      string
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

type Config struct {
	// Secret shared with identity provider
	// Required to be set
	SecretKey string

	// JWT MAC algorithm, HS256 if not set
	Alg string

	// Lifetime of tokens issued with Issue
	TTL time.Duration
}

type Verifier struct {
	key []byte
	alg jwt.SigningMethod
	ttl time.Duration
	now func() time.Time
}

func New(cfg Config) (*Verifier, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}
	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	if cfg.TTL == 0 {
		cfg.TTL = defaultTokenTTL
	}

	alg := jwt.GetSigningMethod(cfg.Alg)
	if alg == nil {
		return nil, fmt.Errorf("unknown signing method %q", cfg.Alg)
	}

	return &Verifier{
		key: []byte(cfg.SecretKey),
		alg: alg,
		ttl: cfg.TTL,
		now: time.Now,
	}, nil
}

// Issue signs token for the identity
// Production tokens come from the identity provider; this is for admin tooling and tests
func (v *Verifier) Issue(id Identity) (string, time.Time, error) {
	now := v.now().Truncate(time.Second)
	expiresAt := now.Add(v.ttl)

	role := id.Role
	if role == "" {
		role = RoleUser
	}

	token := jwt.NewWithClaims(v.alg, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.AccountID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Active:  id.Standing.IsActive,
		Blocked: id.Standing.IsBlocked,
		Role:    role,
	})

	signed, err := token.SignedString(v.key)
	if err != nil {
		return "", expiresAt, fmt.Errorf("error while signing token. Err: %w", err)
	}

	return signed, expiresAt, nil
}

// Parse and validate token, returns apperrors.ErrInvalidToken for any bad token
func (v *Verifier) Parse(token string) (Identity, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (any, error) {
			return v.key, nil
		},
		jwt.WithValidMethods([]string{v.alg.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", apperrors.ErrInvalidToken, err)
	}

	accountID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: subject is not account id", apperrors.ErrInvalidToken)
	}

	return Identity{
		AccountID: accountID,
		Standing:  models.Standing{IsActive: claims.Active, IsBlocked: claims.Blocked},
		Role:      claims.Role,
	}, nil
}
