package authctx

import (
	"context"

	"github.com/nkiryanov/coinledger/internal/service/identity"
)

type ctxKey string

const identityKey ctxKey = "identity"

// Create a new context with the caller identity
func New(ctx context.Context, id identity.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// Extract the caller identity from the context
func FromContext(ctx context.Context) (identity.Identity, bool) {
	id, ok := ctx.Value(identityKey).(identity.Identity)
	return id, ok
}
