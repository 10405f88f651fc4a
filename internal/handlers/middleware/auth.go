package middleware

import (
	"context"
	"net/http"

	"github.com/nkiryanov/coinledger/internal/apperrors"
	"github.com/nkiryanov/coinledger/internal/handlers/authctx"
	"github.com/nkiryanov/coinledger/internal/handlers/render"
	"github.com/nkiryanov/coinledger/internal/service/identity"
)

type authService interface {
	Auth(ctx context.Context, r *http.Request) (identity.Identity, error)
}

func AuthMiddleware(as authService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := as.Auth(r.Context(), r)
			if err != nil {
				render.Error(w, err)
				return
			}
			ctx := authctx.New(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Let through only callers with admin role; has to go after AuthMiddleware
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := authctx.FromContext(r.Context())
		if !ok || !id.IsAdmin() {
			render.Error(w, apperrors.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
