package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nkiryanov/coinledger/internal/handlers/middleware"
	"github.com/nkiryanov/coinledger/internal/handlers/render"
	"github.com/nkiryanov/coinledger/internal/logger"
	"github.com/nkiryanov/coinledger/internal/models"
	"github.com/nkiryanov/coinledger/internal/service/checkout"
	"github.com/nkiryanov/coinledger/internal/service/identity"
	"github.com/nkiryanov/coinledger/internal/service/ledger"
	"github.com/nkiryanov/coinledger/internal/service/referral"
	"github.com/nkiryanov/coinledger/internal/service/reward"
)

const requestTimeout = 15 * time.Second

type Services struct {
	Auth     authService
	Ledger   ledgerService
	Rewards  rewardService
	Referral referralService
	Checkout checkoutService
	DB       pinger
}

func NewRouter(s Services, l logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimw.RequestID,
		chimw.RealIP,
		middleware.AccessLog(l),
		chimw.Recoverer,
		chimw.Timeout(requestTimeout),
	)

	r.Get("/health", handleHealth(s.DB, l))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(s.Auth))

		r.Get("/balance", handleBalance(s.Ledger, l))
		r.Get("/transactions", handleListTransactions(s.Ledger, l))

		r.Post("/rewards", handleIssueReward(s.Rewards, l))
		r.Post("/referral", handleApplyReferral(s.Referral, l))

		r.Get("/cart", handleGetCart(s.Checkout, l))
		r.Put("/cart/items", handleSetCartItem(s.Checkout, l))
		r.Delete("/cart/items/{itemID}", handleRemoveCartItem(s.Checkout, l))

		r.Post("/checkout", handleCheckout(s.Checkout, l))
		r.Get("/orders", handleListOrders(s.Checkout, l))
		r.Get("/orders/{orderID}", handleGetOrder(s.Checkout, l))
		r.Post("/orders/{orderID}/cancel", handleCancelOrder(s.Checkout, l))

		r.With(middleware.AdminOnly).Post("/admin/adjustments", handleAdjustment(s.Ledger, l))
	})

	return r
}

type pinger interface {
	Ping(ctx context.Context) error
}

type authService interface {
	// Resolve caller of the request
	// Has to return apperrors.ErrInvalidToken if token is missing or invalid
	Auth(ctx context.Context, r *http.Request) (identity.Identity, error)
}

type ledgerService interface {
	GetAccount(ctx context.Context, accountID uuid.UUID) (models.Account, error)
	GetHistory(ctx context.Context, accountID uuid.UUID, limit int, skip int) ([]models.Transaction, error)
	Record(ctx context.Context, p ledger.RecordParams) (models.Transaction, error)
}

type rewardService interface {
	Issue(ctx context.Context, accountID uuid.UUID, rewardType string, reference string, metadata map[string]any) (reward.Result, error)
}

type referralService interface {
	Apply(ctx context.Context, accountID uuid.UUID, code string) (referral.Result, error)
}

type checkoutService interface {
	Checkout(ctx context.Context, accountID uuid.UUID) (models.Order, error)
	GetOrder(ctx context.Context, accountID uuid.UUID, orderID uuid.UUID) (models.Order, error)
	ListOrders(ctx context.Context, accountID uuid.UUID, limit int, skip int) ([]models.Order, error)
	Cancel(ctx context.Context, accountID uuid.UUID, orderID uuid.UUID) (models.Order, error)

	GetCart(ctx context.Context, accountID uuid.UUID) (checkout.Cart, error)
	SetCartItem(ctx context.Context, accountID uuid.UUID, itemID uuid.UUID, quantity int) error
	RemoveCartItem(ctx context.Context, accountID uuid.UUID, itemID uuid.UUID) error
}

func handleHealth(db pinger, l logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			l.Error("Health check failed", "error", err)
			render.ServiceError(w, "Database is unavailable", http.StatusServiceUnavailable)
			return
		}
		render.JSON(w, map[string]string{"status": "ok"})
	}
}

// Render service error, internal ones are logged
func renderError(w http.ResponseWriter, l logger.Logger, msg string, err error) {
	if render.Status(err) >= http.StatusInternalServerError {
		l.Error(msg, "error", err)
	}
	render.Error(w, err)
}
