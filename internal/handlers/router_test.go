package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/coinledger/internal/apperrors"
	"github.com/nkiryanov/coinledger/internal/logger"
	"github.com/nkiryanov/coinledger/internal/models"
	"github.com/nkiryanov/coinledger/internal/service/checkout"
	"github.com/nkiryanov/coinledger/internal/service/identity"
	"github.com/nkiryanov/coinledger/internal/service/ledger"
	"github.com/nkiryanov/coinledger/internal/service/referral"
	"github.com/nkiryanov/coinledger/internal/service/reward"
)

// Fakes: every method is a function field, nil ones must not be called

type authFunc func(ctx context.Context, r *http.Request) (identity.Identity, error)

func (f authFunc) Auth(ctx context.Context, r *http.Request) (identity.Identity, error) {
	return f(ctx, r)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type fakeLedger struct {
	getAccount func(uuid.UUID) (models.Account, error)
	getHistory func(uuid.UUID, int, int) ([]models.Transaction, error)
	record     func(ledger.RecordParams) (models.Transaction, error)
}

func (f *fakeLedger) GetAccount(_ context.Context, id uuid.UUID) (models.Account, error) {
	return f.getAccount(id)
}

func (f *fakeLedger) GetHistory(_ context.Context, id uuid.UUID, limit int, skip int) ([]models.Transaction, error) {
	return f.getHistory(id, limit, skip)
}

func (f *fakeLedger) Record(_ context.Context, p ledger.RecordParams) (models.Transaction, error) {
	return f.record(p)
}

type rewardFunc func(accountID uuid.UUID, rewardType string, reference string) (reward.Result, error)

func (f rewardFunc) Issue(_ context.Context, accountID uuid.UUID, rewardType string, reference string, _ map[string]any) (reward.Result, error) {
	return f(accountID, rewardType, reference)
}

type referralFunc func(accountID uuid.UUID, code string) (referral.Result, error)

func (f referralFunc) Apply(_ context.Context, accountID uuid.UUID, code string) (referral.Result, error) {
	return f(accountID, code)
}

type fakeCheckout struct {
	checkout   func(uuid.UUID) (models.Order, error)
	getOrder   func(uuid.UUID, uuid.UUID) (models.Order, error)
	listOrders func(uuid.UUID, int, int) ([]models.Order, error)
	cancel     func(uuid.UUID, uuid.UUID) (models.Order, error)
	getCart    func(uuid.UUID) (checkout.Cart, error)
	setItem    func(uuid.UUID, uuid.UUID, int) error
	removeItem func(uuid.UUID, uuid.UUID) error
}

func (f *fakeCheckout) Checkout(_ context.Context, accountID uuid.UUID) (models.Order, error) {
	return f.checkout(accountID)
}

func (f *fakeCheckout) GetOrder(_ context.Context, accountID uuid.UUID, orderID uuid.UUID) (models.Order, error) {
	return f.getOrder(accountID, orderID)
}

func (f *fakeCheckout) ListOrders(_ context.Context, accountID uuid.UUID, limit int, skip int) ([]models.Order, error) {
	return f.listOrders(accountID, limit, skip)
}

func (f *fakeCheckout) Cancel(_ context.Context, accountID uuid.UUID, orderID uuid.UUID) (models.Order, error) {
	return f.cancel(accountID, orderID)
}

func (f *fakeCheckout) GetCart(_ context.Context, accountID uuid.UUID) (checkout.Cart, error) {
	return f.getCart(accountID)
}

func (f *fakeCheckout) SetCartItem(_ context.Context, accountID uuid.UUID, itemID uuid.UUID, quantity int) error {
	return f.setItem(accountID, itemID, quantity)
}

func (f *fakeCheckout) RemoveCartItem(_ context.Context, accountID uuid.UUID, itemID uuid.UUID) error {
	return f.removeItem(accountID, itemID)
}

type testServer struct {
	url       string
	accountID uuid.UUID
}

func (s testServer) do(t *testing.T, method string, path string, body string) (int, string) {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), method, s.url+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer test")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(respBody)
}

func startServer(t *testing.T, role string, s Services) testServer {
	accountID := uuid.New()

	s.Auth = authFunc(func(_ context.Context, r *http.Request) (identity.Identity, error) {
		if r.Header.Get("Authorization") == "" {
			return identity.Identity{}, apperrors.ErrInvalidToken
		}
		return identity.Identity{AccountID: accountID, Role: role}, nil
	})
	if s.DB == nil {
		s.DB = pingFunc(func(context.Context) error { return nil })
	}

	srv := httptest.NewServer(NewRouter(s, logger.NewNoOpLogger()))
	t.Cleanup(srv.Close)

	return testServer{url: srv.URL, accountID: accountID}
}

func TestRouter_Health(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		srv := startServer(t, identity.RoleUser, Services{})

		code, body := srv.do(t, http.MethodGet, "/health", "")

		require.Equal(t, http.StatusOK, code)
		require.JSONEq(t, `{"status": "ok"}`, body)
	})

	t.Run("db down", func(t *testing.T) {
		srv := startServer(t, identity.RoleUser, Services{
			DB: pingFunc(func(context.Context) error { return errors.New("connection refused") }),
		})

		code, _ := srv.do(t, http.MethodGet, "/health", "")

		require.Equal(t, http.StatusServiceUnavailable, code)
	})

	t.Run("metrics exposed", func(t *testing.T) {
		srv := startServer(t, identity.RoleUser, Services{})

		code, body := srv.do(t, http.MethodGet, "/metrics", "")

		require.Equal(t, http.StatusOK, code)
		require.Contains(t, body, "go_goroutines")
	})
}

func TestRouter_Rewards(t *testing.T) {
	var srv testServer
	srv = startServer(t, identity.RoleUser, Services{
		Rewards: rewardFunc(func(accountID uuid.UUID, rewardType string, reference string) (reward.Result, error) {
			require.Equal(t, srv.accountID, accountID, "caller account has to be used")
			switch reference {
			case "quiz-1":
				return reward.Result{Transaction: models.Transaction{Amount: 15}, NewBalance: 115}, nil
			default:
				return reward.Result{}, apperrors.ErrReferenceLimitReached
			}
		}),
	})

	t.Run("issued", func(t *testing.T) {
		code, body := srv.do(t, http.MethodPost, "/api/rewards", `{"rewardType": "QUIZ_COMPLETION", "reference": "quiz-1"}`)

		require.Equalf(t, http.StatusOK, code, "body: %s", body)
		require.Contains(t, body, `"success":true`)
		require.Contains(t, body, `"newBalance":115`)
	})

	t.Run("rejected", func(t *testing.T) {
		code, body := srv.do(t, http.MethodPost, "/api/rewards", `{"rewardType": "QUIZ_COMPLETION", "reference": "quiz-2"}`)

		require.Equal(t, http.StatusConflict, code)
		require.JSONEq(t, `{
			"success": false,
			"error": "service_error",
			"code": "REFERENCE_LIMIT_REACHED",
			"message": "reward already claimed for this reference"
		}`, body)
	})

	t.Run("invalid reference", func(t *testing.T) {
		code, body := srv.do(t, http.MethodPost, "/api/rewards", `{"rewardType": "VOTE", "reference": "has space"}`)

		require.Equal(t, http.StatusBadRequest, code)
		require.Contains(t, body, "validation_failed")
	})

	t.Run("unauthorized", func(t *testing.T) {
		req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, srv.url+"/api/rewards", strings.NewReader(`{}`))
		require.NoError(t, err)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close() //nolint:errcheck

		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestRouter_Referral(t *testing.T) {
	srv := startServer(t, identity.RoleUser, Services{
		Referral: referralFunc(func(_ uuid.UUID, code string) (referral.Result, error) {
			if code == "OWNCODE1" {
				return referral.Result{}, apperrors.ErrSelfReferral
			}
			return referral.Result{Bonus: 25}, nil
		}),
	})

	code, body := srv.do(t, http.MethodPost, "/api/referral", `{"code": "FRIEND12"}`)
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"success": true, "message": "Referral code applied, 25 coins credited", "bonus": 25}`, body)

	code, body = srv.do(t, http.MethodPost, "/api/referral", `{"code": "OWNCODE1"}`)
	require.Equal(t, http.StatusUnprocessableEntity, code)
	require.Contains(t, body, `"code":"SELF_REFERRAL"`)
}

func TestRouter_Checkout(t *testing.T) {
	orderID := uuid.New()
	fake := &fakeCheckout{}
	srv := startServer(t, identity.RoleUser, Services{Checkout: fake})

	t.Run("created", func(t *testing.T) {
		fake.checkout = func(uuid.UUID) (models.Order, error) {
			return models.Order{ID: orderID, Status: models.OrderCompleted, TotalCost: 55}, nil
		}

		code, body := srv.do(t, http.MethodPost, "/api/checkout", "")

		require.Equal(t, http.StatusCreated, code)
		require.JSONEq(t, fmt.Sprintf(`{"orderId": "%s", "status": "completed", "totalCost": 55}`, orderID), body)
	})

	t.Run("insufficient stock", func(t *testing.T) {
		fake.checkout = func(uuid.UUID) (models.Order, error) {
			return models.Order{}, fmt.Errorf("%w for item Mug", apperrors.ErrStockInsufficient)
		}

		code, body := srv.do(t, http.MethodPost, "/api/checkout", "")

		require.Equal(t, http.StatusConflict, code)
		require.Contains(t, body, `"code":"INSUFFICIENT_STOCK"`)
		require.Contains(t, body, "insufficient stock for item Mug")
	})

	t.Run("internal error", func(t *testing.T) {
		fake.checkout = func(uuid.UUID) (models.Order, error) {
			return models.Order{}, errors.New("conn closed")
		}

		code, body := srv.do(t, http.MethodPost, "/api/checkout", "")

		require.Equal(t, http.StatusInternalServerError, code)
		require.NotContains(t, body, "conn closed", "internal details are not exposed")
	})

	t.Run("order of other account", func(t *testing.T) {
		fake.getOrder = func(accountID uuid.UUID, id uuid.UUID) (models.Order, error) {
			require.Equal(t, srv.accountID, accountID)
			require.Equal(t, orderID, id)
			return models.Order{}, apperrors.ErrOrderNotFound
		}

		code, _ := srv.do(t, http.MethodGet, "/api/orders/"+orderID.String(), "")
		require.Equal(t, http.StatusNotFound, code)

		code, _ = srv.do(t, http.MethodGet, "/api/orders/not-a-uuid", "")
		require.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("list orders pagination", func(t *testing.T) {
		fake.listOrders = func(_ uuid.UUID, limit int, skip int) ([]models.Order, error) {
			require.Equal(t, 5, limit)
			require.Equal(t, 10, skip)
			return []models.Order{{ID: orderID, Status: models.OrderCancelled, Stage: models.StageCancelled}}, nil
		}

		code, body := srv.do(t, http.MethodGet, "/api/orders?limit=5&skip=10", "")
		require.Equal(t, http.StatusOK, code)
		require.Contains(t, body, `"stage":"cancelled"`)
		require.Contains(t, body, `"items":[]`)

		code, _ = srv.do(t, http.MethodGet, "/api/orders?limit=-1", "")
		require.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("cancel", func(t *testing.T) {
		fake.cancel = func(uuid.UUID, uuid.UUID) (models.Order, error) {
			return models.Order{}, apperrors.ErrOrderNotCancellable
		}

		code, _ := srv.do(t, http.MethodPost, "/api/orders/"+orderID.String()+"/cancel", "")
		require.Equal(t, http.StatusConflict, code)
	})
}

func TestRouter_Cart(t *testing.T) {
	itemID := uuid.New()
	fake := &fakeCheckout{
		getCart: func(uuid.UUID) (checkout.Cart, error) {
			return checkout.Cart{
				Lines:     []checkout.CartLine{{CatalogItemID: itemID, Name: "Mug", UnitCost: 20, Quantity: 2, Available: true}},
				TotalCost: 40,
			}, nil
		},
		setItem: func(_ uuid.UUID, id uuid.UUID, quantity int) error {
			if id != itemID {
				return apperrors.ErrInvalidItem
			}
			require.Equal(t, 3, quantity)
			return nil
		},
		removeItem: func(_ uuid.UUID, id uuid.UUID) error {
			require.Equal(t, itemID, id)
			return nil
		},
	}
	srv := startServer(t, identity.RoleUser, Services{Checkout: fake})

	code, body := srv.do(t, http.MethodGet, "/api/cart", "")
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, fmt.Sprintf(`{
		"items": [{"catalogItemId": "%s", "name": "Mug", "unitCost": 20, "quantity": 2, "available": true}],
		"totalCost": 40
	}`, itemID), body)

	code, _ = srv.do(t, http.MethodPut, "/api/cart/items", fmt.Sprintf(`{"catalogItemId": "%s", "quantity": 3}`, itemID))
	require.Equal(t, http.StatusNoContent, code)

	code, body = srv.do(t, http.MethodPut, "/api/cart/items", fmt.Sprintf(`{"catalogItemId": "%s", "quantity": 3}`, uuid.New()))
	require.Equal(t, http.StatusUnprocessableEntity, code)
	require.Contains(t, body, `"code":"INVALID_ITEM"`)

	code, body = srv.do(t, http.MethodPut, "/api/cart/items", fmt.Sprintf(`{"catalogItemId": "%s", "quantity": 101}`, itemID))
	require.Equal(t, http.StatusBadRequest, code)
	require.Contains(t, body, "Value is too large (maximum 100)")

	code, _ = srv.do(t, http.MethodDelete, "/api/cart/items/"+itemID.String(), "")
	require.Equal(t, http.StatusNoContent, code)
}

func TestRouter_Ledger(t *testing.T) {
	fake := &fakeLedger{
		getAccount: func(id uuid.UUID) (models.Account, error) {
			return models.Account{ID: id, Balance: 70, ReferralCode: "ABCD2345"}, nil
		},
		getHistory: func(_ uuid.UUID, limit int, skip int) ([]models.Transaction, error) {
			require.Equal(t, 0, limit, "not set limit is passed as zero")
			require.Equal(t, 0, skip)
			return []models.Transaction{{Type: models.TransactionPurchase, Amount: -30, Status: models.TransactionCompleted, PreviousBalance: 100, NewBalance: 70}}, nil
		},
	}
	srv := startServer(t, identity.RoleUser, Services{Ledger: fake})

	code, body := srv.do(t, http.MethodGet, "/api/balance", "")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, `"balance":70`)
	require.Contains(t, body, `"referralCode":"ABCD2345"`)

	code, body = srv.do(t, http.MethodGet, "/api/transactions", "")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, `"type":"purchase"`)
	require.Contains(t, body, `"amount":-30`)
}

func TestRouter_Adjustments(t *testing.T) {
	target := uuid.New()
	fake := &fakeLedger{
		record: func(p ledger.RecordParams) (models.Transaction, error) {
			require.Equal(t, target, p.AccountID)
			require.Equal(t, "chargeback", p.Metadata["reason"])
			return models.Transaction{AccountID: p.AccountID, Type: p.Type, Amount: p.Amount, Status: models.TransactionCompleted}, nil
		},
	}
	adjustment := func(typ string, amount int) string {
		return fmt.Sprintf(`{"accountId": "%s", "type": "%s", "amount": %d, "reason": "chargeback"}`, target, typ, amount)
	}

	t.Run("admin", func(t *testing.T) {
		srv := startServer(t, identity.RoleAdmin, Services{Ledger: fake})

		code, body := srv.do(t, http.MethodPost, "/api/admin/adjustments", adjustment("fraud_penalty", -50))
		require.Equalf(t, http.StatusCreated, code, "body: %s", body)
		require.Contains(t, body, `"amount":-50`)

		code, body = srv.do(t, http.MethodPost, "/api/admin/adjustments", adjustment("fraud_penalty", 50))
		require.Equal(t, http.StatusUnprocessableEntity, code)
		require.Contains(t, body, `"code":"INVALID_AMOUNT"`)

		code, _ = srv.do(t, http.MethodPost, "/api/admin/adjustments", adjustment("purchase", -50))
		require.Equal(t, http.StatusBadRequest, code, "only adjustment types are allowed")
	})

	t.Run("not admin", func(t *testing.T) {
		srv := startServer(t, identity.RoleUser, Services{Ledger: fake})

		code, body := srv.do(t, http.MethodPost, "/api/admin/adjustments", adjustment("refund", 10))
		require.Equal(t, http.StatusForbidden, code)
		require.Contains(t, body, `"code":"FORBIDDEN"`)
	})
}
