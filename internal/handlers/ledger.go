package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/coinledger/internal/handlers/render"
	"github.com/nkiryanov/coinledger/internal/logger"
	"github.com/nkiryanov/coinledger/internal/models"
	"github.com/nkiryanov/coinledger/internal/service/ledger"
)

type transactionResponse struct {
	ID              uuid.UUID      `json:"id"`
	Type            string         `json:"type"`
	Source          string         `json:"source,omitempty"`
	Amount          int64          `json:"amount"`
	Status          string         `json:"status"`
	Reference       string         `json:"reference,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	PreviousBalance int64          `json:"previousBalance"`
	NewBalance      int64          `json:"newBalance"`
	FailureReason   string         `json:"failureReason,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
}

func newTransactionResponse(t models.Transaction) transactionResponse {
	return transactionResponse{
		ID:              t.ID,
		Type:            string(t.Type),
		Source:          t.Source,
		Amount:          t.Amount,
		Status:          string(t.Status),
		Reference:       t.Reference,
		Metadata:        t.Metadata,
		PreviousBalance: t.PreviousBalance,
		NewBalance:      t.NewBalance,
		FailureReason:   t.FailureReason,
		CreatedAt:       t.CreatedAt,
	}
}

func handleBalance(ledgerService ledgerService, l logger.Logger) http.HandlerFunc {
	type response struct {
		Balance        int64  `json:"balance"`
		TotalRewarded  int64  `json:"totalRewarded"`
		RewardsClaimed int    `json:"rewardsClaimed"`
		ReferralCode   string `json:"referralCode"`
		ReferralCount  int    `json:"referralCount"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := caller(w, r)
		if !ok {
			return
		}

		account, err := ledgerService.GetAccount(r.Context(), accountID)
		if err != nil {
			renderError(w, l, "Failed to get balance", err)
			return
		}

		render.JSON(w, response{
			Balance:        account.Balance,
			TotalRewarded:  account.TotalRewarded,
			RewardsClaimed: account.RewardsClaimed,
			ReferralCode:   account.ReferralCode,
			ReferralCount:  account.ReferralCount,
		})
	}
}

func handleListTransactions(ledgerService ledgerService, l logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := caller(w, r)
		if !ok {
			return
		}

		limit, skip, err := pagination(r)
		if err != nil {
			render.ServiceError(w, err.Error(), http.StatusBadRequest)
			return
		}

		history, err := ledgerService.GetHistory(r.Context(), accountID, limit, skip)
		if err != nil {
			renderError(w, l, "Failed to get transactions", err)
			return
		}

		res := make([]transactionResponse, 0, len(history))
		for _, t := range history {
			res = append(res, newTransactionResponse(t))
		}
		render.JSON(w, res)
	}
}

// Manual balance change by an operator
func handleAdjustment(ledgerService ledgerService, l logger.Logger) http.HandlerFunc {
	type request struct {
		AccountID uuid.UUID `json:"accountId" validate:"required"`
		Type      string    `json:"type" validate:"required,oneof=admin_adjustment fraud_penalty refund"`
		Amount    int64     `json:"amount" validate:"required"`
		Reference string    `json:"reference" validate:"reference"`
		Reason    string    `json:"reason" validate:"required,max=512"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		operatorID, ok := caller(w, r)
		if !ok {
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		p := ledger.RecordParams{
			AccountID: req.AccountID,
			Type:      models.TransactionType(req.Type),
			Amount:    req.Amount,
			Reference: req.Reference,
			Metadata: map[string]any{
				"reason":   req.Reason,
				"operator": operatorID.String(),
			},
		}
		if err := ledger.ValidateAdjustment(p); err != nil {
			render.Error(w, err)
			return
		}

		t, err := ledgerService.Record(r.Context(), p)
		if err != nil {
			renderError(w, l, "Failed to record adjustment", err)
			return
		}

		l.Info("Balance adjusted", "account_id", p.AccountID, "type", p.Type, "amount", p.Amount, "operator", operatorID)
		render.JSONWithStatus(w, newTransactionResponse(t), http.StatusCreated)
	}
}
