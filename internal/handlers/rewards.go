package handlers

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/coinledger/internal/handlers/render"
	"github.com/nkiryanov/coinledger/internal/logger"
)

func handleIssueReward(rewardService rewardService, l logger.Logger) http.HandlerFunc {
	type request struct {
		RewardType string         `json:"rewardType" validate:"required,max=64"`
		Reference  string         `json:"reference" validate:"reference"`
		Metadata   map[string]any `json:"metadata"`
	}
	type response struct {
		Success       bool      `json:"success"`
		NewBalance    int64     `json:"newBalance"`
		Amount        int64     `json:"amount"`
		TransactionID uuid.UUID `json:"transactionId"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := caller(w, r)
		if !ok {
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		res, err := rewardService.Issue(r.Context(), accountID, req.RewardType, req.Reference, req.Metadata)
		if err != nil {
			renderError(w, l, "Failed to issue reward", err)
			return
		}

		render.JSON(w, response{
			Success:       true,
			NewBalance:    res.NewBalance,
			Amount:        res.Transaction.Amount,
			TransactionID: res.Transaction.ID,
		})
	}
}

func handleApplyReferral(referralService referralService, l logger.Logger) http.HandlerFunc {
	type request struct {
		Code string `json:"code" validate:"required,max=32"`
	}
	type response struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Bonus   int64  `json:"bonus"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := caller(w, r)
		if !ok {
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		res, err := referralService.Apply(r.Context(), accountID, req.Code)
		if err != nil {
			renderError(w, l, "Failed to apply referral code", err)
			return
		}

		render.JSON(w, response{
			Success: true,
			Message: fmt.Sprintf("Referral code applied, %d coins credited", res.Bonus),
			Bonus:   res.Bonus,
		})
	}
}
