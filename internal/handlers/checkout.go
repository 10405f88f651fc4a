package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/coinledger/internal/handlers/render"
	"github.com/nkiryanov/coinledger/internal/logger"
	"github.com/nkiryanov/coinledger/internal/models"
)

type orderResponse struct {
	ID            uuid.UUID          `json:"id"`
	Status        string             `json:"status"`
	Stage         string             `json:"stage"`
	Items         []models.OrderItem `json:"items"`
	TotalCost     int64              `json:"totalCost"`
	FailureReason string             `json:"failureReason,omitempty"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

func newOrderResponse(o models.Order) orderResponse {
	items := o.Items
	if items == nil {
		items = []models.OrderItem{}
	}

	return orderResponse{
		ID:            o.ID,
		Status:        string(o.Status),
		Stage:         string(o.Stage),
		Items:         items,
		TotalCost:     o.TotalCost,
		FailureReason: o.FailureReason,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func handleCheckout(checkoutService checkoutService, l logger.Logger) http.HandlerFunc {
	type response struct {
		OrderID   uuid.UUID `json:"orderId"`
		Status    string    `json:"status"`
		TotalCost int64     `json:"totalCost"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := caller(w, r)
		if !ok {
			return
		}

		order, err := checkoutService.Checkout(r.Context(), accountID)
		if err != nil {
			renderError(w, l, "Checkout failed", err)
			return
		}

		render.JSONWithStatus(w, response{
			OrderID:   order.ID,
			Status:    string(order.Status),
			TotalCost: order.TotalCost,
		}, http.StatusCreated)
	}
}

func handleListOrders(checkoutService checkoutService, l logger.Logger) http.HandlerFunc {
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

		orders, err := checkoutService.ListOrders(r.Context(), accountID, limit, skip)
		if err != nil {
			renderError(w, l, "Failed to list orders", err)
			return
		}

		res := make([]orderResponse, 0, len(orders))
		for _, o := range orders {
			res = append(res, newOrderResponse(o))
		}
		render.JSON(w, res)
	}
}

func handleGetOrder(checkoutService checkoutService, l logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := caller(w, r)
		if !ok {
			return
		}

		orderID, err := uuidParam(r, "orderID")
		if err != nil {
			render.ServiceError(w, err.Error(), http.StatusBadRequest)
			return
		}

		order, err := checkoutService.GetOrder(r.Context(), accountID, orderID)
		if err != nil {
			renderError(w, l, "Failed to get order", err)
			return
		}
		render.JSON(w, newOrderResponse(order))
	}
}

func handleCancelOrder(checkoutService checkoutService, l logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := caller(w, r)
		if !ok {
			return
		}

		orderID, err := uuidParam(r, "orderID")
		if err != nil {
			render.ServiceError(w, err.Error(), http.StatusBadRequest)
			return
		}

		order, err := checkoutService.Cancel(r.Context(), accountID, orderID)
		if err != nil {
			renderError(w, l, "Failed to cancel order", err)
			return
		}
		render.JSON(w, newOrderResponse(order))
	}
}
