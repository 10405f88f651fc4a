package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/coinledger/internal/handlers/render"
	"github.com/nkiryanov/coinledger/internal/logger"
)

type cartLineResponse struct {
	CatalogItemID uuid.UUID `json:"catalogItemId"`
	Name          string    `json:"name"`
	UnitCost      int64     `json:"unitCost"`
	Quantity      int       `json:"quantity"`
	Available     bool      `json:"available"`
}

type cartResponse struct {
	Items     []cartLineResponse `json:"items"`
	TotalCost int64              `json:"totalCost"`
}

func handleGetCart(checkoutService checkoutService, l logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := caller(w, r)
		if !ok {
			return
		}

		cart, err := checkoutService.GetCart(r.Context(), accountID)
		if err != nil {
			renderError(w, l, "Failed to get cart", err)
			return
		}

		res := cartResponse{Items: make([]cartLineResponse, 0, len(cart.Lines)), TotalCost: cart.TotalCost}
		for _, line := range cart.Lines {
			res.Items = append(res.Items, cartLineResponse(line))
		}
		render.JSON(w, res)
	}
}

// Quantity 0 removes the item from the cart
func handleSetCartItem(checkoutService checkoutService, l logger.Logger) http.HandlerFunc {
	type request struct {
		CatalogItemID uuid.UUID `json:"catalogItemId" validate:"required"`
		Quantity      int       `json:"quantity" validate:"min=0,max=100"`
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

		if err := checkoutService.SetCartItem(r.Context(), accountID, req.CatalogItemID, req.Quantity); err != nil {
			renderError(w, l, "Failed to set cart item", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleRemoveCartItem(checkoutService checkoutService, l logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := caller(w, r)
		if !ok {
			return
		}

		itemID, err := uuidParam(r, "itemID")
		if err != nil {
			render.ServiceError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := checkoutService.RemoveCartItem(r.Context(), accountID, itemID); err != nil {
			renderError(w, l, "Failed to remove cart item", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
