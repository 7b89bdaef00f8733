package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/anishmaharjan/kinmel-backend/api/middleware"
	"github.com/anishmaharjan/kinmel-backend/api/responses"
	"github.com/anishmaharjan/kinmel-backend/api/validators"
	"github.com/anishmaharjan/kinmel-backend/internal/checkout"
	"github.com/anishmaharjan/kinmel-backend/pkg/db/models"
	"github.com/anishmaharjan/kinmel-backend/pkg/logger"
	"github.com/anishmaharjan/kinmel-backend/pkg/types"
)

type placeOrderRequest struct {
	AddressID uuid.UUID `json:"address_id" validate:"required"`
}

type buyNowRequest struct {
	AddressID uuid.UUID `json:"address_id" validate:"required"`
	VariantID uuid.UUID `json:"variant_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0"`
}

type checkoutResponse struct {
	Order         *models.Order `json:"order"`
	ItemsSubtotal string        `json:"items_subtotal"`
	GrandTotal    string        `json:"grand_total"`
	SellerCount   int           `json:"seller_count"`
}

func newCheckoutResponse(result *checkout.Result) checkoutResponse {
	grand := decimal.Zero
	if result.Order != nil {
		grand = result.Order.TotalPrice
	}
	return checkoutResponse{
		Order:         result.Order,
		ItemsSubtotal: types.MoneyString(result.ItemsSubtotal),
		GrandTotal:    types.MoneyString(grand),
		SellerCount:   result.SellerCount,
	}
}

// PlaceOrder converts the buyer's active cart into an order.
func PlaceOrder(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req placeOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.PlaceOrder(r.Context(), checkout.PlaceOrderInput{
			BuyerID:   middleware.UserIDFromContext(r.Context()),
			AddressID: req.AddressID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newCheckoutResponse(result))
	}
}

// BuyNow places a single-variant order without touching the cart.
func BuyNow(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req buyNowRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.BuyNow(r.Context(), checkout.BuyNowInput{
			BuyerID:   middleware.UserIDFromContext(r.Context()),
			AddressID: req.AddressID,
			VariantID: req.VariantID,
			Quantity:  req.Quantity,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newCheckoutResponse(result))
	}
}
