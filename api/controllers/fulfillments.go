package controllers

import (
	"net/http"
	"strings"

	"github.com/anishmaharjan/kinmel-backend/api/middleware"
	"github.com/anishmaharjan/kinmel-backend/api/responses"
	"github.com/anishmaharjan/kinmel-backend/api/validators"
	"github.com/anishmaharjan/kinmel-backend/internal/fulfillment"
	"github.com/anishmaharjan/kinmel-backend/internal/orders"
	"github.com/anishmaharjan/kinmel-backend/pkg/enums"
	pkgerrors "github.com/anishmaharjan/kinmel-backend/pkg/errors"
	"github.com/anishmaharjan/kinmel-backend/pkg/logger"
	"github.com/anishmaharjan/kinmel-backend/pkg/pagination"
)

type setFulfillmentStatusRequest struct {
	Status    string `json:"status" validate:"required"`
	SyncItems *bool  `json:"sync_items"`
}

// ListFulfillments pages the seller's fulfillments, optionally filtered by
// ?status=.
func ListFulfillments(svc fulfillment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sellerID := middleware.UserIDFromContext(r.Context())

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		var filters orders.FulfillmentFilters
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseFulfillmentStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, err.Error()))
				return
			}
			filters.Status = &status
		}

		list, err := svc.ListForSeller(r.Context(), sellerID, params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// FulfillmentDetail returns one fulfillment with its derived items.
func FulfillmentDetail(svc fulfillment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fulfillmentID, err := validators.ParseUUIDParam(r, "fulfillmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sellerID := middleware.UserIDFromContext(r.Context())

		view, err := svc.GetForSeller(r.Context(), fulfillmentID, sellerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// SetFulfillmentStatus transitions the seller's fulfillment. Item statuses
// sync by default; pass "sync_items": false to leave them alone.
func SetFulfillmentStatus(svc fulfillment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fulfillmentID, err := validators.ParseUUIDParam(r, "fulfillmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req setFulfillmentStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		syncItems := true
		if req.SyncItems != nil {
			syncItems = *req.SyncItems
		}

		updated, err := svc.SetStatus(r.Context(), fulfillment.SetStatusInput{
			SellerID:      middleware.UserIDFromContext(r.Context()),
			FulfillmentID: fulfillmentID,
			Status:        req.Status,
			SyncItems:     syncItems,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}
