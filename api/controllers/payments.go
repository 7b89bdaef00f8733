package controllers

import (
	"net/http"
	"strings"

	"github.com/anishmaharjan/kinmel-backend/api/middleware"
	"github.com/anishmaharjan/kinmel-backend/api/responses"
	"github.com/anishmaharjan/kinmel-backend/api/validators"
	"github.com/anishmaharjan/kinmel-backend/internal/payments"
	pkgerrors "github.com/anishmaharjan/kinmel-backend/pkg/errors"
	"github.com/anishmaharjan/kinmel-backend/pkg/logger"
)

// InitiateEsewaPayment returns the signed form the buyer's browser posts to
// the gateway. Safe to call repeatedly; the open payment row is reused.
func InitiateEsewaPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		request, err := svc.InitiatePayment(r.Context(), orderID, middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"form_url":         request.FormURL,
			"fields":           request.Fields,
			"transaction_uuid": request.Payment.TransactionUUID,
		})
	}
}

// EsewaCallback handles the gateway redirect carrying ?data=<base64 JSON>.
// The gateway calls this unauthenticated, so it sits outside the principal
// middleware; the signature is the authentication.
func EsewaCallback(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		encoded := strings.TrimSpace(r.URL.Query().Get("data"))
		if encoded == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "data parameter required"))
			return
		}
		summary, err := svc.VerifyAndApplyCallback(r.Context(), encoded)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// PollEsewaPayment re-checks the gateway for an order whose callback never
// arrived.
func PollEsewaPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.Poll(r.Context(), orderID, middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}
