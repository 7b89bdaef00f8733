package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/anishmaharjan/kinmel-backend/api/middleware"
	"github.com/anishmaharjan/kinmel-backend/api/responses"
	"github.com/anishmaharjan/kinmel-backend/internal/address"
	pkgerrors "github.com/anishmaharjan/kinmel-backend/pkg/errors"
	"github.com/anishmaharjan/kinmel-backend/pkg/logger"
)

// ListAddresses returns the buyer's saved shipping addresses.
func ListAddresses(repo address.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID := middleware.UserIDFromContext(r.Context())
		if buyerID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing"))
			return
		}
		addrs, err := repo.ListByBuyer(r.Context(), buyerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, addrs)
	}
}
