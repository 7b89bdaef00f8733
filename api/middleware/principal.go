package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/anishmaharjan/kinmel-backend/pkg/logger"
)

const (
	userIDHeader = "X-User-Id"
	roleHeader   = "X-User-Role"
)

// Principal lifts the identity the edge gateway verified into the request
// context. Authentication itself happens upstream; a request without the
// headers simply carries no principal and fails the ownership checks in the
// services.
func Principal(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if raw := strings.TrimSpace(r.Header.Get(userIDHeader)); raw != "" {
				if userID, err := uuid.Parse(raw); err == nil {
					ctx = WithUserID(ctx, userID)
					if logg != nil {
						ctx = logg.WithField(ctx, "user_id", userID.String())
					}
				}
			}
			if role := strings.ToLower(strings.TrimSpace(r.Header.Get(roleHeader))); role != "" {
				ctx = WithRole(ctx, role)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
