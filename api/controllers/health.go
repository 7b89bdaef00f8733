package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/anishmaharjan/kinmel-backend/api/responses"
	"github.com/anishmaharjan/kinmel-backend/pkg/config"
	"github.com/anishmaharjan/kinmel-backend/pkg/db"
	pkgerrors "github.com/anishmaharjan/kinmel-backend/pkg/errors"
	"github.com/anishmaharjan/kinmel-backend/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Kinmel-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady checks the backing stores. Nil dependencies are skipped so
// partial deployments (no redis) still report ready.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Kinmel-Env", cfg.App.Env)
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := map[string]string{}
		if dbP != nil {
			if err := dbP.Ping(ctx); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database unreachable"))
				return
			}
			checks["db"] = "ok"
		}
		if redisP != nil {
			if err := redisP.Ping(ctx); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis unreachable"))
				return
			}
			checks["redis"] = "ok"
		}
		checks["status"] = "ready"
		responses.WriteSuccess(w, checks)
	}
}
