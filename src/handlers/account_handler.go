package handlers

import (
	"errors"
	"myndis-engine/src/engine"
	"myndis-engine/src/logger"
	"myndis-engine/src/models"
	"myndis-engine/src/store"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
)

func GetBudgetThresholdAlerts(eng *engine.Engine, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID := chi.URLParam(r, "account_id")
		alerts, err := eng.AlertsFor(r.Context(), accountID)
		if err != nil {
			log.Error("Failed to derive threshold alerts for account", "account_id", accountID, "error", err)
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, alerts)
	}
}

func DetectAnomalies(eng *engine.Engine, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID := chi.URLParam(r, "account_id")
		anomalies, err := eng.DetectAnomalies(r.Context(), accountID)
		if err != nil {
			log.Error("Failed to detect anomalies for account", "account_id", accountID, "error", err)
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, anomalies)
	}
}

func GetBudgetHealth(eng *engine.Engine, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID := chi.URLParam(r, "account_id")
		health, err := eng.Health(r.Context(), accountID)
		if err != nil {
			log.Error("Failed to compute budget health for account", "account_id", accountID, "error", err)
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, health)
	}
}

// GetAccountOverview derives alerts, anomalies and health concurrently.
func GetAccountOverview(eng *engine.Engine, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID := chi.URLParam(r, "account_id")
		overview := models.AccountOverview{AccountID: accountID}

		g, ctx := errgroup.WithContext(r.Context())
		g.Go(func() error {
			alerts, err := eng.AlertsFor(ctx, accountID)
			overview.Alerts = alerts
			return err
		})
		g.Go(func() error {
			anomalies, err := eng.DetectAnomalies(ctx, accountID)
			overview.Anomalies = anomalies
			return err
		})
		g.Go(func() error {
			health, err := eng.Health(ctx, accountID)
			if errors.Is(err, store.ErrPlanNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			overview.Health = &health
			return nil
		})
		if err := g.Wait(); err != nil {
			log.Error("Failed to build overview for account", "account_id", accountID, "error", err)
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, overview)
	}
}

func GetActivePlan(eng *engine.Engine, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID := chi.URLParam(r, "account_id")
		plan, err := eng.ActivePlan(r.Context(), accountID)
		if err != nil {
			log.Error("Failed to get active plan for account", "account_id", accountID, "error", err)
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, plan)
	}
}
