package handlers

import (
	"encoding/json"
	"myndis-engine/src/db"
	"myndis-engine/src/engine"
	"myndis-engine/src/logger"
	"myndis-engine/src/models"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SavePlan creates a plan or applies an administrative correction.
func SavePlan(eng *engine.Engine, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var plan models.Plan
		if err := json.NewDecoder(r.Body).Decode(&plan); err != nil {
			log.Error("Failed to decode plan request body", "error", err)
			badRequest(w, "invalid request")
			return
		}
		if err := eng.SavePlan(r.Context(), &plan); err != nil {
			log.Error("Failed to save plan for account", "account_id", plan.AccountID, "plan_id", plan.ID, "error", err)
			writeError(w, err)
			return
		}
		log.Info("Saved plan", "account_id", plan.AccountID, "plan_id", plan.ID, "status", plan.Status)
		writeJSON(w, http.StatusOK, plan)
	}
}

func ImportHistory(eng *engine.Engine, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID := chi.URLParam(r, "account_id")
		var txns []models.Transaction
		if err := json.NewDecoder(r.Body).Decode(&txns); err != nil {
			log.Error("Failed to decode history import body", "account_id", accountID, "error", err)
			badRequest(w, "invalid request")
			return
		}
		if err := eng.ImportHistory(r.Context(), accountID, txns); err != nil {
			log.Error("Failed to import history for account", "account_id", accountID, "error", err)
			writeError(w, err)
			return
		}
		log.Info("Imported transaction history", "account_id", accountID, "count", len(txns))
		writeJSON(w, http.StatusCreated, map[string]int{"imported": len(txns)})
	}
}

func ClearCache(log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cacheName := chi.URLParam(r, "cache_name")
		switch cacheName {
		case "history", "all":
			n := db.ClearAllHistoryCaches()
			log.Info("Cleared cache", "cache", cacheName, "keys", n)
			writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
		default:
			log.Error("Unknown cache name", "cache", cacheName)
			badRequest(w, "unknown cache")
		}
	}
}
