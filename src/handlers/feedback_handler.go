package handlers

import (
	"encoding/json"
	"myndis-engine/src/engine"
	"myndis-engine/src/logger"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func RecordValidationFeedback(eng *engine.Engine, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID := chi.URLParam(r, "account_id")
		var req struct {
			TransactionID string `json:"transaction_id"`
			Approved      *bool  `json:"approved"`
			Reason        string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Error("Failed to decode feedback request body", "account_id", accountID, "error", err)
			badRequest(w, "invalid request")
			return
		}
		if req.TransactionID == "" || req.Approved == nil {
			badRequest(w, "transaction_id and approved are required")
			return
		}
		fb, err := eng.RecordFeedback(r.Context(), accountID, req.TransactionID, *req.Approved, req.Reason)
		if err != nil {
			log.Error("Failed to record feedback for account", "account_id", accountID, "transaction_id", req.TransactionID, "error", err)
			writeError(w, err)
			return
		}
		log.Info("Recorded validation feedback", "account_id", accountID, "transaction_id", fb.TransactionID,
			"verdict", fb.Verdict, "approved", fb.Approved)
		writeJSON(w, http.StatusCreated, fb)
	}
}

func GetAIAgentMetrics(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, eng.Metrics())
	}
}
