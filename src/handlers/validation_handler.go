package handlers

import (
	"encoding/json"
	"myndis-engine/src/engine"
	"myndis-engine/src/logger"
	"myndis-engine/src/models"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

type spendRequest struct {
	Category    string    `json:"category"`
	Amount      int64     `json:"amount"`
	SubmittedAt time.Time `json:"submitted_at"`
}

func decodeSpend(r *http.Request) (models.TransactionRequest, error) {
	var req spendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return models.TransactionRequest{}, err
	}
	return models.TransactionRequest{
		AccountID:   chi.URLParam(r, "account_id"),
		Category:    req.Category,
		Amount:      req.Amount,
		SubmittedAt: req.SubmittedAt,
	}, nil
}

func ValidateBudgetTransaction(eng *engine.Engine, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeSpend(r)
		if err != nil {
			log.Error("Failed to decode validation request body", "account_id", chi.URLParam(r, "account_id"), "error", err)
			badRequest(w, "invalid request")
			return
		}
		result, err := eng.Validate(r.Context(), req)
		if err != nil {
			log.Error("Failed to validate transaction for account", "account_id", req.AccountID, "category", req.Category, "error", err)
			writeError(w, err)
			return
		}
		log.Debug("Validated transaction", "account_id", req.AccountID, "transaction_id", result.TransactionID, "valid", result.Valid)
		writeJSON(w, http.StatusOK, result)
	}
}

func RecordBudgetSpend(eng *engine.Engine, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeSpend(r)
		if err != nil {
			log.Error("Failed to decode spend request body", "account_id", chi.URLParam(r, "account_id"), "error", err)
			badRequest(w, "invalid request")
			return
		}
		out, err := eng.RecordSpend(r.Context(), req)
		if err != nil {
			log.Error("Failed to record spend for account", "account_id", req.AccountID, "category", req.Category, "error", err)
			writeError(w, err)
			return
		}
		if out.Applied {
			log.Info("Recorded spend", "account_id", req.AccountID, "category", req.Category,
				"amount", req.Amount, "spent", out.Spent, "transaction_id", out.Validation.TransactionID)
		}
		writeJSON(w, http.StatusOK, out)
	}
}
