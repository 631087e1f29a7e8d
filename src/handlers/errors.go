package handlers

import (
	"encoding/json"
	"errors"
	"myndis-engine/src/engine"
	"myndis-engine/src/metrics"
	"myndis-engine/src/store"
	"myndis-engine/src/thresholds"
	"net/http"
)

type apiError struct {
	Status int
	Code   string
}

func classify(err error) apiError {
	switch {
	case store.IsUnavailable(err):
		return apiError{http.StatusServiceUnavailable, "store_unavailable"}
	case errors.Is(err, engine.ErrInvalidAmount),
		errors.Is(err, engine.ErrInvalidAccount),
		errors.Is(err, engine.ErrInvalidCategory),
		errors.Is(err, store.ErrInvalidPlan):
		return apiError{http.StatusBadRequest, "invalid_request"}
	case errors.Is(err, thresholds.ErrEmptyConfiguration),
		errors.Is(err, thresholds.ErrValueOutOfRange),
		errors.Is(err, thresholds.ErrInvalidName),
		errors.Is(err, thresholds.ErrDuplicateName):
		return apiError{http.StatusBadRequest, "invalid_thresholds"}
	case errors.Is(err, store.ErrPlanNotFound):
		return apiError{http.StatusNotFound, "plan_not_found"}
	case errors.Is(err, store.ErrCategoryNotFound):
		return apiError{http.StatusNotFound, "category_not_found"}
	case errors.Is(err, metrics.ErrUnknownTransaction):
		return apiError{http.StatusNotFound, "unknown_transaction"}
	case errors.Is(err, thresholds.ErrVersionNotFound):
		return apiError{http.StatusNotFound, "version_not_found"}
	case errors.Is(err, metrics.ErrAccountMismatch):
		return apiError{http.StatusConflict, "account_mismatch"}
	case errors.Is(err, store.ErrActivePlanExists):
		return apiError{http.StatusConflict, "active_plan_exists"}
	}
	return apiError{http.StatusInternalServerError, "internal"}
}

// writeError maps err to its status. Internal errors are not echoed.
func writeError(w http.ResponseWriter, err error) {
	ae := classify(err)
	msg := err.Error()
	switch ae.Status {
	case http.StatusInternalServerError:
		msg = "internal error"
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "1")
		msg = "plan store unavailable, retry later"
	}
	writeJSON(w, ae.Status, map[string]string{"code": ae.Code, "error": msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"code": "invalid_request", "error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
