package handlers

import (
	"encoding/json"
	"myndis-engine/src/engine"
	"myndis-engine/src/logger"
	"myndis-engine/src/models"
	"net/http"
	"strconv"
)

// GetThresholdConfiguration returns the active configuration, or the one
// named by the version query parameter.
func GetThresholdConfiguration(eng *engine.Engine, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var version int64
		if v := r.URL.Query().Get("version"); v != "" {
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil || parsed < 1 {
				log.Error("Invalid threshold version param", "version", v)
				badRequest(w, "invalid version")
				return
			}
			version = parsed
		}
		cfg, err := eng.ThresholdConfiguration(r.Context(), version)
		if err != nil {
			log.Error("Failed to get threshold configuration", "version", version, "error", err)
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	}
}

// UpdateAIValidationThresholds replaces the whole configuration with the
// ordered (name, value) pairs in the body.
func UpdateAIValidationThresholds(eng *engine.Engine, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var pairs []models.ThresholdPair
		if err := json.NewDecoder(r.Body).Decode(&pairs); err != nil {
			log.Error("Failed to decode threshold update request body", "error", err)
			badRequest(w, "invalid request")
			return
		}
		v, err := eng.UpdateThresholds(r.Context(), pairs)
		if err != nil {
			log.Error("Failed to update thresholds", "error", err)
			writeError(w, err)
			return
		}
		log.Info("Updated thresholds", "version", v.Version)
		writeJSON(w, http.StatusOK, v)
	}
}
