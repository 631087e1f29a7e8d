package api

import (
	"myndis-engine/src/config"
	"myndis-engine/src/engine"
	"myndis-engine/src/handlers"
	"myndis-engine/src/logger"
	"myndis-engine/src/middleware"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func NewRouter(eng *engine.Engine, log *logger.Logger, cfg config.Config) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	auth := middleware.JWTAuthMiddleware(cfg.JWTSecret)

	r.Route("/api", func(r chi.Router) {
		// Protected routes
		r.With(auth, middleware.ReadOnlyModeMiddleware(cfg.ReadOnly)).Group(func(r chi.Router) {
			r.Get("/metrics", handlers.GetAIAgentMetrics(eng))
			r.Get("/thresholds", handlers.GetThresholdConfiguration(eng, log))

			r.With(middleware.AccountAccessMiddleware).Route("/accounts/{account_id}", func(r chi.Router) {
				// Validation
				r.Post("/validate", handlers.ValidateBudgetTransaction(eng, log))
				r.Post("/spend", handlers.RecordBudgetSpend(eng, log))
				r.Post("/feedback", handlers.RecordValidationFeedback(eng, log))

				// Derived views
				r.Get("/alerts", handlers.GetBudgetThresholdAlerts(eng, log))
				r.Get("/anomalies", handlers.DetectAnomalies(eng, log))
				r.Get("/budget-health", handlers.GetBudgetHealth(eng, log))
				r.Get("/overview", handlers.GetAccountOverview(eng, log))
				r.Get("/plan", handlers.GetActivePlan(eng, log))
			})
		})

		// Admin Routes
		r.With(auth, middleware.AdminMiddleware).Group(func(r chi.Router) {
			r.Put("/admin/thresholds", handlers.UpdateAIValidationThresholds(eng, log))
			r.Put("/admin/plans", handlers.SavePlan(eng, log))
			r.Post("/admin/accounts/{account_id}/history", handlers.ImportHistory(eng, log))

			// Cache
			r.Post("/admin/cache/clear/{cache_name}", handlers.ClearCache(log))
		})
	})

	return r
}
