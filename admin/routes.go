package admin

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/lockstepdb/lockstep/telemetry"
)

var errInvalidLimit = errors.New("limit must be a positive integer")

// RegisterRoutes registers all admin API routes using chi router
func RegisterRoutes(mux *http.ServeMux, handlers *Handlers) {
	r := chi.NewRouter()

	r.Get("/stats", handlers.handleStats)
	r.Get("/locks", handlers.handleLocks)
	r.Get("/state", handlers.handleState)
	r.Get("/log", handlers.handleLog)
	r.Get("/config", handlers.handleConfig)

	r.Route("/transactions", func(r chi.Router) {
		r.Get("/recent", handlers.handleRecentTransactions)
	})

	// Mount chi router under /admin
	mux.Handle("/admin", http.RedirectHandler("/admin/", http.StatusMovedPermanently))
	mux.Handle("/admin/", http.StripPrefix("/admin", r))

	if metricsHandler := telemetry.GetMetricsHandler(); metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	log.Info().Msg("Admin endpoints enabled at /admin/*")
}
