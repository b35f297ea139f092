package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the router. Collection endpoints (/v1/events and
// the pixel) sit outside /v1/reports so storefront origins can reach them
// cross-site; reporting endpoints share the stricter CORS policy.
func SetupRoutes(h *Handlers, hc *HealthChecker) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		// Collection endpoints are hit from arbitrary storefront domains.
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", hc.HandleHealth)
	r.Get("/livez", hc.HandleLiveness)

	// Pixel collection. No auth, must never fail visibly.
	r.Get("/px/{data}", h.HandlePixel)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/events", h.HandleIngestEvent)

		r.Route("/attribution", func(r chi.Router) {
			r.Post("/match", h.HandleMatch)
			r.Post("/backfill", h.HandleBackfill)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/entities", h.HandleEntityMetrics)
			r.Get("/coverage", h.HandleCoverage)
			r.Get("/blended", h.HandleBlended)
		})

		r.Route("/snapshots", func(r chi.Router) {
			r.Post("/", h.HandleCreateSnapshot)
			r.Get("/{id}", h.HandleGetSnapshot)
		})
	})

	return r
}
