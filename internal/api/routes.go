package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Route("/evaluations", func(r chi.Router) {
			r.Get("/status", h.GetStatus)
			r.Get("/result/{fileId}", h.GetResult)
		})

		r.Route("/counselors", func(r chi.Router) {
			r.Get("/", h.ListCounselors)
			r.Post("/", h.CreateCounselor)
			r.Get("/{counselorId}", h.GetCounselor)
			r.Put("/{counselorId}", h.UpdateCounselor)
			r.Get("/{counselorId}/evaluations", h.ListCounselorEvaluations)
		})
	})

	return r
}
