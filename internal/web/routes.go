package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aurum-app/facerank/internal/scoring"
	"github.com/aurum-app/facerank/internal/web/handlers"
)

func (s *Server) setupRoutes(svc *scoring.Service) {
	h := handlers.NewScoringHandler(svc)

	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Post("/score", h.Score)
		r.Get("/score/{userId}", h.Standing)
		r.Get("/leaderboard", h.Leaderboard)
		r.Get("/similar/{userId}", h.Similar)
		r.Get("/distribution", h.Distribution)
	})
}
