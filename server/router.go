package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

func router(logger zerolog.Logger, api *API) *chi.Mux {
	c := chi.NewMux()

	c.Use(
		middleware.RequestID,
		requestLogger(logger),
		middleware.RequestSize(5*1024),
		middleware.Recoverer,
	)

	if api.limiter != nil {
		c.Use(api.limiter.Middleware)
	}

	c.Route("/internal", func(r chi.Router) {
		r.Get("/health", api.handleGetHealth())
		r.Get("/ready", api.handleGetHealth())
	})

	c.Route("/session", func(r chi.Router) {
		r.Get("/status", api.handleGetStatus())
		r.Get("/stats", api.handleGetStats())
		r.Get("/alerts", api.handleGetAlerts())
		r.Get("/alerts/feed", api.handleAlertFeed())
	})

	return c
}
