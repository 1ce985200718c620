package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/quarrylabs/quarry/internal/api"
	"github.com/quarrylabs/quarry/internal/api/handlers"
	"github.com/quarrylabs/quarry/internal/api/middleware"
)

// ReadinessCheck reports whether a dependency is ready to serve.
type ReadinessCheck func(ctx context.Context) error

type RouterConfig struct {
	DocumentsHandler *handlers.DocumentsHandler
	EventsHandler    *handlers.EventsHandler
	QueryHandler     *handlers.QueryHandler
	PromptsHandler   *handlers.PromptsHandler
	Readiness        ReadinessCheck
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Readiness != nil {
			if err := cfg.Readiness(r.Context()); err != nil {
				api.Error(w, http.StatusServiceUnavailable, err.Error())
				return
			}
		}
		api.Success(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Route("/documents", func(r chi.Router) {
		r.Post("/", cfg.DocumentsHandler.Upload)
		r.Post("/process", cfg.DocumentsHandler.Process)
	})

	r.Post("/events", cfg.EventsHandler.Receive)
	r.Post("/query", cfg.QueryHandler.Ask)
	r.Post("/prompts/reload", cfg.PromptsHandler.Reload)

	return r
}
