package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter mounts the public health and metrics endpoints and, when auth
// is configured, the authenticated status and admin routes.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)

	r.Get("/health", g.handleHealth())
	r.Handle("/metrics", g.metrics.Handler())

	if !g.config.Auth.IsConfigured() {
		return r
	}
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(g.config.Auth, g.audit, g.limiter))
		r.Get("/status", g.handleStatus())
		r.Route("/api", g.mountAPI)
	})
	return r
}

func (g *Gateway) mountAPI(r chi.Router) {
	r.Get("/modules", g.handleGetModules())
	r.Get("/config", g.handleGetConfig())
	r.Post("/config/reload", g.handleReloadConfig())

	if g.engine == nil {
		return
	}
	r.Get("/targets/{target}/schedules", g.handleListSchedules())
	r.Get("/targets/{target}/artifacts", g.handleListArtifacts())
	r.Post("/schedules/{id}/run", g.handleRunNow())
}
