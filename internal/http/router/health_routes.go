package router

import (
	"github.com/go-chi/chi/v5"

	ctrl "github.com/satish603/MailPorter/internal/http/controllers/health"
	mw "github.com/satish603/MailPorter/internal/http/middlewares"
)

// HealthRouterDeps contiene las dependencias para el router de health.
type HealthRouterDeps struct {
	Controller *ctrl.HealthController
}

// RegisterHealthRoutes registra /healthz y /readyz. Públicos, sin API key.
func RegisterHealthRoutes(r chi.Router, deps HealthRouterDeps) {
	c := deps.Controller

	r.Group(func(r chi.Router) {
		r.Use(mw.WithNoStore())
		r.Get("/healthz", c.Healthz)
		r.Get("/readyz", c.Readyz)
	})
}
