// Package router arma el http.Handler del servicio sobre chi.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	emailctrl "github.com/satish603/MailPorter/internal/http/controllers/email"
	healthctrl "github.com/satish603/MailPorter/internal/http/controllers/health"
	httperrors "github.com/satish603/MailPorter/internal/http/errors"
	mw "github.com/satish603/MailPorter/internal/http/middlewares"
	"github.com/satish603/MailPorter/internal/rate"
)

// Deps contiene todo lo que necesita el router.
type Deps struct {
	Email  *emailctrl.Controllers
	Health *healthctrl.HealthController

	APIKey         string
	AllowedOrigins []string
	TrustedProxies *mw.TrustedProxies // nil ⇒ solo IP del peer

	// Opcionales
	RateLimiter    rate.Limiter
	OnRateLimited  func(r *http.Request)
	HTTPMetrics    *mw.HTTPMetrics
	MetricsHandler http.Handler
	MetricsPath    string
}

// New registra las rutas y el chain global.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()

	var onReject func(string)
	if deps.HTTPMetrics != nil {
		onReject = deps.HTTPMetrics.RecordCORSReject
	}

	r.Use(
		mw.WithRecover(),
		mw.WithClientIP(deps.TrustedProxies),
		mw.WithRequestID(),
		mw.WithLogging(),
		mw.WithSecurityHeaders(),
		mw.WithCORS(mw.CORSConfig{
			AllowedOrigins: deps.AllowedOrigins,
			OnReject:       onReject,
		}),
	)
	// dentro de chi para poder etiquetar por patrón de ruta
	if deps.HTTPMetrics != nil {
		r.Use(deps.HTTPMetrics.Middleware())
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	if deps.Health != nil {
		RegisterHealthRoutes(r, HealthRouterDeps{Controller: deps.Health})
	}
	if deps.Email != nil {
		RegisterEmailRoutes(r, EmailRouterDeps{
			Controllers:   deps.Email,
			APIKey:        deps.APIKey,
			RateLimiter:   deps.RateLimiter,
			OnRateLimited: deps.OnRateLimited,
		})
	}
	if deps.MetricsHandler != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, deps.MetricsHandler)
	}

	return r
}
