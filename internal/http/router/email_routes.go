package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	ctrl "github.com/satish603/MailPorter/internal/http/controllers/email"
	mw "github.com/satish603/MailPorter/internal/http/middlewares"
	"github.com/satish603/MailPorter/internal/rate"
)

// SendEmailPath es la ruta pública de envío.
const SendEmailPath = "/api/email/send-email/{provider}"

// EmailRouterDeps contiene las dependencias para el router email.
type EmailRouterDeps struct {
	Controllers   *ctrl.Controllers
	APIKey        string
	RateLimiter   rate.Limiter // Opcional: rate limit por IP + path
	OnRateLimited func(r *http.Request)
}

// RegisterEmailRoutes registra POST /api/email/send-email/{provider}.
// La API key se valida antes del rate limit y del body: un 403 nunca abre
// sesión SMTP.
func RegisterEmailRoutes(r chi.Router, deps EmailRouterDeps) {
	c := deps.Controllers

	r.Group(func(r chi.Router) {
		r.Use(
			mw.WithNoStore(),
			mw.WithAPIKey(deps.APIKey),
		)
		if deps.RateLimiter != nil {
			r.Use(mw.WithRateLimit(mw.RateLimitConfig{
				Limiter:   deps.RateLimiter,
				KeyFunc:   mw.IPPathRateKey,
				OnLimited: deps.OnRateLimited,
			}))
		}

		r.Post(SendEmailPath, c.Send.SendEmail)
	})
}
