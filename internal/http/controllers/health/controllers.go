// Package health contiene el controller de health checks.
package health

import (
	"net/http"
	"time"

	dto "github.com/satish603/MailPorter/internal/http/dto/health"
	"github.com/satish603/MailPorter/internal/http/helpers"
	"github.com/satish603/MailPorter/internal/observability/logger"
)

// Inventory expone lo que cargó el proceso al arrancar.
type Inventory interface {
	Providers() int
	Identities() int
	Templates() int
}

// Deps contiene las dependencias del controller.
type Deps struct {
	Inventory Inventory
	Version   string
	// RedisCheck es opcional; nil si el rate limit es en memoria.
	RedisCheck func(r *http.Request) error
}

// HealthController maneja /healthz y /readyz.
type HealthController struct {
	deps Deps
	now  func() time.Time
}

// NewHealthController crea el controller de health.
func NewHealthController(d Deps) *HealthController {
	return &HealthController{deps: d, now: time.Now}
}

// Healthz: el proceso responde.
func (c *HealthController) Healthz(w http.ResponseWriter, _ *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz maneja GET /readyz
func (c *HealthController) Readyz(w http.ResponseWriter, r *http.Request) {
	log := logger.From(r.Context()).With(logger.Layer("controller"), logger.Op("HealthController.Readyz"))

	resp := dto.HealthResponse{
		Status:     "ready",
		Components: make(map[string]dto.HealthStatus),
		Version:    c.deps.Version,
		Timestamp:  c.now().UTC(),
	}

	if inv := c.deps.Inventory; inv != nil {
		resp.Providers = inv.Providers()
		resp.Identities = inv.Identities()
		resp.Templates = inv.Templates()
	}
	if resp.Identities == 0 {
		resp.Status = "unavailable"
		resp.Components["registry"] = dto.HealthStatus{Status: "error", Message: "no smtp identities configured"}
	} else {
		resp.Components["registry"] = dto.HealthStatus{Status: "ok"}
	}

	if c.deps.RedisCheck == nil {
		resp.Components["redis"] = dto.HealthStatus{Status: "disabled"}
	} else if err := c.deps.RedisCheck(r); err != nil {
		// sin Redis el limiter deja pasar; el servicio sigue enviando
		resp.Components["redis"] = dto.HealthStatus{Status: "error", Message: err.Error()}
		if resp.Status == "ready" {
			resp.Status = "degraded"
		}
	} else {
		resp.Components["redis"] = dto.HealthStatus{Status: "ok"}
	}

	status := http.StatusOK
	if resp.Status == "unavailable" {
		status = http.StatusServiceUnavailable
	}

	log.Debug("health check completed",
		logger.String("status", resp.Status),
		logger.Int("components_count", len(resp.Components)),
	)
	helpers.WriteJSON(w, status, resp)
}
