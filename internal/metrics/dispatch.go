package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Dispatch agrupa las métricas del relay SMTP. Vive en su propio paquete para
// que email y http no se importen entre sí.
type Dispatch struct {
	total      *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	identities prometheus.Gauge
	rateLimits *prometheus.CounterVec
}

// NewDispatch crea y registra las métricas en reg (o el default si es nil).
// Registrar dos veces sobre el mismo registry reutiliza los collectors.
func NewDispatch(reg prometheus.Registerer) (*Dispatch, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	d := &Dispatch{
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailporter_dispatch_total",
			Help: "Envíos por provider, brand y resultado",
		}, []string{"provider", "brand", "outcome"}), // outcome: sent|failed

		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mailporter_dispatch_duration_seconds",
			Help:    "Duración de resolve + render + sesión SMTP",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"provider", "outcome"}),

		identities: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailporter_identities_configured",
			Help: "Identidades SMTP cargadas en el registry",
		}),

		rateLimits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailporter_rate_limited_total",
			Help: "Requests rechazados por rate limit",
		}, []string{"route"}),
	}

	var err error
	if d.total, err = Register(reg, d.total); err != nil {
		return nil, err
	}
	if d.duration, err = Register(reg, d.duration); err != nil {
		return nil, err
	}
	if d.identities, err = Register(reg, d.identities); err != nil {
		return nil, err
	}
	if d.rateLimits, err = Register(reg, d.rateLimits); err != nil {
		return nil, err
	}
	return d, nil
}

// RecordDispatch implementa email.Recorder.
func (d *Dispatch) RecordDispatch(provider, brand, outcome string, elapsed time.Duration) {
	d.total.WithLabelValues(provider, brand, outcome).Inc()
	d.duration.WithLabelValues(provider, outcome).Observe(elapsed.Seconds())
}

// SetIdentities publica cuántas identidades quedaron configuradas.
func (d *Dispatch) SetIdentities(n int) {
	d.identities.Set(float64(n))
}

// RecordRateLimited cuenta un 429.
func (d *Dispatch) RecordRateLimited(route string) {
	d.rateLimits.WithLabelValues(route).Inc()
}

// Register registra c; si ya existía devuelve el collector existente.
func Register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}
