// Package app arma el servicio a partir de config.Config: registry,
// templates, dispatcher, limiter, métricas y el http.Handler final.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	rdb "github.com/redis/go-redis/v9"

	"github.com/satish603/MailPorter/internal/config"
	"github.com/satish603/MailPorter/internal/email"
	emailctrl "github.com/satish603/MailPorter/internal/http/controllers/email"
	healthctrl "github.com/satish603/MailPorter/internal/http/controllers/health"
	mw "github.com/satish603/MailPorter/internal/http/middlewares"
	"github.com/satish603/MailPorter/internal/http/router"
	"github.com/satish603/MailPorter/internal/metrics"
	"github.com/satish603/MailPorter/internal/observability/logger"
	"github.com/satish603/MailPorter/internal/rate"
)

// Version se sobreescribe con -ldflags "-X .../internal/app.Version=...".
var Version = "dev"

// App es el servicio cableado.
type App struct {
	Config     *config.Config
	Registry   *email.Registry
	Templates  *email.Templates
	Dispatcher *email.Dispatcher
	Limiter    rate.Limiter
	Handler    http.Handler

	redis *rdb.Client
}

type options struct {
	dial     email.DialFunc
	registry *prometheus.Registry
}

// Option ajusta New.
type Option func(*options)

// WithDialer reemplaza el dialer SMTP.
func WithDialer(d email.DialFunc) Option {
	return func(o *options) { o.dial = d }
}

// WithRegistry usa reg para las métricas en lugar de uno nuevo.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// New construye la App. Falla si algún template referenciado no existe.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	log := logger.Named("app")

	registry, err := email.NewRegistry(IdentityTable(cfg))
	if err != nil {
		return nil, err
	}
	templates, err := email.LoadTemplates(cfg.Templates.Dir)
	if err != nil {
		return nil, err
	}
	a := &App{
		Config:    cfg,
		Registry:  registry,
		Templates: templates,
	}

	// métricas
	var (
		httpMetrics    *mw.HTTPMetrics
		dispatchM      *metrics.Dispatch
		metricsHandler http.Handler
		recorder       email.Recorder
	)
	if cfg.Metrics.Enabled {
		reg := o.registry
		if reg == nil {
			reg = prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
		}
		if httpMetrics, err = mw.NewHTTPMetrics(reg); err != nil {
			return nil, fmt.Errorf("app: http metrics: %w", err)
		}
		if dispatchM, err = metrics.NewDispatch(reg); err != nil {
			return nil, fmt.Errorf("app: dispatch metrics: %w", err)
		}
		dispatchM.SetIdentities(len(registry.Identities()))
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		recorder = dispatchM
	}

	if a.Dispatcher, err = NewDispatcher(cfg, registry, templates, o.dial, recorder); err != nil {
		return nil, err
	}

	// rate limit
	var onLimited func(*http.Request)
	if cfg.Rate.Enabled {
		window := config.Duration(cfg.Rate.Window)
		if addr := strings.TrimSpace(cfg.Rate.Redis.Addr); addr != "" {
			a.redis = rdb.NewClient(&rdb.Options{
				Addr:     addr,
				Password: cfg.Rate.Redis.Password,
				DB:       cfg.Rate.Redis.DB,
			})
			// Redis caído no impide arrancar: el limiter deja pasar
			pctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := a.redis.Ping(pctx).Err(); err != nil {
				log.Warn("redis ping failed", logger.String("addr", addr), logger.Err(err))
			}
			cancel()
			a.Limiter = rate.NewRedisLimiter(a.redis, cfg.Rate.Redis.Prefix, cfg.Rate.Limit, window)
			log.Info("rate limit on redis", logger.String("addr", addr), logger.Int("limit", cfg.Rate.Limit))
		} else {
			a.Limiter = rate.NewMemoryLimiter(cfg.Rate.Limit, window)
			log.Info("rate limit in memory", logger.Int("limit", cfg.Rate.Limit))
		}
		if dispatchM != nil {
			onLimited = func(*http.Request) { dispatchM.RecordRateLimited(router.SendEmailPath) }
		}
	}

	trusted, err := mw.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("app: server.trusted_proxies: %w", err)
	}

	health := healthctrl.Deps{
		Inventory: inventory{a},
		Version:   Version,
	}
	if a.redis != nil {
		client := a.redis
		health.RedisCheck = func(r *http.Request) error { return client.Ping(r.Context()).Err() }
	}

	a.Handler = router.New(router.Deps{
		Email:          emailctrl.NewControllers(a.Dispatcher),
		Health:         healthctrl.NewHealthController(health),
		APIKey:         cfg.APIKey,
		AllowedOrigins: cfg.Server.CORSAllowedOrigins,
		TrustedProxies: trusted,
		RateLimiter:    a.Limiter,
		OnRateLimited:  onLimited,
		HTTPMetrics:    httpMetrics,
		MetricsHandler: metricsHandler,
		MetricsPath:    cfg.Metrics.Path,
	})

	log.Info("app wired",
		logger.Int("providers", len(registry.Providers())),
		logger.Int("identities", len(registry.Identities())),
		logger.Int("templates", len(templates.Names())),
		logger.Bool("metrics", cfg.Metrics.Enabled),
		logger.Bool("rate_limit", cfg.Rate.Enabled),
	)
	return a, nil
}

// Close libera conexiones externas (Redis).
func (a *App) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}

// NewDispatcher arma el dispatcher con las reglas de cfg. dial y rec son
// opcionales.
func NewDispatcher(cfg *config.Config, registry *email.Registry, templates *email.Templates, dial email.DialFunc, rec email.Recorder) (*email.Dispatcher, error) {
	if dial == nil {
		dial = email.NewSMTPDialer(email.SMTPOptions{
			Timeout:            config.Duration(cfg.SMTP.Timeout),
			LocalName:          cfg.SMTP.LocalName,
			InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
		})
	}

	return email.NewDispatcher(email.DispatcherConfig{
		Registry:  registry,
		Templates: templates,
		Senders:   email.NewSenderResolver(SenderRules(cfg)),
		Contexts: email.NewContextBuilder(email.ContextOptions{
			ReservedFields: cfg.ReservedFields,
			SubjectRules:   subjectRules(cfg),
			DefaultSubject: cfg.Subjects.Default,
		}),
		Dial:     dial,
		Recorder: rec,
	})
}

// IdentityTable convierte la tabla del YAML al modelo del dominio.
func IdentityTable(cfg *config.Config) map[string]map[string]email.Identity {
	out := make(map[string]map[string]email.Identity, len(cfg.Providers))
	for provider, brands := range cfg.Providers {
		m := make(map[string]email.Identity, len(brands))
		for brand, id := range brands {
			m[brand] = email.Identity{
				Host:     id.Host,
				Port:     id.Port,
				Username: id.Username,
				Password: id.Password,
				Auth:     id.AuthEnabled(),
				StartTLS: id.StartTLSEnabled(),
				BCC:      append([]string(nil), id.BCC...),
				Template: id.Template,
			}
		}
		out[provider] = m
	}
	return out
}

// SenderRules convierte sender_overrides en reglas del resolver.
func SenderRules(cfg *config.Config) []email.SenderRule {
	rules := make([]email.SenderRule, 0, len(cfg.SenderOverrides))
	for _, o := range cfg.SenderOverrides {
		rules = append(rules, email.SenderRule{
			Host:      o.Host,
			Templates: o.Templates,
			Brands:    o.Brands,
			Address:   o.Address,
			Name:      o.Name,
		})
	}
	return rules
}

func subjectRules(cfg *config.Config) []email.SubjectRule {
	rules := make([]email.SubjectRule, 0, len(cfg.Subjects.Rules))
	for _, r := range cfg.Subjects.Rules {
		rules = append(rules, email.SubjectRule{
			Brands:    r.Brands,
			Templates: r.Templates,
			Subject:   r.Subject,
		})
	}
	return rules
}

// inventory adapta App a healthctrl.Inventory.
type inventory struct{ a *App }

func (i inventory) Providers() int  { return len(i.a.Registry.Providers()) }
func (i inventory) Identities() int { return len(i.a.Registry.Identities()) }
func (i inventory) Templates() int  { return len(i.a.Templates.Names()) }
