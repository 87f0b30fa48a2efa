package middlewares

import (
	"net/http"
	"strings"
)

const defaultAllowHeaders = "Content-Type, X-API-Key, X-Request-ID"

// CORSConfig configura WithCORS.
type CORSConfig struct {
	AllowedOrigins []string            // "*" permite cualquier origen
	OnReject       func(origin string) // opcional, p.ej. métricas
}

// WithCORS maneja CORS con credenciales para los orígenes permitidos. Los
// métodos y headers pedidos en el preflight se reflejan tal cual.
func WithCORS(cfg CORSConfig) Middleware {
	trim := func(s string) string { return strings.TrimRight(strings.TrimSpace(s), "/") }

	alist := make([]string, 0, len(cfg.AllowedOrigins))
	for _, v := range cfg.AllowedOrigins {
		if v = trim(v); v != "" {
			alist = append(alist, v)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := trim(r.Header.Get("Origin"))
			allowedOrigin := ""
			for _, a := range alist {
				if origin != "" && (a == "*" || strings.EqualFold(origin, a)) {
					allowedOrigin = origin
					break
				}
			}

			h := w.Header()
			h.Add("Vary", "Origin")
			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")

			if allowedOrigin != "" {
				h.Set("Access-Control-Allow-Origin", allowedOrigin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Expose-Headers", "X-Request-ID, X-RateLimit-Remaining, X-RateLimit-Reset, Retry-After")
			} else if origin != "" && cfg.OnReject != nil {
				cfg.OnReject(origin)
			}

			// Preflight
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if allowedOrigin != "" {
					h.Set("Access-Control-Allow-Methods", r.Header.Get("Access-Control-Request-Method"))
					reqHeaders := strings.TrimSpace(r.Header.Get("Access-Control-Request-Headers"))
					if reqHeaders == "" {
						reqHeaders = defaultAllowHeaders
					}
					h.Set("Access-Control-Allow-Headers", reqHeaders)
					h.Set("Access-Control-Max-Age", "600")
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
