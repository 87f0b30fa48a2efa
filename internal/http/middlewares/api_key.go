package middlewares

import (
	"crypto/subtle"
	"net/http"

	"github.com/satish603/MailPorter/internal/http/errors"
	"github.com/satish603/MailPorter/internal/observability/logger"
)

// APIKeyHeader es el header que debe traer la clave estática.
const APIKeyHeader = "X-API-Key"

// WithAPIKey exige que X-API-Key sea exactamente key. Si no, 403 y el handler
// no corre (nunca se abre una sesión SMTP).
func WithAPIKey(key string) Middleware {
	want := []byte(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(APIKeyHeader))
			if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
				logger.From(r.Context()).Warn("api key rejected",
					logger.ClientIP(ClientIP(r)),
					logger.Bool("present", len(got) > 0),
				)
				errors.WriteError(w, errors.ErrInvalidAPIKey)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
