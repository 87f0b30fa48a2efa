package helpers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	httperrors "github.com/satish603/MailPorter/internal/http/errors"
)

// MaxBodyBytes limita el body JSON de entrada.
const MaxBodyBytes = 1 << 20

// ReadJSON valida Content-Type, limita el body a MaxBodyBytes y decodifica en v.
// Sin Content-Type el body se trata como JSON. Devuelve false si ya escribió
// el error HTTP.
func ReadJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if !isJSONContentType(r.Header.Get("Content-Type")) {
		httperrors.WriteError(w, httperrors.ErrUnsupportedMediaType)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			httperrors.WriteError(w, httperrors.ErrBodyTooLarge)
		case errors.Is(err, io.EOF):
			httperrors.WriteError(w, httperrors.ErrInvalidJSON.WithDetail("empty body"))
		default:
			httperrors.WriteError(w, httperrors.ErrInvalidJSON.WithDetail(err.Error()).WithCause(err))
		}
		return false
	}
	return true
}

// isJSONContentType acepta vacío, application/json y application/*+json.
func isJSONContentType(ct string) bool {
	if strings.TrimSpace(ct) == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mt == "application/json" || (strings.HasPrefix(mt, "application/") && strings.HasSuffix(mt, "+json"))
}

// WriteJSON escribe una respuesta JSON estándar.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
