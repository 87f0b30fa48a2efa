package email

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/satish603/MailPorter/internal/email"
	dto "github.com/satish603/MailPorter/internal/http/dto/email"
	httperrors "github.com/satish603/MailPorter/internal/http/errors"
	"github.com/satish603/MailPorter/internal/http/helpers"
	"github.com/satish603/MailPorter/internal/observability/logger"
)

// Dispatcher es lo que el controller necesita del motor de envío.
type Dispatcher interface {
	Dispatch(ctx context.Context, provider string, sub email.Submission) email.Result
}

// SendController maneja POST /api/email/send-email/{provider}.
type SendController struct {
	dispatcher Dispatcher
}

// NewSendController crea el controller de envío.
func NewSendController(d Dispatcher) *SendController {
	return &SendController{dispatcher: d}
}

// SendEmail valida el body, despacha y traduce el Result a HTTP.
func (c *SendController) SendEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider := chi.URLParam(r, "provider")
	log := logger.From(ctx).With(
		logger.Layer("controller"),
		logger.Op("SendController.SendEmail"),
		logger.Provider(provider),
	)

	var req dto.SendRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		log.Debug("invalid payload", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrValidation.WithDetail(err.Error()))
		return
	}

	res := c.dispatcher.Dispatch(ctx, provider, req.ToSubmission())
	if !res.OK {
		httperrors.WriteError(w, resultError(res))
		return
	}

	helpers.WriteJSON(w, http.StatusOK, dto.SendResponse{
		Status:  "success",
		Message: res.Message,
	})
}

// resultError es la única traducción Result → HTTP.
func resultError(res email.Result) *httperrors.AppError {
	var base *httperrors.AppError
	switch res.Kind {
	case email.KindConfiguration:
		switch {
		case errors.Is(res.Err, email.ErrProviderNotFound):
			base = httperrors.ErrProviderNotFound
		case errors.Is(res.Err, email.ErrBrandNotFound):
			base = httperrors.ErrBrandNotFound
		default:
			base = httperrors.ErrInternalServerError
		}
	case email.KindTemplate:
		base = httperrors.ErrTemplateFailed
	case email.KindTransport:
		base = httperrors.ErrSendFailed
	default:
		base = httperrors.ErrInternalServerError
	}
	return base.WithDetail(res.Message).WithCause(res.Err)
}
