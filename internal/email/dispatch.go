package email

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mail "github.com/go-mail/mail"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satish603/MailPorter/internal/observability/logger"
)

// FailureKind indica por qué falló un dispatch. La capa HTTP lo traduce a
// status code.
type FailureKind string

const (
	KindNone          FailureKind = ""
	KindConfiguration FailureKind = "configuration"
	KindTemplate      FailureKind = "template"
	KindTransport     FailureKind = "transport"
)

// Stage es el último paso que alcanzó el dispatch.
type Stage string

const (
	StageResolve Stage = "resolve"
	StageRender  Stage = "render"
	StageConnect Stage = "connect"
	StageTLS     Stage = "tls"
	StageAuth    Stage = "auth"
	StageSend    Stage = "send"
	StageClosed  Stage = "closed"
)

// Labels de outcome para Recorder.
const (
	OutcomeSent   = "sent"
	OutcomeFailed = "failed"
)

const (
	sentMessage     = "Email sent successfully."
	unresolvedLabel = "unresolved"
)

// Result es el resultado de un dispatch. O bien OK, o bien Kind no vacío.
type Result struct {
	OK      bool
	Message string // informativo si OK, diagnóstico si no
	Kind    FailureKind
	Stage   Stage
	Diag    SMTPDiag // solo KindTransport
	Err     error

	Provider   string
	Brand      string // brand efectivo (puede ser "default")
	From       From
	Recipients []string
	MessageID  string
}

// Recorder observa cada dispatch terminado.
type Recorder interface {
	RecordDispatch(provider, brand, outcome string, elapsed time.Duration)
}

// DispatcherConfig cablea el Dispatcher. Senders y Contexts caen a las tablas
// por defecto; Dial a go-mail con DefaultSMTPTimeout.
type DispatcherConfig struct {
	Registry  *Registry
	Templates *Templates
	Senders   *SenderResolver
	Contexts  *ContextBuilder
	Dial      DialFunc
	Recorder  Recorder
	Now       func() time.Time
}

// Dispatcher releva submissions por SMTP. Sin estado mutable, seguro para
// uso concurrente.
type Dispatcher struct {
	registry  *Registry
	templates *Templates
	senders   *SenderResolver
	contexts  *ContextBuilder
	dial      DialFunc
	recorder  Recorder
	now       func() time.Time
}

// NewDispatcher valida cfg y verifica que cada identidad apunte a un template
// cargado.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Registry == nil {
		return nil, errors.New("email: dispatcher needs a registry")
	}
	if cfg.Templates == nil {
		return nil, errors.New("email: dispatcher needs templates")
	}

	var missing []string
	for _, id := range cfg.Registry.Identities() {
		if !cfg.Templates.Has(id.Template) {
			missing = append(missing, fmt.Sprintf("%s/%s → %s", id.Provider, id.Brand, id.Template))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w under %s: %s", ErrTemplateNotFound, cfg.Templates.Root(), strings.Join(missing, ", "))
	}

	d := &Dispatcher{
		registry:  cfg.Registry,
		templates: cfg.Templates,
		senders:   cfg.Senders,
		contexts:  cfg.Contexts,
		dial:      cfg.Dial,
		recorder:  cfg.Recorder,
		now:       cfg.Now,
	}
	if d.senders == nil {
		d.senders = NewSenderResolver(DefaultSenderRules())
	}
	if d.contexts == nil {
		d.contexts = NewContextBuilder(ContextOptions{})
	}
	if d.dial == nil {
		d.dial = NewSMTPDialer(SMTPOptions{})
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d, nil
}

// Registry expone el registry contra el que se resuelve.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Dispatch resuelve provider y sub.Brand, renderiza el template de la
// identidad y lo envía en una sola sesión SMTP. Todo error vuelve en Result.
func (d *Dispatcher) Dispatch(ctx context.Context, provider string, sub Submission) (res Result) {
	start := d.now()
	res = Result{Provider: provider, Brand: sub.Brand, Stage: StageResolve}
	log := logger.From(ctx).With(
		logger.Component("email.dispatch"),
		logger.Provider(provider),
		logger.Brand(sub.Brand),
	)

	defer func() {
		outcome := OutcomeSent
		if !res.OK {
			outcome = OutcomeFailed
		}
		if d.recorder == nil {
			return
		}
		// provider y brand vienen del request; sin resolver no se usan como label
		p, b := provider, res.Brand
		if res.Kind == KindConfiguration {
			p, b = unresolvedLabel, unresolvedLabel
		}
		d.recorder.RecordDispatch(p, b, outcome, d.now().Sub(start))
	}()

	// 1) resolve
	id, err := d.registry.Resolve(provider, sub.Brand)
	if err != nil {
		log.Warn("identity not resolved", logger.Err(err))
		return res.fail(KindConfiguration, configMessage(err, provider, sub.Brand), err)
	}
	res.Brand = id.Brand
	log = log.With(logger.SMTPHost(id.Host), logger.Template(id.Template))

	// 2) sender + contexto
	from := d.senders.Derive(id)
	res.From = from
	if strings.TrimSpace(from.Address) == "" {
		err := fmt.Errorf("email: %s/%s has no sender address", id.Provider, id.Brand)
		return res.fail(KindConfiguration, err.Error(), err)
	}
	rctx, subject := d.contexts.Build(sub, id)

	// 3) render
	res.Stage = StageRender
	body, err := d.templates.Render(id.Template, rctx)
	if err != nil {
		log.Error("template render failed", logger.Err(err))
		return res.fail(KindTemplate, fmt.Sprintf("Failed to render email template '%s'.", id.Template), err)
	}

	recipients := dedupeAddresses(append([]string{sub.Email}, id.BCC...))
	res.Recipients = recipients
	res.MessageID = messageID(from.Address)

	m := mail.NewMessage()
	m.SetAddressHeader("From", from.Address, from.Name)
	m.SetHeader("To", sub.Email)
	m.SetHeader("Subject", subject)
	m.SetDateHeader("Date", d.now())
	m.SetHeader("Message-ID", res.MessageID)
	m.SetBody("text/html", body)

	if err := ctx.Err(); err != nil {
		return res.fail(KindTransport, err.Error(), err)
	}

	// 4) sesión SMTP
	stage, err := d.transmit(log, id, from.Address, recipients, m)
	res.Stage = stage
	if err != nil {
		res.Diag = DiagnoseSMTP(err)
		log.Error("smtp dispatch failed",
			logger.Stage(string(stage)),
			logger.String("diag", res.Diag.Code),
			logger.Recipient(sub.Email),
			logger.Err(err),
		)
		return res.fail(KindTransport, err.Error(), err)
	}

	log.Info("email sent",
		logger.Recipient(sub.Email),
		logger.Int("recipients", len(recipients)),
		logger.DurationMs(d.now().Sub(start)),
	)
	res.OK = true
	res.Message = sentMessage
	return res
}

// transmit: connect → (STARTTLS) → (AUTH) → MAIL/RCPT/DATA → QUIT. Si Dial
// anduvo, la sesión se cierra en todos los caminos.
func (d *Dispatcher) transmit(log *zap.Logger, id Identity, envelopeFrom string, to []string, m *mail.Message) (stage Stage, err error) {
	sc, err := d.dial(id).Dial()
	if err != nil {
		return dialStage(err), err
	}
	defer func() {
		if cerr := sc.Close(); cerr != nil {
			// el mensaje ya fue aceptado; un QUIT fallido no lo invalida
			if err == nil {
				log.Warn("smtp quit failed", logger.Err(cerr))
				return
			}
			log.Warn("smtp close after failure", logger.Err(cerr))
		}
	}()

	if err := sc.Send(envelopeFrom, to, m); err != nil {
		return StageSend, err
	}
	return StageClosed, nil
}

// dialStage mapea un error de Dial al paso que falló (go-mail hace connect,
// STARTTLS y AUTH dentro de Dial).
func dialStage(err error) Stage {
	switch DiagnoseSMTP(err).Code {
	case DiagTLS:
		return StageTLS
	case DiagAuth:
		return StageAuth
	default:
		return StageConnect
	}
}

func (r Result) fail(kind FailureKind, msg string, err error) Result {
	r.OK = false
	r.Kind = kind
	r.Message = msg
	r.Err = err
	return r
}

func configMessage(err error, provider, brand string) string {
	switch {
	case errors.Is(err, ErrProviderNotFound):
		return fmt.Sprintf("SMTP configuration for provider '%s' not found.", provider)
	case errors.Is(err, ErrBrandNotFound):
		return fmt.Sprintf("No SMTP configuration found for brand '%s' under provider '%s'.", brand, provider)
	default:
		return err.Error()
	}
}

// messageID arma "<uuid@dominio>" con el dominio del remitente.
func messageID(from string) string {
	domain := "localhost"
	if at := strings.LastIndexByte(from, '@'); at >= 0 && at < len(from)-1 {
		domain = from[at+1:]
	}
	return "<" + uuid.NewString() + "@" + domain + ">"
}
