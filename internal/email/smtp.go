package email

import (
	"crypto/tls"
	"time"

	mail "github.com/go-mail/mail"
)

// DefaultSMTPTimeout acota dial + comandos SMTP cuando la config no define uno.
const DefaultSMTPTimeout = 30 * time.Second

// Dialer abre una sesión SMTP. *mail.Dialer lo cumple.
type Dialer interface {
	Dial() (mail.SendCloser, error)
}

// DialFunc arma el Dialer de una identidad.
type DialFunc func(Identity) Dialer

// SMTPOptions ajusta el dialer go-mail de NewSMTPDialer.
type SMTPOptions struct {
	Timeout            time.Duration
	LocalName          string // HELO/EHLO; vacío = "localhost"
	InsecureSkipVerify bool   // solo dev
}

// NewSMTPDialer devuelve un DialFunc sobre go-mail.
//
//   - puerto 465 → TLS implícito
//   - StartTLS → STARTTLS obligatorio; si el server no lo ofrece, falla
//   - !StartTLS → sesión en claro
//   - Auth → PLAIN/LOGIN/CRAM-MD5 negociado por go-mail con Username/Password
func NewSMTPDialer(opts SMTPOptions) DialFunc {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultSMTPTimeout
	}

	return func(id Identity) Dialer {
		user, pass := "", ""
		if id.Auth {
			user, pass = id.Username, id.Password
		}

		d := mail.NewDialer(id.Host, id.Port, user, pass)
		d.Timeout = timeout
		d.TLSConfig = &tls.Config{
			ServerName:         id.Host,
			InsecureSkipVerify: opts.InsecureSkipVerify,
			MinVersion:         tls.VersionTLS12,
		}
		if opts.LocalName != "" {
			d.LocalName = opts.LocalName
		}

		switch {
		case d.SSL:
			// TLS implícito, STARTTLS no aplica
		case id.StartTLS:
			d.StartTLSPolicy = mail.MandatoryStartTLS
		default:
			d.StartTLSPolicy = mail.NoStartTLS
		}
		return d
	}
}
