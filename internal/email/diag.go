package email

import (
	"errors"
	"net"
	"strings"
	"time"
)

// Códigos de diagnóstico SMTP.
const (
	DiagDial             = "dial"
	DiagTLS              = "tls"
	DiagAuth             = "auth"
	DiagTimeout          = "timeout"
	DiagRateLimited      = "rate_limited"
	DiagInvalidRecipient = "invalid_recipient"
	DiagRejected         = "rejected"
	DiagNetwork          = "network"
	DiagUnknown          = "unknown"
)

// SMTPDiag clasifica un error SMTP para logs, métricas y la respuesta HTTP.
type SMTPDiag struct {
	Code       string
	Temporary  bool          // reintentar más tarde podría funcionar
	RetryAfter time.Duration // 0 si no se pudo inferir
}

// DiagnoseSMTP clasifica err primero por tipo y después por el texto de
// respuesta del server o del stack TLS.
func DiagnoseSMTP(err error) SMTPDiag {
	if err == nil {
		return SMTPDiag{Code: DiagUnknown}
	}
	s := strings.ToLower(err.Error())

	var ne net.Error
	isNet := errors.As(err, &ne)
	if isNet && ne.Timeout() {
		return SMTPDiag{Code: DiagTimeout, Temporary: true}
	}

	switch {
	case containsAny(s, "i/o timeout", "timeout"):
		return SMTPDiag{Code: DiagTimeout, Temporary: true}

	case containsAny(s, "connection refused", "connectex:", "no such host", "dial tcp"):
		return SMTPDiag{Code: DiagDial, Temporary: true}

	// STARTTLS exigido y el server no lo ofrece
	case strings.Contains(s, "starttls"):
		return SMTPDiag{Code: DiagTLS}

	case strings.Contains(s, "x509:"),
		strings.Contains(s, "tls") && containsAny(s, "handshake", "certificate"):
		return SMTPDiag{Code: DiagTLS}

	case containsAny(s, "5.7.8", "535", "username and password not accepted", "authentication failed"),
		strings.Contains(s, "auth") && strings.Contains(s, "failed"):
		return SMTPDiag{Code: DiagAuth}

	// 4.x.x throttling
	case containsAny(s, "4.7.0", "rate limit", "try again later", "temporarily unavailable", "451", "421"):
		return SMTPDiag{Code: DiagRateLimited, Temporary: true, RetryAfter: time.Minute}

	case containsAny(s, "5.1.1", "user unknown", "mailbox not found", "550 5.1"):
		return SMTPDiag{Code: DiagInvalidRecipient}

	// SPF/DMARC/políticas
	case containsAny(s, "5.7.1", "message rejected", "policy", "dmarc", "spf"):
		return SMTPDiag{Code: DiagRejected}
	}

	if isNet {
		return SMTPDiag{Code: DiagNetwork, Temporary: true}
	}
	return SMTPDiag{Code: DiagUnknown}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
