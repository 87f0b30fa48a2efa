package logger

import (
	"time"

	"github.com/satish603/MailPorter/internal/util"
	"go.uber.org/zap"
)

// Field es un alias para no obligar a importar zap en cada paquete.
type Field = zap.Field

// =================================================================================
// CAMPOS ESTÁNDAR - HTTP
// =================================================================================

func RequestID(v string) zap.Field { return zap.String("request_id", v) }

func Method(v string) zap.Field { return zap.String("method", v) }

func Path(v string) zap.Field { return zap.String("path", v) }

func Status(v int) zap.Field { return zap.Int("status", v) }

func Bytes(v int) zap.Field { return zap.Int("bytes", v) }

func ClientIP(v string) zap.Field { return zap.String("client_ip", v) }

// DurationMs crea un campo para la duración en milisegundos.
func DurationMs(v time.Duration) zap.Field { return zap.Int64("duration_ms", v.Milliseconds()) }

// =================================================================================
// CAMPOS ESTÁNDAR - DISPATCH
// =================================================================================

// Provider es la familia de cuentas SMTP (ej: "hostinger").
func Provider(v string) zap.Field { return zap.String("provider", v) }

// Brand es el tenant dentro del provider (ej: "legalvala").
func Brand(v string) zap.Field { return zap.String("brand", v) }

func Template(v string) zap.Field { return zap.String("template", v) }

func SMTPHost(v string) zap.Field { return zap.String("smtp_host", v) }

// Recipient enmascara el email antes de loguearlo.
func Recipient(v string) zap.Field { return zap.String("recipient", util.MaskEmail(v)) }

func Stage(v string) zap.Field { return zap.String("stage", v) }

// =================================================================================
// CAMPOS ESTÁNDAR - SISTEMA
// =================================================================================

func Component(v string) zap.Field { return zap.String("component", v) }

func Op(v string) zap.Field { return zap.String("op", v) }

func Layer(v string) zap.Field { return zap.String("layer", v) }

func Err(err error) zap.Field { return zap.Error(err) }

func Any(key string, v any) zap.Field { return zap.Any(key, v) }

func String(key, v string) zap.Field { return zap.String(key, v) }

func Int(key string, v int) zap.Field { return zap.Int(key, v) }

func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }
