// Package email contiene los DTOs del endpoint de envío.
package email

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/satish603/MailPorter/internal/email"
)

// Límites del payload.
const (
	MaxServiceItemLen = 100
	MaxServicesText   = 500
)

// SendRequest es el body de POST /api/email/send-email/{provider}. Cualquier
// campo no declarado se conserva en Extra, en el orden del JSON.
type SendRequest struct {
	Name     string         `json:"name" validate:"required,max=50"`
	Email    string         `json:"email" validate:"required,email"`
	Message  string         `json:"message" validate:"required,max=5000"`
	Mobile   string         `json:"mobile,omitempty" validate:"omitempty,min=10,max=15"`
	Brand    string         `json:"brand" validate:"required"`
	Services email.Services `json:"services" validate:"-"`

	Extra email.Fields `json:"-" validate:"-"`
}

// SendResponse es la respuesta 200.
type SendResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// UnmarshalJSON recorre el objeto token a token para conservar el orden de
// los campos extra. Los extras se guardan como string: null → "", números y
// bools con su texto literal, objetos y arrays como JSON compacto.
func (r *SendRequest) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("body must be a JSON object")
	}

	out := SendRequest{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}

		switch key {
		case "name":
			out.Name, err = knownString(key, raw)
		case "email":
			out.Email, err = knownString(key, raw)
		case "message":
			out.Message, err = knownString(key, raw)
		case "mobile":
			out.Mobile, err = knownString(key, raw)
		case "brand":
			out.Brand, err = knownString(key, raw)
		case "services":
			err = out.Services.UnmarshalJSON(raw)
		default:
			var v string
			if v, err = extraString(raw); err == nil {
				out.Extra.Set(key, v)
			}
		}
		if err != nil {
			return err
		}
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = out
	return nil
}

// knownString acepta string, null o número (teléfonos enviados como número).
func knownString(key string, raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	switch {
	case bytes.Equal(trimmed, []byte("null")):
		return "", nil
	case len(trimmed) > 0 && trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", fmt.Errorf("%s: %w", key, err)
		}
		return s, nil
	case len(trimmed) > 0 && (trimmed[0] == '-' || (trimmed[0] >= '0' && trimmed[0] <= '9')):
		return string(trimmed), nil
	default:
		return "", fmt.Errorf("%s: expected a string", key)
	}
}

func extraString(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		err := json.Unmarshal(trimmed, &s)
		return s, err
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			return "", err
		}
		return buf.String(), nil
	default:
		return string(trimmed), nil
	}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Normalize recorta espacios de los campos de identidad.
func (r *SendRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	r.Mobile = strings.TrimSpace(r.Mobile)
	r.Brand = strings.TrimSpace(r.Brand)
}

// Validate aplica los límites del payload. El error describe el primer campo
// inválido de forma legible.
func (r SendRequest) Validate() error {
	if err := validatorInstance().Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return errors.New(describe(verrs[0]))
		}
		return err
	}

	if r.Services.IsList {
		for i, item := range r.Services.List {
			if utf8.RuneCountInString(strings.TrimSpace(item)) > MaxServiceItemLen {
				return fmt.Errorf("services[%d]: must be at most %d characters", i, MaxServiceItemLen)
			}
		}
	} else if utf8.RuneCountInString(r.Services.Text) > MaxServicesText {
		return fmt.Errorf("services: must be at most %d characters", MaxServicesText)
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + ": field required"
	case "email":
		return field + ": value is not a valid email address"
	case "min":
		return fmt.Sprintf("%s: must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s: must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s: failed %q", field, fe.Tag())
	}
}

// ToSubmission convierte el request validado al modelo del dominio.
func (r SendRequest) ToSubmission() email.Submission {
	return email.Submission{
		Name:     r.Name,
		Email:    r.Email,
		Message:  r.Message,
		Mobile:   r.Mobile,
		Brand:    r.Brand,
		Services: r.Services,
		Extra:    append(email.Fields(nil), r.Extra...),
	}
}
