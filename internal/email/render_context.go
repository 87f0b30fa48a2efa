package email

import (
	"strings"
)

// Claves del contexto de render.
const (
	KeyName         = "name"
	KeyMessage      = "message"
	KeyMobile       = "mobile"
	KeyEmail        = "email"
	KeyUserEmail    = "user_email"
	KeyServices     = "services"
	KeyFields       = "fields"
	KeyFieldsExtra  = "fields_extra"
	KeyFieldList    = "field_list"
	KeyFieldExtList = "field_extra_list"
	KeyPayload      = "payload"

	// Campos extra con significado propio.
	fieldSubject   = "subject"
	fieldUserEmail = "user_email"
)

const (
	DefaultSubject   = "Thank you for contacting our business"
	PowerbirdSubject = "New Inquiry from PowerBird Elevators Website"
)

// RenderContext son los datos del template por request. No se persiste.
type RenderContext map[string]any

// DefaultReservedFields son nombres de campos extra que los templates ya usan
// por su cuenta. Quedan en "fields" pero no en "fields_extra".
func DefaultReservedFields() []string {
	return []string{
		"full_name",
		"phone_number",
		"email_address",
		"requirement_type",
		"building_type",
		"message_remarks",
		"contact_name",
		"city_location",
		"no_of_lifts",
		"lifts_count",
		"current_status",
	}
}

// SubjectRule elige el subject cuando el payload no trae uno. Matchea si el
// brand pedido está en Brands (sin mayúsculas) o el template en Templates.
type SubjectRule struct {
	Brands    []string
	Templates []string
	Subject   string
}

// DefaultSubjectRules es la tabla de subjects si la config no trae una.
func DefaultSubjectRules() []SubjectRule {
	return []SubjectRule{{
		Brands:    []string{"powerbird"},
		Templates: []string{"powerbird_template.html"},
		Subject:   PowerbirdSubject,
	}}
}

// ContextBuilder convierte una Submission en RenderContext + subject.
type ContextBuilder struct {
	reserved       map[string]struct{}
	subjectRules   []SubjectRule
	defaultSubject string
}

// ContextOptions configura el ContextBuilder. nil / "" usan los defaults.
type ContextOptions struct {
	ReservedFields []string
	SubjectRules   []SubjectRule
	DefaultSubject string
}

func NewContextBuilder(opts ContextOptions) *ContextBuilder {
	reservedNames := opts.ReservedFields
	if reservedNames == nil {
		reservedNames = DefaultReservedFields()
	}
	reserved := make(map[string]struct{}, len(reservedNames))
	for _, n := range reservedNames {
		reserved[n] = struct{}{}
	}

	rules := opts.SubjectRules
	if rules == nil {
		rules = DefaultSubjectRules()
	}

	def := strings.TrimSpace(opts.DefaultSubject)
	if def == "" {
		def = DefaultSubject
	}

	return &ContextBuilder{
		reserved:       reserved,
		subjectRules:   append([]SubjectRule(nil), rules...),
		defaultSubject: def,
	}
}

// Build arma el contexto de render de sub para la identidad id y resuelve el
// subject.
func (b *ContextBuilder) Build(sub Submission, id Identity) (RenderContext, string) {
	extra := sub.Extra
	filtered := extra.Without(b.reserved)

	ctx := RenderContext{
		KeyName:         sub.Name,
		KeyMessage:      sub.Message,
		KeyMobile:       nilIfBlank(sub.Mobile),
		KeyEmail:        sub.Email,
		KeyUserEmail:    nilIfBlank(b.userEmail(sub)),
		KeyServices:     nilIfBlank(sub.Services.Flatten()),
		KeyFields:       extra.Map(),
		KeyFieldsExtra:  filtered.Map(),
		KeyFieldList:    append(Fields(nil), extra...),
		KeyFieldExtList: filtered,
		KeyPayload:      payloadMap(sub),
	}

	return ctx, b.subject(sub, id)
}

func (b *ContextBuilder) userEmail(sub Submission) string {
	if v, ok := sub.Extra.Get(fieldUserEmail); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(sub.Email)
}

func (b *ContextBuilder) subject(sub Submission, id Identity) string {
	if v, ok := sub.Extra.Get(fieldSubject); ok {
		if s := sanitizeHeader(v); s != "" {
			return s
		}
	}
	brand := strings.TrimSpace(sub.Brand)
	for _, r := range b.subjectRules {
		if containsFold(r.Brands, brand) || containsTemplate(r.Templates, id.Template) {
			return r.Subject
		}
	}
	return b.defaultSubject
}

func containsTemplate(list []string, name string) bool {
	for _, t := range list {
		if t == name {
			return true
		}
	}
	return false
}

// payloadMap: vista cruda del payload para templates que la necesiten.
func payloadMap(sub Submission) map[string]any {
	m := make(map[string]any, 6+len(sub.Extra))
	for _, f := range sub.Extra {
		m[f.Name] = f.Value
	}
	m["name"] = sub.Name
	m["email"] = sub.Email
	m["message"] = sub.Message
	m["mobile"] = nilIfBlank(sub.Mobile)
	m["brand"] = sub.Brand
	m["services"] = sub.Services.Raw()
	return m
}

func nilIfBlank(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

// sanitizeHeader recorta y quita CR/LF (sin inyección de headers).
func sanitizeHeader(s string) string {
	s = strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
	return strings.TrimSpace(s)
}
