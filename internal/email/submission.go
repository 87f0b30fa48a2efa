package email

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Submission es el payload del formulario ya validado.
type Submission struct {
	Name    string
	Email   string
	Message string
	Mobile  string // vacío si no vino
	Brand   string

	Services Services

	// Extra: todo campo no listado arriba, en orden de llegada.
	Extra Fields
}

// Services es una lista de strings cortos o un texto libre.
type Services struct {
	List   []string
	Text   string
	IsList bool
}

// ServicesList arma Services con forma de lista.
func ServicesList(items ...string) Services {
	return Services{List: items, IsList: true}
}

// ServicesText arma Services con forma de texto.
func ServicesText(text string) Services {
	return Services{Text: text}
}

// Flatten prepara services para el template: en lista recorta, descarta
// vacíos y une con ", "; en texto solo recorta. "" si no queda nada.
func (s Services) Flatten() string {
	if !s.IsList {
		return strings.TrimSpace(s.Text)
	}
	parts := make([]string, 0, len(s.List))
	for _, item := range s.List {
		if v := strings.TrimSpace(item); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}

// Raw devuelve services en su forma original, nil si no vino.
func (s Services) Raw() any {
	switch {
	case s.IsList:
		return append([]string(nil), s.List...)
	case s.Text != "":
		return s.Text
	default:
		return nil
	}
}

// UnmarshalJSON acepta string, array de strings o null.
func (s *Services) UnmarshalJSON(b []byte) error {
	trimmed := strings.TrimSpace(string(b))
	switch {
	case trimmed == "null":
		*s = Services{}
		return nil
	case strings.HasPrefix(trimmed, "["):
		var list []string
		if err := json.Unmarshal(b, &list); err != nil {
			return fmt.Errorf("services: expected an array of strings: %w", err)
		}
		*s = ServicesList(list...)
		return nil
	default:
		var text string
		if err := json.Unmarshal(b, &text); err != nil {
			return fmt.Errorf("services: expected a string or an array of strings: %w", err)
		}
		*s = ServicesText(text)
		return nil
	}
}

// Field es un campo extra con nombre.
type Field struct {
	Name  string
	Value string
}

// Fields es un mapa string → string que conserva el orden.
type Fields []Field

// Set reemplaza en su lugar si name ya existe; si no, agrega al final.
func (f *Fields) Set(name, value string) {
	for i := range *f {
		if (*f)[i].Name == name {
			(*f)[i].Value = value
			return
		}
	}
	*f = append(*f, Field{Name: name, Value: value})
}

// Get devuelve el valor de name.
func (f Fields) Get(name string) (string, bool) {
	for _, fld := range f {
		if fld.Name == name {
			return fld.Value, true
		}
	}
	return "", false
}

// Map copia a un map para acceso por clave desde el template.
func (f Fields) Map() map[string]string {
	m := make(map[string]string, len(f))
	for _, fld := range f {
		m[fld.Name] = fld.Value
	}
	return m
}

// Without devuelve los campos cuyo nombre no está en drop, mismo orden.
func (f Fields) Without(drop map[string]struct{}) Fields {
	out := make(Fields, 0, len(f))
	for _, fld := range f {
		if _, skip := drop[fld.Name]; skip {
			continue
		}
		out = append(out, fld)
	}
	return out
}
