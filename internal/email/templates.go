package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	ErrTemplateNotFound = errors.New("email: template not found")
	ErrTemplateRender   = errors.New("email: template render failed")
)

// Templates es el set inmutable de plantillas HTML de un directorio.
// Seguro para uso concurrente.
type Templates struct {
	root string
	set  map[string]*template.Template
}

// templateFuncs helpers disponibles en todas las plantillas.
var templateFuncs = template.FuncMap{
	// default "x" .campo → "x" si campo está vacío
	"default": func(def string, v any) any {
		if v == nil {
			return def
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			return def
		}
		return v
	},
	"join": strings.Join,
}

// LoadTemplates parsea cada *.html directamente bajo root. El nombre del
// template es el del archivo (ej: "legalvala_template.html").
func LoadTemplates(root string) (*Templates, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("email: template root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("email: template root %q is not a directory", root)
	}

	paths, err := filepath.Glob(filepath.Join(root, "*.html"))
	if err != nil {
		return nil, fmt.Errorf("email: list templates: %w", err)
	}

	set := make(map[string]*template.Template, len(paths))
	for _, p := range paths {
		name := filepath.Base(p)
		raw, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("email: read template %s: %w", name, err)
		}
		t, err := template.New(name).Funcs(templateFuncs).Parse(string(raw))
		if err != nil {
			return nil, fmt.Errorf("email: parse template %s: %w", name, err)
		}
		set[name] = t
	}

	return &Templates{root: root, set: set}, nil
}

// Root devuelve el directorio de origen.
func (t *Templates) Root() string { return t.root }

// Has indica si name está cargado.
func (t *Templates) Has(name string) bool {
	_, ok := t.set[name]
	return ok
}

// Names devuelve los nombres cargados, ordenados.
func (t *Templates) Names() []string {
	out := make([]string, 0, len(t.set))
	for n := range t.set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Render ejecuta el template name con ctx. Claves ausentes quedan vacías.
func (t *Templates) Render(name string, ctx RenderContext) (string, error) {
	tpl, ok := t.set[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, map[string]any(ctx)); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrTemplateRender, name, err)
	}
	return buf.String(), nil
}
