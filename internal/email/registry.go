package email

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// DefaultBrand es la clave de brand usada cuando el brand pedido no está
// configurado bajo el provider.
const DefaultBrand = "default"

// DefaultPort es el puerto de submission si la identidad no define uno.
const DefaultPort = 587

var (
	ErrProviderNotFound = errors.New("email: provider not found")
	ErrBrandNotFound    = errors.New("email: brand not found")
)

// Identity es una cuenta SMTP configurada bajo un par provider/brand.
// El Registry entrega copias; no mutar BCC.
type Identity struct {
	Provider string
	Brand    string

	Host     string
	Port     int
	Username string
	Password string
	Auth     bool
	StartTLS bool

	// BCC se agrega a cada envío por esta identidad.
	BCC []string

	// Template es el nombre de archivo bajo el root de templates.
	Template string
}

// Registry mapea provider → brand → Identity. Se arma una vez; lecturas
// concurrentes OK.
type Registry struct {
	providers map[string]map[string]Identity
}

// NewRegistry arma el Registry desde la tabla provider → brand → Identity.
// Las claves de brand se pasan a minúsculas y dos que colisionen son error.
// Provider y Brand de cada Identity salen de las claves de la tabla.
func NewRegistry(table map[string]map[string]Identity) (*Registry, error) {
	if len(table) == 0 {
		return nil, errors.New("email: registry has no providers")
	}

	providers := make(map[string]map[string]Identity, len(table))
	for provider, brands := range table {
		if strings.TrimSpace(provider) == "" {
			return nil, errors.New("email: empty provider key")
		}
		if len(brands) == 0 {
			return nil, fmt.Errorf("email: provider %q has no brands", provider)
		}

		byBrand := make(map[string]Identity, len(brands))
		for brand, id := range brands {
			key := strings.ToLower(strings.TrimSpace(brand))
			if key == "" {
				return nil, fmt.Errorf("email: provider %q has an empty brand key", provider)
			}
			if _, dup := byBrand[key]; dup {
				return nil, fmt.Errorf("email: provider %q declares brand %q twice", provider, key)
			}
			if strings.TrimSpace(id.Host) == "" {
				return nil, fmt.Errorf("email: %s/%s: host is required", provider, key)
			}
			if strings.TrimSpace(id.Template) == "" {
				return nil, fmt.Errorf("email: %s/%s: template is required", provider, key)
			}

			id.Provider = provider
			id.Brand = key
			if id.Port == 0 {
				id.Port = DefaultPort
			}
			id.BCC = dedupeAddresses(id.BCC)
			byBrand[key] = id
		}
		providers[provider] = byBrand
	}

	return &Registry{providers: providers}, nil
}

// Resolve devuelve la identidad para provider y brand. El provider se compara
// exacto; el brand sin distinguir mayúsculas, con fallback a DefaultBrand.
func (r *Registry) Resolve(provider, brand string) (Identity, error) {
	brands, ok := r.providers[provider]
	if !ok {
		return Identity{}, fmt.Errorf("%w: %q", ErrProviderNotFound, provider)
	}

	id, ok := brands[strings.ToLower(strings.TrimSpace(brand))]
	if !ok {
		id, ok = brands[DefaultBrand]
	}
	if !ok {
		return Identity{}, fmt.Errorf("%w: %q under provider %q", ErrBrandNotFound, brand, provider)
	}

	id.BCC = slices.Clone(id.BCC)
	return id, nil
}

// Providers devuelve las claves de provider ordenadas.
func (r *Registry) Providers() []string {
	out := make([]string, 0, len(r.providers))
	for p := range r.providers {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Identities devuelve todas las identidades, ordenadas por provider y brand.
func (r *Registry) Identities() []Identity {
	var out []Identity
	for _, p := range r.Providers() {
		brands := r.providers[p]
		keys := make([]string, 0, len(brands))
		for b := range brands {
			keys = append(keys, b)
		}
		sort.Strings(keys)
		for _, b := range keys {
			id := brands[b]
			id.BCC = slices.Clone(id.BCC)
			out = append(out, id)
		}
	}
	return out
}

// dedupeAddresses recorta, descarta vacíos y quita duplicados sin distinguir
// mayúsculas; gana la primera aparición.
func dedupeAddresses(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, a := range in {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		k := strings.ToLower(a)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, a)
	}
	return out
}
