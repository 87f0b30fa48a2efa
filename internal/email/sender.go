package email

import (
	"slices"
	"strings"
)

// From es el remitente visible. Address también va como MAIL FROM: los
// rebotes llegan al brand y no a la cuenta autenticada.
type From struct {
	Address string
	Name    string
}

// SenderRule pisa el remitente de las identidades que matchea. Todo matcher
// no vacío debe cumplirse: Host sin mayúsculas, Templates y Brands como any-of.
type SenderRule struct {
	Host      string
	Templates []string
	Brands    []string

	Address string
	Name    string
}

func (r SenderRule) matches(id Identity) bool {
	if r.Host == "" && len(r.Templates) == 0 && len(r.Brands) == 0 {
		return false
	}
	if r.Host != "" && !strings.EqualFold(r.Host, id.Host) {
		return false
	}
	if len(r.Templates) > 0 && !slices.Contains(r.Templates, id.Template) {
		return false
	}
	if len(r.Brands) > 0 && !containsFold(r.Brands, id.Brand) {
		return false
	}
	return true
}

// DefaultSenderRules es la tabla de overrides si la config no trae una.
func DefaultSenderRules() []SenderRule {
	return []SenderRule{
		{
			Host:      "smtp.hostinger.com",
			Templates: []string{"legalvala_template.html"},
			Address:   "info@legalvala.com",
			Name:      "Legalvala",
		},
		{
			Host:      "smtp.gmail.com",
			Templates: []string{"brchub_template.html", "brchub_v2.html"},
			Address:   "info@thebrchub.tech",
			Name:      "BRC Hub LLP",
		},
		{
			Host:      "smtp.gmail.com",
			Templates: []string{"powerbird_template.html"},
			Address:   "info@thebrchub.tech",
			Name:      "Powerbird",
		},
	}
}

// SenderResolver deriva el remitente visible con una tabla ordenada de
// reglas. Gana la primera que matchea.
type SenderResolver struct {
	rules []SenderRule
}

func NewSenderResolver(rules []SenderRule) *SenderResolver {
	cp := make([]SenderRule, len(rules))
	copy(cp, rules)
	return &SenderResolver{rules: cp}
}

// Derive devuelve el override de la primera regla que matchea o, si ninguna,
// el username de la identidad sin display name.
func (s *SenderResolver) Derive(id Identity) From {
	for _, r := range s.rules {
		if r.matches(id) {
			return From{Address: r.Address, Name: r.Name}
		}
	}
	return From{Address: id.Username}
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
