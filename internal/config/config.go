package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// DefaultPath es la ruta usada si no hay --config ni MAILPORTER_CONFIG.
const DefaultPath = "config/mailporter.yaml"

type Config struct {
	App struct {
		// dev | staging | prod
		Env      string `yaml:"app_env"`
		LogLevel string `yaml:"log_level"`
		Name     string `yaml:"name"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
		// IPs/CIDRs cuyos X-Forwarded-For se aceptan; vacío ⇒ IP del peer
		TrustedProxies     []string `yaml:"trusted_proxies"`
		ReadTimeout        string   `yaml:"read_timeout"`
		WriteTimeout       string   `yaml:"write_timeout"`
		ShutdownTimeout    string   `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	// APIKey se compara exacto contra el header X-API-Key.
	APIKey string `yaml:"api_key"`

	Templates struct {
		Dir string `yaml:"dir"` // relativo al YAML si no es absoluto
	} `yaml:"templates"`

	SMTP struct {
		Timeout            string `yaml:"timeout"`
		LocalName          string `yaml:"local_name"`
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"` // sólo dev
	} `yaml:"smtp"`

	// provider → brand → identidad
	Providers map[string]map[string]Identity `yaml:"smtp_servers"`

	SenderOverrides []SenderOverride `yaml:"sender_overrides"`

	Subjects struct {
		Default string        `yaml:"default"`
		Rules   []SubjectRule `yaml:"rules"`
	} `yaml:"subjects"`

	ReservedFields []string `yaml:"reserved_fields"`

	Rate struct {
		Enabled bool   `yaml:"enabled"`
		Limit   int    `yaml:"limit"`
		Window  string `yaml:"window"`
		Redis   struct {
			Addr     string `yaml:"addr"` // vacío ⇒ limiter en memoria
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"rate"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
}

// Identity es una cuenta SMTP tal como viene del YAML.
type Identity struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	Auth     *bool    `yaml:"auth"`     // nil ⇒ true
	StartTLS *bool    `yaml:"starttls"` // nil ⇒ true
	BCC      []string `yaml:"bcc_list"`
	Template string   `yaml:"template"`
}

// AuthEnabled reports the effective auth flag.
func (i Identity) AuthEnabled() bool { return i.Auth == nil || *i.Auth }

// StartTLSEnabled reports the effective STARTTLS flag.
func (i Identity) StartTLSEnabled() bool { return i.StartTLS == nil || *i.StartTLS }

type SenderOverride struct {
	Host      string   `yaml:"host"`
	Templates []string `yaml:"templates"`
	Brands    []string `yaml:"brands"`
	Address   string   `yaml:"address"`
	Name      string   `yaml:"name"`
}

type SubjectRule struct {
	Brands    []string `yaml:"brands"`
	Templates []string `yaml:"templates"`
	Subject   string   `yaml:"subject"`
}

func defaults() Config {
	var d Config
	d.App.Env = "dev"
	d.App.LogLevel = "info"
	d.App.Name = "mailporter"
	d.Server.Addr = ":8000"
	d.Server.ReadTimeout = "15s"
	d.Server.WriteTimeout = "60s"
	d.Server.ShutdownTimeout = "10s"
	d.Templates.Dir = "templates"
	d.SMTP.Timeout = "30s"
	d.Subjects.Default = "Thank you for contacting our business"
	d.Subjects.Rules = []SubjectRule{{
		Brands:    []string{"powerbird"},
		Templates: []string{"powerbird_template.html"},
		Subject:   "New Inquiry from PowerBird Elevators Website",
	}}
	d.SenderOverrides = []SenderOverride{
		{Host: "smtp.hostinger.com", Templates: []string{"legalvala_template.html"}, Address: "info@legalvala.com", Name: "Legalvala"},
		{Host: "smtp.gmail.com", Templates: []string{"brchub_template.html", "brchub_v2.html"}, Address: "info@thebrchub.tech", Name: "BRC Hub LLP"},
		{Host: "smtp.gmail.com", Templates: []string{"powerbird_template.html"}, Address: "info@thebrchub.tech", Name: "Powerbird"},
	}
	d.ReservedFields = []string{
		"full_name", "phone_number", "email_address", "requirement_type",
		"building_type", "message_remarks", "contact_name", "city_location",
		"no_of_lifts", "lifts_count", "current_status",
	}
	d.Rate.Limit = 10
	d.Rate.Window = "1m"
	d.Rate.Redis.Prefix = "mailporter:rl:"
	d.Metrics.Path = "/metrics"
	return d
}

// Load lee el YAML en path, expande ${VAR} / ${VAR:-def}, completa defaults,
// aplica overrides de entorno y valida.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parse(b, filepath.Dir(path))
}

func parse(raw []byte, baseDir string) (*Config, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if root.Kind == 0 {
		return nil, errors.New("config: empty file")
	}

	// ${VAR} se expande sobre cada escalar ya parseado, nunca sobre el texto
	expandNode(&root)
	present := explicitTables(&root)

	// re-emitir el árbol permite mantener KnownFields (Node.Decode no lo soporta)
	expanded, err := yaml.Marshal(&root)
	if err != nil {
		return nil, fmt.Errorf("config: encode yaml: %w", err)
	}
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}

	// mergo trata un slice vacío como ausente; las tablas explícitas no se tocan
	senders, rules, reserved := c.SenderOverrides, c.Subjects.Rules, c.ReservedFields
	if err := mergo.Merge(&c, defaults()); err != nil {
		return nil, fmt.Errorf("config: apply defaults: %w", err)
	}
	if present.senders {
		c.SenderOverrides = senders
	}
	if present.subjectRules {
		c.Subjects.Rules = rules
	}
	if present.reserved {
		c.ReservedFields = reserved
	}

	// Overrides por env + salvaguarda prod
	c.applyEnvOverrides()

	// templates.dir relativo ⇒ respecto al directorio del YAML
	if d := strings.TrimSpace(c.Templates.Dir); d != "" && !filepath.IsAbs(d) && baseDir != "" {
		c.Templates.Dir = filepath.Clean(filepath.Join(baseDir, d))
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// ${NAME} o ${NAME:-fallback}
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(m string) string {
		sub := envRef.FindStringSubmatch(m)
		if v, ok := os.LookupEnv(sub[1]); ok && v != "" {
			return v
		}
		return sub[2]
	})
}

// expandNode expande referencias en los valores (no en las claves). Un
// escalar plano que queda vacío pasa a null.
func expandNode(n *yaml.Node) {
	switch n.Kind {
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, c := range n.Content {
			expandNode(c)
		}
	case yaml.MappingNode:
		for i := 1; i < len(n.Content); i += 2 {
			expandNode(n.Content[i])
		}
	case yaml.ScalarNode:
		if !envRef.MatchString(n.Value) {
			return
		}
		n.Value = expandEnv(n.Value)
		if n.Style&(yaml.SingleQuotedStyle|yaml.DoubleQuotedStyle) != 0 {
			return
		}
		switch n.Value {
		case "":
			n.Tag = "!!null"
		case "~", "null", "Null", "NULL":
			n.Tag = "!!str"
		default:
			// tipo implícito, como si el valor estuviera escrito en el YAML
			n.Tag = ""
		}
	}
}

type tablePresence struct {
	senders, subjectRules, reserved bool
}

// explicitTables detecta las tablas de reglas presentes en el YAML, aunque
// estén vacías. Una clave con valor null cuenta como ausente.
func explicitTables(root *yaml.Node) tablePresence {
	var p tablePresence
	if len(root.Content) == 0 {
		return p
	}
	top := root.Content[0]
	p.senders = mappingValue(top, "sender_overrides") != nil
	p.reserved = mappingValue(top, "reserved_fields") != nil
	if subj := mappingValue(top, "subjects"); subj != nil {
		p.subjectRules = mappingValue(subj, "rules") != nil
	}
	return p
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value != key {
			continue
		}
		v := m.Content[i+1]
		if v.Kind == yaml.ScalarNode && v.ShortTag() == "!!null" {
			return nil
		}
		return v
	}
	return nil
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// applyEnvOverrides: pisa el YAML con variables de entorno.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.App.LogLevel = strings.ToLower(v)
	}

	if v, ok := getEnvStr("API_KEY"); ok {
		c.APIKey = v
	}

	// SERVER_ADDR gana sobre SERVER_PORT
	if v, ok := getEnvInt("SERVER_PORT"); ok {
		c.Server.Addr = ":" + strconv.Itoa(v)
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvCSV("CORS_ALLOWED_ORIGINS"); ok {
		c.Server.CORSAllowedOrigins = v
	}
	if v, ok := getEnvCSV("TRUSTED_PROXIES"); ok {
		c.Server.TrustedProxies = v
	}

	if v, ok := getEnvStr("TEMPLATES_DIR"); ok {
		c.Templates.Dir = v
	}
	if v, ok := getEnvStr("SMTP_TIMEOUT"); ok {
		c.SMTP.Timeout = v
	}

	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Rate.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Rate.Redis.Password = v
	}

	if v, ok := getEnvBool("METRICS_ENABLED"); ok {
		c.Metrics.Enabled = v
	}
}

// Validate falla rápido ante config que rompería el arranque o cada request.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.APIKey) == "" {
		errs = append(errs, errors.New("api_key is required"))
	}
	if len(c.Providers) == 0 {
		errs = append(errs, errors.New("smtp_servers has no providers"))
	}
	for p, brands := range c.Providers {
		if len(brands) == 0 {
			errs = append(errs, fmt.Errorf("smtp_servers.%s has no brands", p))
		}
		for b, id := range brands {
			if strings.TrimSpace(id.Host) == "" {
				errs = append(errs, fmt.Errorf("smtp_servers.%s.%s.host is required", p, b))
			}
			if strings.TrimSpace(id.Template) == "" {
				errs = append(errs, fmt.Errorf("smtp_servers.%s.%s.template is required", p, b))
			}
			if id.Port < 0 || id.Port > 65535 {
				errs = append(errs, fmt.Errorf("smtp_servers.%s.%s.port %d out of range", p, b, id.Port))
			}
			if id.AuthEnabled() && strings.TrimSpace(id.Username) == "" {
				errs = append(errs, fmt.Errorf("smtp_servers.%s.%s.username is required when auth is on", p, b))
			}
		}
	}
	for i, o := range c.SenderOverrides {
		if strings.TrimSpace(o.Address) == "" {
			errs = append(errs, fmt.Errorf("sender_overrides[%d].address is required", i))
		}
		if o.Host == "" && len(o.Templates) == 0 && len(o.Brands) == 0 {
			errs = append(errs, fmt.Errorf("sender_overrides[%d] has no matcher", i))
		}
	}

	for name, v := range map[string]string{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"smtp.timeout":            c.SMTP.Timeout,
		"rate.window":             c.Rate.Window,
	} {
		if d, err := time.ParseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		} else if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Rate.Enabled && c.Rate.Limit <= 0 {
		errs = append(errs, errors.New("rate.limit must be positive when rate is enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Duration parses a duration already checked by Validate.
func Duration(v string) time.Duration {
	d, _ := time.ParseDuration(v)
	return d
}

// IsProd reports whether app_env is prod.
func (c *Config) IsProd() bool { return strings.EqualFold(c.App.Env, "prod") }
