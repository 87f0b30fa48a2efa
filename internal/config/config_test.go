package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
api_key: ${TEST_MP_API_KEY:-fallback-key}
templates:
  dir: tpl
smtp_servers:
  hostinger:
    legalvala:
      host: smtp.hostinger.com
      username: ${TEST_MP_USER:-relay@legalvala.com}
      password: ${TEST_MP_PASS}
      bcc_list: [thebrcexplorers@gmail.com, info@legalvala.com]
      template: legalvala_template.html
    local:
      host: localhost
      port: 2525
      auth: false
      starttls: false
      template: local.html
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "mailporter.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_DefaultsAndExpansion(t *testing.T) {
	t.Setenv("TEST_MP_PASS", "s3cret")
	p := writeConfig(t, minimalYAML)

	c, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "fallback-key", c.APIKey)
	assert.Equal(t, ":8000", c.Server.Addr)
	assert.Equal(t, "dev", c.App.Env)
	assert.Equal(t, filepath.Join(filepath.Dir(p), "tpl"), c.Templates.Dir)
	assert.Equal(t, 30*time.Second, Duration(c.SMTP.Timeout))
	assert.Len(t, c.SenderOverrides, 3)
	assert.Contains(t, c.ReservedFields, "current_status")
	assert.Equal(t, "Thank you for contacting our business", c.Subjects.Default)

	lv := c.Providers["hostinger"]["legalvala"]
	assert.Equal(t, "relay@legalvala.com", lv.Username)
	assert.Equal(t, "s3cret", lv.Password)
	assert.True(t, lv.AuthEnabled())
	assert.True(t, lv.StartTLSEnabled())
	assert.Equal(t, []string{"thebrcexplorers@gmail.com", "info@legalvala.com"}, lv.BCC)

	local := c.Providers["hostinger"]["local"]
	assert.False(t, local.AuthEnabled())
	assert.False(t, local.StartTLSEnabled())
	assert.Equal(t, 2525, local.Port)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("API_KEY", "from-env")
	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://legalvala.com, http://localhost:3000")
	t.Setenv("APP_ENV", "PROD")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("RATE_ENABLED", "true")
	t.Setenv("TEMPLATES_DIR", "/srv/templates")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.0.2.10")

	c, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "from-env", c.APIKey)
	assert.Equal(t, ":9100", c.Server.Addr)
	assert.Equal(t, []string{"https://legalvala.com", "http://localhost:3000"}, c.Server.CORSAllowedOrigins)
	assert.True(t, c.IsProd())
	assert.Equal(t, "redis:6379", c.Rate.Redis.Addr)
	assert.True(t, c.Rate.Enabled)
	assert.Equal(t, "/srv/templates", c.Templates.Dir)
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.10"}, c.Server.TrustedProxies)
}

func TestLoad_ExplicitValuesWin(t *testing.T) {
	body := minimalYAML + `
server:
  addr: 127.0.0.1:7000
subjects:
  default: Hello there
sender_overrides:
  - brands: [acme]
    address: hi@acme.io
`
	c, err := Load(writeConfig(t, body))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7000", c.Server.Addr)
	assert.Equal(t, "Hello there", c.Subjects.Default)
	require.Len(t, c.SenderOverrides, 1)
	assert.Equal(t, "hi@acme.io", c.SenderOverrides[0].Address)
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := map[string]string{
		"missing api key": `
api_key: ""
smtp_servers:
  p: {default: {host: h, username: u, template: t.html}}
`,
		"no providers": `
api_key: k
`,
		"missing host": `
api_key: k
smtp_servers:
  p: {default: {username: u, template: t.html}}
`,
		"auth without username": `
api_key: k
smtp_servers:
  p: {default: {host: h, template: t.html}}
`,
		"bad duration": `
api_key: k
smtp:
  timeout: soon
smtp_servers:
  p: {default: {host: h, username: u, template: t.html}}
`,
		"unknown key": `
api_key: k
smtp_serverz: {}
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TEST_MP_SET", "value")
	t.Setenv("TEST_MP_EMPTY", "")

	out := expandEnv("a=${TEST_MP_SET} b=${TEST_MP_UNSET:-dflt} c=${TEST_MP_EMPTY:-e} d=${TEST_MP_UNSET}")
	assert.Equal(t, "a=value b=dflt c=e d=", out)
}

func TestLoad_SecretsAreNotReparsed(t *testing.T) {
	secrets := []string{
		"abc #123",
		"*Xy9:z",
		"&anchor",
		"!tagged",
		"{not: a map}",
		"[1, 2]",
		"'quoted",
		"@start",
		"key: value",
		"null",
		"12345",
	}
	for _, secret := range secrets {
		t.Run(secret, func(t *testing.T) {
			t.Setenv("TEST_MP_PASS", secret)
			c, err := Load(writeConfig(t, minimalYAML))
			require.NoError(t, err)
			assert.Equal(t, secret, c.Providers["hostinger"]["legalvala"].Password)
		})
	}
}

func TestLoad_ExpandedScalarsKeepTheirType(t *testing.T) {
	t.Setenv("TEST_MP_PORT", "2587")
	t.Setenv("TEST_MP_RATE", "true")
	body := minimalYAML + `
rate:
  enabled: ${TEST_MP_RATE:-false}
  limit: ${TEST_MP_LIMIT:-25}
  redis:
    db: ${TEST_MP_DB:-}
`
	body = strings.Replace(body, "port: 2525", "port: ${TEST_MP_PORT:-2525}", 1)

	c, err := Load(writeConfig(t, body))
	require.NoError(t, err)
	assert.Equal(t, 2587, c.Providers["hostinger"]["local"].Port)
	assert.True(t, c.Rate.Enabled)
	assert.Equal(t, 25, c.Rate.Limit)
	assert.Zero(t, c.Rate.Redis.DB)
}

func TestLoad_EmptyTablesAuthoritative(t *testing.T) {
	body := minimalYAML + `
sender_overrides: []
subjects:
  rules: []
reserved_fields: []
`
	c, err := Load(writeConfig(t, body))
	require.NoError(t, err)

	assert.NotNil(t, c.SenderOverrides)
	assert.Empty(t, c.SenderOverrides)
	assert.Empty(t, c.Subjects.Rules)
	assert.Empty(t, c.ReservedFields)
	// lo no declarado sigue tomando el default
	assert.Equal(t, "Thank you for contacting our business", c.Subjects.Default)
}

func TestLoad_NullTablesTakeDefaults(t *testing.T) {
	body := minimalYAML + `
sender_overrides:
reserved_fields: ~
`
	c, err := Load(writeConfig(t, body))
	require.NoError(t, err)
	assert.Len(t, c.SenderOverrides, 3)
	assert.Len(t, c.ReservedFields, 11)
	assert.Len(t, c.Subjects.Rules, 1)
}
