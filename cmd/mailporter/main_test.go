package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	mail "github.com/go-mail/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satish603/MailPorter/internal/app"
	"github.com/satish603/MailPorter/internal/config"
	"github.com/satish603/MailPorter/internal/email"
)

const cliConfig = `
api_key: k
templates:
  dir: tpl
smtp_servers:
  hostinger:
    legalvala:
      host: smtp.hostinger.com
      username: relay@legalvala.com
      password: super-secret-password
      bcc_list: [info@legalvala.com]
      template: legalvala_template.html
`

func writeCLIConfig(t *testing.T, withTemplate bool) string {
	t.Helper()
	if !withTemplate {
		return writeCLIConfigTemplate(t, "")
	}
	return writeCLIConfigTemplate(t, `<p>{{.name}}</p>`)
}

// writeCLIConfigTemplate escribe cliConfig; tpl vacío omite el template.
func writeCLIConfigTemplate(t *testing.T, tpl string) string {
	t.Helper()
	for _, k := range []string{"API_KEY", "TEMPLATES_DIR", "RATE_ENABLED", "METRICS_ENABLED", "REDIS_ADDR"} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "tpl"), 0o755))
	if tpl != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "tpl", "legalvala_template.html"), []byte(tpl), 0o600))
	}
	p := filepath.Join(dir, "mailporter.yaml")
	require.NoError(t, os.WriteFile(p, []byte(cliConfig), 0o600))
	return p
}

func TestCheckConfig(t *testing.T) {
	cfg, err := config.Load(writeCLIConfig(t, true))
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, checkConfig(&out, cfg))

	s := out.String()
	assert.Contains(t, s, "hostinger")
	assert.Contains(t, s, "Legalvala <info@legalvala.com>")
	assert.Contains(t, s, "smtp.hostinger.com:587")
	assert.NotContains(t, s, "super-secret-password")
	assert.Contains(t, s, "ok: 1 providers, 1 identities, 1 templates")
}

func TestCheckConfig_MissingTemplate(t *testing.T) {
	cfg, err := config.Load(writeCLIConfig(t, false))
	require.NoError(t, err)

	var out bytes.Buffer
	err = checkConfig(&out, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "legalvala_template.html")
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	cfg, err := config.Load(writeCLIConfig(t, true))
	require.NoError(t, err)
	cfg.Server.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, http.NotFoundHandler()) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

// captureSMTP guarda el sobre y el mensaje de cada Send.
type captureSMTP struct {
	dials int
	from  string
	to    []string
	raw   bytes.Buffer
}

func (c *captureSMTP) dial(email.Identity) email.Dialer { return c }

func (c *captureSMTP) Dial() (mail.SendCloser, error) {
	c.dials++
	return c, nil
}

func (c *captureSMTP) Send(from string, to []string, msg io.WriterTo) error {
	c.from, c.to = from, append([]string(nil), to...)
	_, err := msg.WriteTo(&c.raw)
	return err
}

func (c *captureSMTP) Close() error { return nil }

func runSend(t *testing.T, smtp *captureSMTP, args ...string) (string, error) {
	t.Helper()
	cfgPath := writeCLIConfigTemplate(t, `<p>{{.name}}|{{.services}}|{{.fields.city_location}}</p>`)

	prev := appOptions
	appOptions = []app.Option{app.WithDialer(smtp.dial)}
	t.Cleanup(func() { appOptions = prev })

	cmd := newSendCmd(&cfgPath)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	cmd.SilenceUsage = true
	err := cmd.Execute()
	return out.String(), err
}

func TestSendCmd_Dispatches(t *testing.T) {
	smtp := &captureSMTP{}
	out, err := runSend(t, smtp,
		"--provider", "hostinger", "--brand", "legalvala",
		"--name", "Asha", "--email", "asha@example.com", "--message", "hola",
		"--service", "GST ", "--service", "", "--service", "Trademark",
		"--field", "city_location=Pune",
	)
	require.NoError(t, err)

	assert.Contains(t, out, "Email sent successfully.")
	assert.Contains(t, out, "hostinger/legalvala")
	assert.Contains(t, out, "from info@legalvala.com")
	assert.Contains(t, out, "to asha@example.com,info@legalvala.com")

	assert.Equal(t, 1, smtp.dials)
	assert.Equal(t, "info@legalvala.com", smtp.from)
	assert.Equal(t, []string{"asha@example.com", "info@legalvala.com"}, smtp.to)
	assert.Contains(t, smtp.raw.String(), "Asha|GST, Trademark|Pune")
}

func TestSendCmd_BadField(t *testing.T) {
	smtp := &captureSMTP{}
	_, err := runSend(t, smtp,
		"--provider", "hostinger", "--brand", "legalvala",
		"--name", "Asha", "--email", "asha@example.com", "--message", "hola",
		"--field", "city_location",
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected name=value")
	assert.Zero(t, smtp.dials)
}

func TestSendCmd_ValidationFailure(t *testing.T) {
	smtp := &captureSMTP{}
	_, err := runSend(t, smtp,
		"--provider", "hostinger", "--brand", "legalvala",
		"--email", "asha@example.com", "--message", "hola",
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name: field required")
	assert.Zero(t, smtp.dials)
}

func TestSendCmd_UnknownProvider(t *testing.T) {
	smtp := &captureSMTP{}
	_, err := runSend(t, smtp,
		"--provider", "nope", "--brand", "legalvala",
		"--name", "Asha", "--email", "asha@example.com", "--message", "hola",
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider 'nope' not found")
	assert.Zero(t, smtp.dials)
}
