package app

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/quotedprintable"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	mail "github.com/go-mail/mail"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satish603/MailPorter/internal/config"
	"github.com/satish603/MailPorter/internal/email"
	"github.com/satish603/MailPorter/internal/rate"
)

const testConfig = `
api_key: test-key
server:
  cors_allowed_origins: ["https://legalvala.com"]
templates:
  dir: tpl
smtp_servers:
  hostinger:
    legalvala:
      host: smtp.hostinger.com
      port: 465
      username: relay@legalvala.com
      password: pw
      bcc_list: [thebrcexplorers@gmail.com, info@legalvala.com]
      template: legalvala_template.html
  gmail:
    default:
      host: smtp.gmail.com
      username: someone@gmail.com
      password: pw
      template: gmail_template.html
rate:
  enabled: true
  limit: 3
  window: 1m
metrics:
  enabled: true
`

// recordingSMTP captura cada sesión abierta.
type recordingSMTP struct {
	mu    sync.Mutex
	dials []email.Identity
	sends []sentMessage
}

type sentMessage struct {
	from string
	to   []string
	raw  string
}

func (s *recordingSMTP) dial(id email.Identity) email.Dialer { return dialerFunc{s: s, id: id} }

func (s *recordingSMTP) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dials)
}

type dialerFunc struct {
	s  *recordingSMTP
	id email.Identity
}

func (d dialerFunc) Dial() (mail.SendCloser, error) {
	d.s.mu.Lock()
	d.s.dials = append(d.s.dials, d.id)
	d.s.mu.Unlock()
	return session{s: d.s}, nil
}

type session struct{ s *recordingSMTP }

func (c session) Send(from string, to []string, msg io.WriterTo) error {
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return err
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.sends = append(c.s.sends, sentMessage{from: from, to: append([]string(nil), to...), raw: decodeBody(buf.String())})
	return nil
}

// decodeBody deshace el quoted-printable del body para poder buscar texto
// sin cortes de línea suaves.
func decodeBody(raw string) string {
	head, body, ok := strings.Cut(raw, "\r\n\r\n")
	if !ok {
		return raw
	}
	dec, err := io.ReadAll(quotedprintable.NewReader(strings.NewReader(body)))
	if err != nil {
		return raw
	}
	return head + "\r\n\r\n" + string(dec)
}

func (session) Close() error { return nil }

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"API_KEY", "APP_ENV", "SERVER_ADDR", "SERVER_PORT", "CORS_ALLOWED_ORIGINS",
		"TEMPLATES_DIR", "SMTP_TIMEOUT", "RATE_ENABLED", "REDIS_ADDR", "REDIS_PASSWORD", "METRICS_ENABLED",
		"TRUSTED_PROXIES"} {
		t.Setenv(k, "")
	}
}

func newTestApp(t *testing.T) (*App, *recordingSMTP) {
	t.Helper()
	return newTestAppWith(t, testConfig)
}

func newTestAppWith(t *testing.T, yamlBody string) (*App, *recordingSMTP) {
	t.Helper()
	clearEnv(t)

	cfg, err := config.Load(writeAppConfig(t, yamlBody))
	require.NoError(t, err)

	smtp := &recordingSMTP{}
	a, err := New(cfg, WithDialer(smtp.dial), WithRegistry(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, smtp
}

// writeAppConfig escribe yamlBody y los templates de testConfig en un dir temporal.
func writeAppConfig(t *testing.T, yamlBody string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "tpl"), 0o755))
	tpls := map[string]string{
		"legalvala_template.html": `<p>Hello {{.name}}</p><p>{{.message}}</p><p>{{default "-" .services}}</p><p>{{.fields.city_location}}</p>`,
		"gmail_template.html":     `<p>{{.name}}</p>`,
	}
	for name, body := range tpls {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "tpl", name), []byte(body), 0o600))
	}
	p := filepath.Join(dir, "mailporter.yaml")
	require.NoError(t, os.WriteFile(p, []byte(yamlBody), 0o600))
	return p
}

func post(h http.Handler, provider, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/email/send-email/"+provider, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const legalvalaBody = `{"name":"Asha","email":"asha@example.com","message":"Need GST help","brand":"legalvala","services":["GST ","","Trademark"],"city_location":"Pune"}`

func TestSendEmail_LegalvalaEndToEnd(t *testing.T) {
	a, smtp := newTestApp(t)

	rec := post(a.Handler, "hostinger", "test-key", legalvalaBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"success","message":"Email sent successfully."}`, rec.Body.String())

	require.Len(t, smtp.sends, 1)
	sent := smtp.sends[0]
	assert.Equal(t, "info@legalvala.com", sent.from)
	assert.Equal(t, []string{"asha@example.com", "thebrcexplorers@gmail.com", "info@legalvala.com"}, sent.to)
	assert.Equal(t, "relay@legalvala.com", smtp.dials[0].Username)
	assert.Equal(t, 465, smtp.dials[0].Port)
	assert.Contains(t, sent.raw, "Subject: Thank you for contacting our business")
	assert.Contains(t, sent.raw, "Hello Asha")
	assert.Contains(t, sent.raw, "GST, Trademark")
	assert.Contains(t, sent.raw, "Pune")
}

func TestSendEmail_UnknownProvider(t *testing.T) {
	a, smtp := newTestApp(t)

	rec := post(a.Handler, "unknownprovider", "test-key", legalvalaBody)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["detail"], "unknownprovider")
	assert.Zero(t, smtp.Dials())
}

func TestSendEmail_WrongAPIKeyNeverDials(t *testing.T) {
	a, smtp := newTestApp(t)

	for _, key := range []string{"", "wrong", "test-key2"} {
		rec := post(a.Handler, "hostinger", key, legalvalaBody)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "Could not validate API key")
	}
	assert.Zero(t, smtp.Dials())
}

func TestSendEmail_BrandFallsBackToDefault(t *testing.T) {
	a, smtp := newTestApp(t)

	body := strings.Replace(legalvalaBody, `"brand":"legalvala"`, `"brand":"NotConfigured"`, 1)
	rec := post(a.Handler, "gmail", "test-key", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "someone@gmail.com", smtp.sends[0].from)
}

func TestSendEmail_EmptySenderOverridesUseUsername(t *testing.T) {
	a, smtp := newTestAppWith(t, testConfig+"sender_overrides: []\n")

	rec := post(a.Handler, "hostinger", "test-key", legalvalaBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "relay@legalvala.com", smtp.sends[0].from)
}

func TestSendEmail_RateLimited(t *testing.T) {
	a, _ := newTestApp(t)

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, post(a.Handler, "hostinger", "test-key", legalvalaBody).Code)
	}
	rec := post(a.Handler, "hostinger", "test-key", legalvalaBody)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestSendEmail_RateLimitIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	a, smtp := newTestApp(t)

	send := func(xff string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/email/send-email/hostinger", strings.NewReader(legalvalaBody))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-Key", "test-key")
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		a.Handler.ServeHTTP(rec, req)
		return rec.Code
	}
	for i, xff := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
		require.Equal(t, http.StatusOK, send(xff), "request %d", i)
	}
	assert.Equal(t, http.StatusTooManyRequests, send("4.4.4.4"))
	assert.Equal(t, 3, smtp.Dials())
}

func TestSendEmail_RateLimitHonoursTrustedProxy(t *testing.T) {
	cfg := strings.Replace(testConfig, `  cors_allowed_origins: ["https://legalvala.com"]`,
		"  cors_allowed_origins: [\"https://legalvala.com\"]\n  trusted_proxies: [192.0.2.0/24]", 1)
	a, _ := newTestAppWith(t, cfg)

	// httptest usa 192.0.2.1 como peer: cada cliente detrás del proxy tiene su cuenta
	for _, xff := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3", "4.4.4.4", "5.5.5.5"} {
		req := httptest.NewRequest(http.MethodPost, "/api/email/send-email/hostinger", strings.NewReader(legalvalaBody))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-Key", "test-key")
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		a.Handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, xff)
	}
}

func TestNew_RejectsBadTrustedProxy(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load(writeAppConfig(t, strings.Replace(testConfig, `  cors_allowed_origins: ["https://legalvala.com"]`,
		"  cors_allowed_origins: [\"https://legalvala.com\"]\n  trusted_proxies: [nope]", 1)))
	require.NoError(t, err)

	_, err = New(cfg, WithDialer((&recordingSMTP{}).dial), WithRegistry(prometheus.NewRegistry()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trusted_proxies")
}

func TestHealthAndMetrics(t *testing.T) {
	a, _ := newTestApp(t)
	require.Equal(t, http.StatusOK, post(a.Handler, "hostinger", "test-key", legalvalaBody).Code)

	rec := httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var ready map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ready))
	assert.Equal(t, "ready", ready["status"])
	assert.EqualValues(t, 2, ready["providers"])
	assert.EqualValues(t, 2, ready["identities"])

	rec = httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `mailporter_dispatch_total{brand="legalvala",outcome="sent",provider="hostinger"} 1`)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="POST",route="/api/email/send-email/{provider}",status="200"} 1`)
	assert.Contains(t, rec.Body.String(), "mailporter_identities_configured 2")
}

func TestCORSPreflight(t *testing.T) {
	a, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/email/send-email/hostinger", nil)
	req.Header.Set("Origin", "https://legalvala.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type, x-api-key")
	rec := httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://legalvala.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNotFound(t *testing.T) {
	a, _ := newTestApp(t)
	rec := httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")
}

func TestNew_FailsOnMissingTemplate(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "tpl"), 0o755))
	p := filepath.Join(dir, "mailporter.yaml")
	require.NoError(t, os.WriteFile(p, []byte(testConfig), 0o600))

	cfg, err := config.Load(p)
	require.NoError(t, err)
	_, err = New(cfg)
	require.ErrorIs(t, err, email.ErrTemplateNotFound)
}

func TestNew_ShippedConfigAndTemplates(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_KEY", "shipped-key")

	cfg, err := config.Load(filepath.Join("..", "..", "config", "mailporter.yaml"))
	require.NoError(t, err)

	smtp := &recordingSMTP{}
	a, err := New(cfg, WithDialer(smtp.dial), WithRegistry(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.Equal(t, []string{"gmail", "hostinger", "newprovider", "privateemail"}, a.Registry.Providers())
	assert.Len(t, a.Registry.Identities(), 9)
	_, isMemory := a.Limiter.(*rate.MemoryLimiter)
	assert.True(t, isMemory)

	body := `{"name":"Ravi","email":"ravi@example.com","message":"Need 2 lifts","brand":"PowerBird","city_location":"Pune","no_of_lifts":2,"site_visit":"yes"}`
	rec := post(a.Handler, "gmail", "shipped-key", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Len(t, smtp.sends, 1)
	sent := smtp.sends[0]
	assert.Equal(t, "info@thebrchub.tech", sent.from)
	assert.Equal(t, []string{"ravi@example.com"}, sent.to)
	assert.Contains(t, sent.raw, "Subject: New Inquiry from PowerBird Elevators Website")
	assert.Contains(t, sent.raw, "Pune")
	assert.Contains(t, sent.raw, "site_visit")
}
