package email

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	mail "github.com/go-mail/mail"
	"github.com/stretchr/testify/require"
)

// fakeSession records what the dispatcher hands to the SMTP session.
type fakeSession struct {
	mu       sync.Mutex
	from     string
	to       []string
	raw      bytes.Buffer
	sendErr  error
	closeErr error
	sends    int
	closed   bool
}

func (s *fakeSession) Send(from string, to []string, msg io.WriterTo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends++
	s.from = from
	s.to = append([]string(nil), to...)
	if _, err := msg.WriteTo(&s.raw); err != nil {
		return err
	}
	return s.sendErr
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.closeErr
}

type fakeDialer struct {
	sess *fakeSession
	err  error
}

func (d fakeDialer) Dial() (mail.SendCloser, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.sess, nil
}

// fakeSMTP counts dials and remembers the identity of the last one.
type fakeSMTP struct {
	mu      sync.Mutex
	sess    *fakeSession
	dialErr error
	dials   int
	last    Identity
}

func newFakeSMTP() *fakeSMTP { return &fakeSMTP{sess: &fakeSession{}} }

func (f *fakeSMTP) Dial(id Identity) Dialer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials++
	f.last = id
	return fakeDialer{sess: f.sess, err: f.dialErr}
}

func (f *fakeSMTP) Dials() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

// writeTemplates creates a template root holding files name → body.
func writeTemplates(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	return dir
}

// sampleTable mirrors the production provider table closely enough for the
// sender and recipient assertions.
func sampleTable() map[string]map[string]Identity {
	return map[string]map[string]Identity{
		"hostinger": {
			"legalvala": {
				Host:     "smtp.hostinger.com",
				Port:     587,
				Username: "relay@legalvala.com",
				Password: "secret",
				Auth:     true,
				StartTLS: true,
				BCC:      []string{"thebrcexplorers@gmail.com", "info@legalvala.com"},
				Template: "legalvala_template.html",
			},
			"default": {
				Host:     "smtp.hostinger.com",
				Username: "contact@startfinity.in",
				Password: "secret",
				Auth:     true,
				StartTLS: true,
				Template: "startfinity_template.html",
			},
		},
		"gmail": {
			"PowerBird": {
				Host:     "smtp.gmail.com",
				Username: "shared.mailbox@gmail.com",
				Auth:     true,
				StartTLS: true,
				BCC:      []string{"sales@powerbird.in"},
				Template: "powerbird_template.html",
			},
			"brchub": {
				Host:     "smtp.gmail.com",
				Username: "shared.mailbox@gmail.com",
				Auth:     true,
				StartTLS: true,
				Template: "brchub_v2.html",
			},
		},
	}
}

func sampleTemplates() map[string]string {
	return map[string]string{
		"legalvala_template.html":   `<p>Hello {{.name}}</p><p>{{.message}}</p><p>Services {{.services}}</p>`,
		"startfinity_template.html": `<p>Startfinity {{.name}}</p>`,
		"powerbird_template.html":   `<p>Powerbird {{.name}} {{.mobile}}</p>{{range .field_extra_list}}<i>{{.Name}}</i>{{end}}`,
		"brchub_v2.html":            `<p>BRC {{.name}}</p>`,
	}
}
