// Package servertest runs the /v1 HTTP API on in-memory stores with dev OTP enabled.
package servertest

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rightvendors/portfolyze/internal/audit"
	audithandler "github.com/rightvendors/portfolyze/internal/audit/handler"
	auditrepo "github.com/rightvendors/portfolyze/internal/audit/repository"
	"github.com/rightvendors/portfolyze/internal/captcha"
	captchahandler "github.com/rightvendors/portfolyze/internal/captcha/handler"
	"github.com/rightvendors/portfolyze/internal/contact"
	contacthandler "github.com/rightvendors/portfolyze/internal/contact/handler"
	contactrepo "github.com/rightvendors/portfolyze/internal/contact/repository"
	"github.com/rightvendors/portfolyze/internal/devotp"
	devotphandler "github.com/rightvendors/portfolyze/internal/devotp/handler"
	healthhandler "github.com/rightvendors/portfolyze/internal/health/handler"
	identityhandler "github.com/rightvendors/portfolyze/internal/identity/handler"
	identityrepo "github.com/rightvendors/portfolyze/internal/identity/repository"
	"github.com/rightvendors/portfolyze/internal/identity/service"
	mfarepo "github.com/rightvendors/portfolyze/internal/mfa/repository"
	"github.com/rightvendors/portfolyze/internal/ratelimit"
	"github.com/rightvendors/portfolyze/internal/security"
	"github.com/rightvendors/portfolyze/internal/server"
	"github.com/rightvendors/portfolyze/internal/server/interceptors"
	sessionrepo "github.com/rightvendors/portfolyze/internal/session/repository"
)

// Stack is a running API with its stores exposed for assertions.
type Stack struct {
	Server     *httptest.Server
	Auth       *service.PhoneAuthService
	Tokens     *security.TokenProvider
	Health     *healthhandler.Server
	DevOTP     *devotp.MemoryStore
	Identities *identityrepo.MemoryRepository
	Sessions   *sessionrepo.MemoryRepository
	Audits     *auditrepo.MemoryRepository
	Contacts   *contactrepo.MemoryRepository
}

// URL is the base URL of the running server.
func (s *Stack) URL() string { return s.Server.URL }

// New starts the API with 15m access and 24h refresh tokens. The server is closed on cleanup.
func New(tb testing.TB) *Stack {
	tb.Helper()
	tp, err := security.NewTestTokenProvider()
	if err != nil {
		tb.Fatalf("token provider: %v", err)
	}
	return NewWithTokens(tb, tp)
}

// NewWithTokens is New with a caller-supplied token provider, e.g. one issuing expired access tokens.
func NewWithTokens(tb testing.TB, tp *security.TokenProvider) *Stack {
	tb.Helper()
	s := &Stack{
		Tokens:     tp,
		Health:     healthhandler.NewServer(nil, nil),
		DevOTP:     devotp.NewMemoryStore(),
		Identities: identityrepo.NewMemoryRepository(),
		Sessions:   sessionrepo.NewMemoryRepository(),
		Audits:     auditrepo.NewMemoryRepository(),
		Contacts:   contactrepo.NewMemoryRepository(),
	}
	auditLogger := audit.NewLogger(s.Audits, interceptors.GetClientIP, nil)
	widgets := captcha.NewRegistry(captcha.NewMemoryStore(), tp, 2*time.Minute, nil)
	s.Auth = service.NewPhoneAuthService(service.Deps{
		Verifications: mfarepo.NewMemoryRepository(),
		Identities:    s.Identities,
		Sessions:      s.Sessions,
		Challenges:    widgets,
		Hasher:        security.NewHasher(4),
		Tokens:        tp,
		Limiter:       ratelimit.NewMemory(),
		DevOTP:        s.DevOTP,
		Audit:         auditLogger,
	}, service.Options{})

	e := server.NewEcho(server.HTTPDeps{
		Tokens: tp,
		Health: s.Health,
		Audit:  auditLogger,
		Routes: []server.Routes{
			captchahandler.NewHandler(widgets),
			identityhandler.NewHandler(s.Auth),
			audithandler.NewHandler(s.Audits),
			contacthandler.NewHandler(contact.NewService(s.Contacts, nil, auditLogger, nil, nil)),
			devotphandler.NewHandler(s.DevOTP),
		},
	})
	s.Server = httptest.NewServer(e)
	tb.Cleanup(s.Server.Close)
	return s
}
