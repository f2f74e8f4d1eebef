package interceptors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
)

type recordedEvent struct {
	userID, action, resource string
}

type fakeAuditLogger struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeAuditLogger) LogEvent(_ context.Context, userID, action, resource, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{userID, action, resource})
}

func withTestIdentity(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.Request().Header.Get("X-Test-User") != "" {
			req := c.Request()
			c.SetRequest(req.WithContext(WithIdentity(req.Context(), req.Header.Get("X-Test-User"), "s1")))
		}
		return next(c)
	}
}

func TestAudit(t *testing.T) {
	logger := &fakeAuditLogger{}
	e := echo.New()
	e.Use(Audit(logger, map[string]bool{"PATCH /v1/me": true}))
	ok := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	e.GET("/v1/me", ok, withTestIdentity)
	e.PATCH("/v1/me", ok, withTestIdentity)
	e.GET("/v1/me/audit", ok, withTestIdentity)
	e.POST("/v1/verifications", ok)

	do := func(method, path, user string) {
		req := httptest.NewRequest(method, path, nil)
		if user != "" {
			req.Header.Set("X-Test-User", user)
		}
		e.ServeHTTP(httptest.NewRecorder(), req)
	}
	do(http.MethodGet, "/v1/me", "user-1")
	do(http.MethodPatch, "/v1/me", "user-1")
	do(http.MethodGet, "/v1/me/audit", "user-1")
	do(http.MethodPost, "/v1/verifications", "")

	want := []recordedEvent{
		{"user-1", "get", "identity"},
		{"user-1", "list", "audit"},
	}
	if len(logger.events) != len(want) {
		t.Fatalf("got %d events (%v), want %d", len(logger.events), logger.events, len(want))
	}
	for i, w := range want {
		if logger.events[i] != w {
			t.Errorf("event %d = %+v, want %+v", i, logger.events[i], w)
		}
	}
}

func TestAudit_NilLogger(t *testing.T) {
	e := echo.New()
	e.Use(Audit(nil, nil))
	e.GET("/v1/me", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, withTestIdentity)
	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("X-Test-User", "user-1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
