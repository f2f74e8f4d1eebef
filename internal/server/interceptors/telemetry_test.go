package interceptors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rightvendors/portfolyze/internal/telemetry/domain"
)

type chanEmitter struct {
	ch chan *domain.AuthEvent
}

func (c *chanEmitter) Emit(_ context.Context, e *domain.AuthEvent) error {
	c.ch <- e
	return nil
}

func TestTelemetry_EmitsHTTPRequest(t *testing.T) {
	em := &chanEmitter{ch: make(chan *domain.AuthEvent, 4)}
	e := echo.New()
	e.Use(ClientIP(), Telemetry(em, map[string]bool{"/healthz": true}, nil))
	e.GET("/healthz", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/v1/me", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusUnauthorized, "nope")
	})

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	select {
	case ev := <-em.ch:
		if ev.EventType != domain.EventHTTPRequest || ev.Outcome != "failure" {
			t.Errorf("event = %+v", ev)
		}
		var meta httpRequestMetadata
		if err := json.Unmarshal(ev.Metadata, &meta); err != nil {
			t.Fatal(err)
		}
		if meta.Route != "/v1/me" || meta.StatusCode != http.StatusUnauthorized || meta.Method != http.MethodGet {
			t.Errorf("metadata = %+v", meta)
		}
		if meta.ClientIP == "" {
			t.Error("client ip not recorded")
		}
	case <-time.After(time.Second):
		t.Fatal("no event emitted")
	}
	select {
	case ev := <-em.ch:
		t.Errorf("unexpected extra event for %s", ev.Metadata)
	case <-time.After(50 * time.Millisecond):
	}
}
