package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// mockPinger implements Pinger for tests.
type mockPinger struct {
	pingErr error
}

func (m *mockPinger) PingContext(context.Context) error {
	return m.pingErr
}

func TestCheck_NoDependencies(t *testing.T) {
	srv := NewServer(nil, nil)
	if err := srv.Check(context.Background()); err != nil {
		t.Fatalf("Check: %v", err)
	}
}

func TestCheck_NilPingerIgnored(t *testing.T) {
	srv := NewServer(map[string]Pinger{"database": nil}, nil)
	if err := srv.Check(context.Background()); err != nil {
		t.Fatalf("Check: %v", err)
	}
}

func TestCheck_JoinsFailures(t *testing.T) {
	srv := NewServer(map[string]Pinger{
		"database": &mockPinger{pingErr: errors.New("connection refused")},
		"redis":    PingFunc(func(context.Context) error { return errors.New("i/o timeout") }),
		"ok":       &mockPinger{},
	}, nil)
	err := srv.Check(context.Background())
	if err == nil {
		t.Fatal("Check should fail")
	}
	msg := err.Error()
	if !strings.Contains(msg, "database: connection refused") || !strings.Contains(msg, "redis: i/o timeout") {
		t.Errorf("error = %q", msg)
	}
	if strings.Contains(msg, "ok:") {
		t.Errorf("healthy check reported: %q", msg)
	}
}

func TestRefresh_PublishesStatus(t *testing.T) {
	db := &mockPinger{}
	srv := NewServer(map[string]Pinger{"database": db}, nil)
	ctx := context.Background()

	if err := srv.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	resp, err := srv.hs.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatal(err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", resp.GetStatus())
	}

	db.pingErr = errors.New("down")
	if err := srv.Refresh(ctx); err == nil {
		t.Fatal("Refresh should report the failure")
	}
	resp, err = srv.hs.Check(ctx, &healthpb.HealthCheckRequest{Service: ""})
	if err != nil {
		t.Fatal(err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status = %v, want NOT_SERVING", resp.GetStatus())
	}
}

func TestHealthz(t *testing.T) {
	db := &mockPinger{}
	srv := NewServer(map[string]Pinger{"database": db}, nil)
	e := echo.New()
	e.GET("/healthz", srv.Healthz)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}

	db.pingErr = errors.New("connection refused")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"database":"connection refused"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}
