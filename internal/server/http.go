// Package server assembles the HTTP (echo) and gRPC servers.
package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rightvendors/portfolyze/internal/api"
	"github.com/rightvendors/portfolyze/internal/audit"
	healthhandler "github.com/rightvendors/portfolyze/internal/health/handler"
	"github.com/rightvendors/portfolyze/internal/security"
	"github.com/rightvendors/portfolyze/internal/server/apierror"
	"github.com/rightvendors/portfolyze/internal/server/interceptors"
	"github.com/rightvendors/portfolyze/internal/telemetry"
)

const bodyLimit = "64K"

// Routes is implemented by every domain HTTP handler.
type Routes interface {
	RegisterRoutes(g *echo.Group, requireAuth echo.MiddlewareFunc)
}

// HTTPDeps holds what NewEcho wires into the middleware chain.
type HTTPDeps struct {
	Logger *zap.Logger
	Tokens *security.TokenProvider
	// Health serves GET /healthz. If nil, the route is not mounted.
	Health *healthhandler.Server
	// Audit records an entry per authenticated request. If nil, nothing is audited by the middleware.
	Audit     audit.AuditLogger
	Telemetry telemetry.EventEmitter
	// nil providers fall back to the otel globals.
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
	Routes         []Routes
}

// auditSkipRoutes are audited by the service with a more specific action.
var auditSkipRoutes = map[string]bool{
	http.MethodPatch + " " + api.Prefix + "/me": true,
}

var telemetrySkipRoutes = map[string]bool{
	"/healthz": true,
}

// NewEcho returns the echo instance serving /healthz and the /v1 API.
//
// Middleware order: recover → body limit → monitoring → client IP → telemetry → audit → route (→ auth).
func NewEcho(d HTTPDeps) *echo.Echo {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apierror.Handler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(bodyLimit))
	e.Use(MonitoringMiddleware(logger, d.MeterProvider, d.TracerProvider))
	e.Use(interceptors.ClientIP())
	e.Use(interceptors.Telemetry(d.Telemetry, telemetrySkipRoutes, logger))
	e.Use(interceptors.Audit(d.Audit, auditSkipRoutes))

	if d.Health != nil {
		e.GET("/healthz", d.Health.Healthz)
	}
	requireAuth := interceptors.RequireAuth(d.Tokens)
	v1 := e.Group(api.Prefix)
	for _, r := range d.Routes {
		if r != nil {
			r.RegisterRoutes(v1, requireAuth)
		}
	}
	return e
}

// NewHTTPServer wraps h with CORS for allowedOrigins (all origins when empty) and returns the server for addr.
func NewHTTPServer(addr string, allowedOrigins []string, h http.Handler) *http.Server {
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         7200,
	})
	return &http.Server{
		Addr:              addr,
		Handler:           c.Handler(h),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}
}
