package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/rightvendors/portfolyze/internal/server"

type httpMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

func newHTTPMetrics(meter metric.Meter) (*httpMetrics, error) {
	requests, err := meter.Int64Counter("http.server.request.count",
		metric.WithDescription("Total HTTP requests"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}
	duration, err := meter.Float64Histogram("http.server.request.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}
	errs, err := meter.Int64Counter("http.server.error.count",
		metric.WithDescription("HTTP responses with status >= 400"),
		metric.WithUnit("{error}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}
	return &httpMetrics{requests: requests, duration: duration, errors: errs}, nil
}

// MonitoringMiddleware traces each request and records request count, duration and error count
// labelled by method, route pattern and status. nil providers fall back to the otel globals.
func MonitoringMiddleware(logger *zap.Logger, mp metric.MeterProvider, tp trace.TracerProvider) echo.MiddlewareFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	m, err := newHTTPMetrics(mp.Meter(instrumentationName))
	if err != nil {
		logger.Error("Failed to initialize metrics", zap.Error(err))
	}
	tracer := tp.Tracer(instrumentationName)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			r := c.Request()
			ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path, trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()
			c.SetRequest(r.WithContext(ctx))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			route := c.Path()
			status := c.Response().Status
			elapsed := time.Since(start)
			span.SetName(r.Method + " " + route)
			span.SetAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("http.user_agent", r.UserAgent()),
				attribute.Int("http.status_code", status),
			)
			attrs := metric.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.Int("http.status_code", status),
			)
			if m != nil {
				m.requests.Add(ctx, 1, attrs)
				m.duration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
			}

			if status >= http.StatusBadRequest {
				if m != nil {
					m.errors.Add(ctx, 1, attrs)
				}
				span.SetStatus(codes.Error, http.StatusText(status))
				logger.Warn("HTTP request error",
					zap.String("method", r.Method),
					zap.String("route", route),
					zap.Int("status", status),
					zap.Duration("duration", elapsed),
				)
			} else {
				span.SetStatus(codes.Ok, "OK")
				logger.Info("HTTP request completed",
					zap.String("method", r.Method),
					zap.String("route", route),
					zap.Int("status", status),
					zap.Duration("duration", elapsed),
				)
			}
			return err
		}
	}
}
