package interceptors

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/rightvendors/portfolyze/internal/telemetry"
	"github.com/rightvendors/portfolyze/internal/telemetry/domain"
)

// httpRequestMetadata is the JSON shape stored in AuthEvent.Metadata for http_request events.
type httpRequestMetadata struct {
	Method     string `json:"method"`
	Route      string `json:"route"`
	StatusCode int    `json:"status_code"`
	DurationMs int64  `json:"duration_ms"`
	ClientIP   string `json:"client_ip"`
}

// Telemetry returns a middleware that emits an http_request event after each request.
// Best-effort: failures are logged and do not fail the request. If emitter is nil, the middleware no-ops.
// skipRoutes is the set of route patterns to not emit (e.g. /healthz).
func Telemetry(emitter telemetry.EventEmitter, skipRoutes map[string]bool, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if emitter == nil || skipRoutes[c.Path()] {
				return err
			}
			if err != nil {
				// Write the error now so the status below is final; the error handler skips committed responses.
				c.Error(err)
			}
			status := c.Response().Status
			ctx := c.Request().Context()
			meta, _ := json.Marshal(httpRequestMetadata{
				Method:     c.Request().Method,
				Route:      c.Path(),
				StatusCode: status,
				DurationMs: time.Since(start).Milliseconds(),
				ClientIP:   GetClientIP(ctx),
			})
			userID, _ := GetUserID(ctx)
			sessionID, _ := GetSessionID(ctx)
			outcome := "success"
			if status >= http.StatusBadRequest {
				outcome = "failure"
			}
			telemetry.EmitAsync(emitter, &domain.AuthEvent{
				UserID:    userID,
				SessionID: sessionID,
				EventType: domain.EventHTTPRequest,
				Source:    "http_middleware",
				Outcome:   outcome,
				Metadata:  meta,
			}, logger)
			return err
		}
	}
}
