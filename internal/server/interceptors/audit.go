package interceptors

import (
	"github.com/labstack/echo/v4"

	"github.com/rightvendors/portfolyze/internal/audit"
)

// Audit returns a middleware that records an audit entry after each authenticated request.
// skipRoutes holds "METHOD /route" keys (echo route patterns) that are not audited, typically
// because the service already writes a more specific entry. Writes are best-effort.
func Audit(logger audit.AuditLogger, skipRoutes map[string]bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if logger == nil {
				return err
			}
			method := c.Request().Method
			route := c.Path()
			if skipRoutes[method+" "+route] {
				return err
			}
			ctx := c.Request().Context()
			userID, _ := GetUserID(ctx)
			if userID == "" {
				return err
			}
			ar := audit.ParseRoute(method, route)
			logger.LogEvent(ctx, userID, ar.Action, ar.Resource, "")
			return err
		}
	}
}
