package interceptors

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/rightvendors/portfolyze/internal/security"
)

const bearerPrefix = "bearer "

// ClientIP stores the caller's address (echo RealIP: X-Forwarded-For, X-Real-IP, then remote addr)
// in the request context for the audit logger and the rate limiter.
func ClientIP() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			c.SetRequest(req.WithContext(WithClientIP(req.Context(), c.RealIP())))
			return next(c)
		}
	}
}

// RequireAuth validates the Bearer access token and sets user_id and session_id in the request
// context. Requests without a valid token are rejected with 401.
func RequireAuth(tokens *security.TokenProvider) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := extractBearer(c.Request().Header.Get(echo.HeaderAuthorization))
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing or invalid authorization")
			}
			sessionID, userID, err := tokens.ValidateAccess(token)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing or invalid authorization")
			}
			req := c.Request()
			c.SetRequest(req.WithContext(WithIdentity(req.Context(), userID, sessionID)))
			return next(c)
		}
	}
}

// extractBearer returns the token of an "Authorization: Bearer <token>" header, or "".
func extractBearer(header string) string {
	v := strings.TrimSpace(header)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
