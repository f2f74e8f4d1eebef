// Package handler serves dev-mode OTPs. It is only mounted when codes are not sent by SMS.
package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/rightvendors/portfolyze/internal/api"
	"github.com/rightvendors/portfolyze/internal/devotp"
	"github.com/rightvendors/portfolyze/internal/server/apierror"
)

const devNote = "DEV MODE ONLY"

// Handler serves GET /dev/otp.
type Handler struct {
	store devotp.Store
}

// NewHandler returns a Handler reading from store.
func NewHandler(store devotp.Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(g *echo.Group, _ echo.MiddlewareFunc) {
	g.GET("/dev/otp", h.GetOTP)
}

// GetOTP returns the plain code for ?handle=. Unknown or expired handles are 404.
func (h *Handler) GetOTP(c echo.Context) error {
	handle := strings.TrimSpace(c.QueryParam("handle"))
	if handle == "" {
		return apierror.BadRequest("handle is required")
	}
	otp, ok := h.store.Get(c.Request().Context(), handle)
	if !ok {
		return apierror.New(http.StatusNotFound, apierror.CodeNotFound, "no code for handle")
	}
	return c.JSON(http.StatusOK, api.DevOTPResponse{OTP: otp, Note: devNote})
}
