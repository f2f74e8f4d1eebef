// Package handler exposes challenge widgets over HTTP.
package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rightvendors/portfolyze/internal/api"
	"github.com/rightvendors/portfolyze/internal/captcha"
	"github.com/rightvendors/portfolyze/internal/server/apierror"
)

// Handler serves /challenges.
type Handler struct {
	registry *captcha.Registry
}

// NewHandler returns a challenge Handler backed by registry.
func NewHandler(registry *captcha.Registry) *Handler {
	return &Handler{registry: registry}
}

// RegisterRoutes mounts the challenge routes on g. Challenges are public.
func (h *Handler) RegisterRoutes(g *echo.Group, _ echo.MiddlewareFunc) {
	g.POST("/challenges", h.Create)
	g.POST("/challenges/:id/render", h.Render)
	g.DELETE("/challenges/:id", h.Dispose)
}

func (h *Handler) Create(c echo.Context) error {
	var body api.CreateChallengeRequest
	if err := c.Bind(&body); err != nil {
		return apierror.BadRequest("invalid request body")
	}
	w, err := h.registry.Create(c.Request().Context(), body.ContainerID, body.Size)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, api.CreateChallengeResponse{WidgetID: w.ID})
}

func (h *Handler) Render(c echo.Context) error {
	token, expiresAt, err := h.registry.Render(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, api.RenderChallengeResponse{Token: token, ExpiresAt: expiresAt})
}

func (h *Handler) Dispose(c echo.Context) error {
	if err := h.registry.Dispose(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
