// Package handler accepts contact form submissions over HTTP.
package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rightvendors/portfolyze/internal/api"
	"github.com/rightvendors/portfolyze/internal/contact"
	"github.com/rightvendors/portfolyze/internal/contact/domain"
	"github.com/rightvendors/portfolyze/internal/server/apierror"
)

// Handler serves POST /contact.
type Handler struct {
	svc *contact.Service
}

// NewHandler returns a Handler for svc.
func NewHandler(svc *contact.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group, _ echo.MiddlewareFunc) {
	g.POST("/contact", h.Submit)
}

// Submit stores the message and answers 202; relaying happens inline but its failure does not fail the request.
func (h *Handler) Submit(c echo.Context) error {
	var body api.ContactRequest
	if err := c.Bind(&body); err != nil {
		return apierror.BadRequest("invalid request body")
	}
	m := &domain.Message{Name: body.Name, Email: body.Email, Company: body.Company, Message: body.Message}
	if err := h.svc.Submit(c.Request().Context(), m); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, api.ContactResponse{ID: m.ID, Relayed: m.Relayed})
}
