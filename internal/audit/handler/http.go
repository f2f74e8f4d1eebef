// Package handler lists the caller's audit trail over HTTP.
package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/rightvendors/portfolyze/internal/api"
	auditrepo "github.com/rightvendors/portfolyze/internal/audit/repository"
	"github.com/rightvendors/portfolyze/internal/server/apierror"
	"github.com/rightvendors/portfolyze/internal/server/interceptors"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Handler serves GET /me/audit.
type Handler struct {
	repo auditrepo.Repository
}

// NewHandler returns a Handler reading from repo.
func NewHandler(repo auditrepo.Repository) *Handler {
	return &Handler{repo: repo}
}

// RegisterRoutes mounts the audit route behind requireAuth.
func (h *Handler) RegisterRoutes(g *echo.Group, requireAuth echo.MiddlewareFunc) {
	g.GET("/me/audit", h.List, requireAuth)
}

// List returns the caller's audit entries, newest first. Query: limit (1..200, default 50), offset.
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := interceptors.GetUserID(ctx)
	if !ok || userID == "" {
		return echo.ErrUnauthorized
	}
	limit, err := intParam(c, "limit", defaultPageSize)
	if err != nil {
		return err
	}
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset, err := intParam(c, "offset", 0)
	if err != nil {
		return err
	}
	if offset < 0 {
		offset = 0
	}
	logs, err := h.repo.ListByUser(ctx, userID, int32(limit), int32(offset))
	if err != nil {
		return err
	}
	resp := api.AuditListResponse{Entries: make([]api.AuditEntry, 0, len(logs))}
	for _, l := range logs {
		resp.Entries = append(resp.Entries, api.AuditEntry{
			ID:        l.ID,
			Action:    l.Action,
			Resource:  l.Resource,
			IP:        l.IP,
			Metadata:  l.Metadata,
			CreatedAt: l.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func intParam(c echo.Context, name string, def int) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apierror.BadRequest(name + " must be an integer")
	}
	return n, nil
}
