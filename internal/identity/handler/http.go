// Package handler exposes phone sign-in, sessions and the profile over HTTP.
package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rightvendors/portfolyze/internal/api"
	"github.com/rightvendors/portfolyze/internal/identity/domain"
	"github.com/rightvendors/portfolyze/internal/identity/service"
	"github.com/rightvendors/portfolyze/internal/server/apierror"
	"github.com/rightvendors/portfolyze/internal/server/interceptors"
)

// Handler serves /verifications, /sessions and /me.
type Handler struct {
	auth *service.PhoneAuthService
}

// NewHandler returns a Handler for auth.
func NewHandler(auth *service.PhoneAuthService) *Handler {
	return &Handler{auth: auth}
}

// RegisterRoutes mounts the routes on g; /me routes go through requireAuth.
func (h *Handler) RegisterRoutes(g *echo.Group, requireAuth echo.MiddlewareFunc) {
	g.POST("/verifications", h.SendCode)
	g.POST("/verifications/confirm", h.Confirm)
	g.POST("/sessions/refresh", h.Refresh)
	g.POST("/sessions/logout", h.Logout)
	g.GET("/me", h.Me, requireAuth)
	g.PATCH("/me", h.UpdateProfile, requireAuth)
}

func (h *Handler) SendCode(c echo.Context) error {
	var body api.SendCodeRequest
	if err := c.Bind(&body); err != nil {
		return apierror.BadRequest("invalid request body")
	}
	ctx := c.Request().Context()
	res, err := h.auth.SendCode(ctx, body.PhoneNumber, body.ChallengeToken, interceptors.GetClientIP(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, api.SendCodeResponse{Handle: res.Handle, ExpiresAt: res.ExpiresAt})
}

func (h *Handler) Confirm(c echo.Context) error {
	var body api.ConfirmCodeRequest
	if err := c.Bind(&body); err != nil {
		return apierror.BadRequest("invalid request body")
	}
	ctx := c.Request().Context()
	res, err := h.auth.Confirm(ctx, body.Handle, body.Code, interceptors.GetClientIP(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, authResponse(res))
}

func (h *Handler) Refresh(c echo.Context) error {
	var body api.RefreshRequest
	if err := c.Bind(&body); err != nil {
		return apierror.BadRequest("invalid request body")
	}
	res, err := h.auth.Refresh(c.Request().Context(), body.RefreshToken)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, authResponse(res))
}

func (h *Handler) Logout(c echo.Context) error {
	var body api.RefreshRequest
	if err := c.Bind(&body); err != nil {
		return apierror.BadRequest("invalid request body")
	}
	if err := h.auth.Logout(c.Request().Context(), body.RefreshToken); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Me(c echo.Context) error {
	ident, err := h.auth.Me(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toIdentity(ident))
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	var body api.UpdateProfileRequest
	if err := c.Bind(&body); err != nil {
		return apierror.BadRequest("invalid request body")
	}
	ident, err := h.auth.UpdateDisplayName(c.Request().Context(), body.DisplayName)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toIdentity(ident))
}

func authResponse(res *service.AuthResult) api.AuthResponse {
	return api.AuthResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresAt:    res.ExpiresAt,
		Identity:     toIdentity(res.Identity),
		IsNew:        res.IsNew,
	}
}

func toIdentity(i *domain.Identity) api.Identity {
	return api.Identity{
		UID:          i.ID,
		PhoneNumber:  i.Phone,
		DisplayName:  i.DisplayName,
		CreatedAt:    i.CreatedAt,
		LastSignInAt: i.LastSignInAt,
	}
}
