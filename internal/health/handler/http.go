package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type healthzResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthz is the GET /healthz handler: 200 {"status":"ok"} when every dependency answers,
// 503 with per-check errors otherwise.
func (s *Server) Healthz(c echo.Context) error {
	results := s.run(c.Request().Context())
	resp := healthzResponse{Status: "ok"}
	for name, err := range results {
		if err == nil {
			continue
		}
		if resp.Checks == nil {
			resp.Checks = make(map[string]string)
		}
		resp.Checks[name] = err.Error()
		resp.Status = "unavailable"
	}
	if resp.Status != "ok" {
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}
