package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"wsbridge-go/internal/config"
	"wsbridge-go/internal/service"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
	bridge  *service.Bridge
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version, b *service.Bridge) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v, bridge: b}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns bridge status information.
func (h *HealthHandler) Status(c echo.Context) error {
	active := 0
	if h.bridge != nil {
		active = h.bridge.Active()
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":          "ok",
		"version":         string(h.version),
		"target_url":      h.cfg.Target.URL,
		"active_sessions": active,
	})
}
