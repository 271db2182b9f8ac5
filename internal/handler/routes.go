package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wsbridge-go/internal/config"
	"wsbridge-go/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance. Every path
// not claimed by an operational route is bridged.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, m *metrics.Metrics, bridge *BridgeHandler, health *HealthHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)

	if cfg.Metrics.Enabled && m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	e.Any("/*", bridge.Handle)
}
