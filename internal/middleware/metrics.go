package middleware

import (
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"wsbridge-go/internal/metrics"
)

// MetricsMiddleware returns an Echo middleware that counts inbound requests.
// Latency is observed for plain requests only: an upgrade handler returns as
// soon as the socket is handed to the bridge.
func MetricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			err := next(c)

			req := c.Request()
			status := strconv.Itoa(responseStatus(c, err))
			method := metrics.NormalizeMethod(req.Method)
			path := metrics.NormalizePath(req.URL.Path)

			m.RequestsTotal.WithLabelValues(method, status, path).Inc()
			if !IsUpgradeRequest(req) {
				m.RequestDuration.WithLabelValues(method, status, path).Observe(time.Since(start).Seconds())
			}

			return err
		}
	}
}

// responseStatus resolves the status the client will see. An *echo.HTTPError
// is written later by Echo's error handler, so its code wins.
func responseStatus(c echo.Context, err error) int {
	var he *echo.HTTPError
	if err != nil && errors.As(err, &he) {
		return he.Code
	}
	return c.Response().Status
}
