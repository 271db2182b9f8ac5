package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"wsbridge-go/internal/metrics"
	"wsbridge-go/internal/netconn"
	"wsbridge-go/internal/service"
)

// BridgeHandler takes over upgrade requests and hands their sockets to the bridge.
type BridgeHandler struct {
	bridge  *service.Bridge
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewBridgeHandler creates a BridgeHandler. The metrics parameter is optional.
func NewBridgeHandler(b *service.Bridge, m *metrics.Metrics, logger *slog.Logger) *BridgeHandler {
	return &BridgeHandler{
		bridge:  b,
		metrics: m,
		logger:  logger.With("component", "bridge_handler"),
	}
}

// Handle hijacks the connection. Requests that are not WebSocket upgrades are
// dropped without a response; upgrades are bridged asynchronously.
func (h *BridgeHandler) Handle(c echo.Context) error {
	req := c.Request()

	conn, brw, err := c.Response().Hijack()
	if err != nil {
		h.logger.Error("hijack failed", "err", err, "path", req.URL.Path)
		return echo.NewHTTPError(http.StatusInternalServerError, "connection cannot be upgraded")
	}

	if err := service.CheckUpgrade(req); err != nil {
		reason := service.RejectReason(err)
		if h.metrics != nil {
			h.metrics.UpgradesRejected.WithLabelValues(reason).Inc()
		}
		h.logger.Debug("upgrade rejected",
			"reason", reason,
			"method", req.Method,
			"path", req.URL.Path,
			"remote_ip", c.RealIP(),
		)
		_ = conn.Close()
		return nil
	}

	head := netconn.Buffered(brw.Reader)
	service.ApplyForwarding(req, h.bridge.Options())
	h.bridge.Serve(req, conn, head, nil)

	c.Response().Status = http.StatusSwitchingProtocols
	return nil
}
