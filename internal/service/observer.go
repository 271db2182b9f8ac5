package service

import (
	"log/slog"
	"net"
	"net/http"

	"wsbridge-go/internal/metrics"
	"wsbridge-go/internal/model"
)

// Observer receives bridge lifecycle notifications. Calls are synchronous and
// made from the session's goroutine.
type Observer interface {
	// BeforeOutboundRequest runs before the handshake is written and may
	// mutate out.
	BeforeOutboundRequest(out *model.OutboundRequest, in *http.Request, conn net.Conn, opts *model.ProxyOptions, head []byte)
	// Open is called once the 101 response has been relayed.
	Open(upstream net.Conn, in *http.Request)
	// OutboundSocketAttached follows Open with the same socket.
	OutboundSocketAttached(upstream net.Conn)
	// Close is called after an opened session has released both sockets.
	Close(resp *http.Response, upstream net.Conn, head []byte)
	// Error receives fatal bridge errors when Serve got no error handler.
	Error(err error, in *http.Request, conn net.Conn)
}

// NopObserver ignores every notification. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) BeforeOutboundRequest(*model.OutboundRequest, *http.Request, net.Conn, *model.ProxyOptions, []byte) {
}
func (NopObserver) Open(net.Conn, *http.Request) {}
func (NopObserver) OutboundSocketAttached(net.Conn) {}
func (NopObserver) Close(*http.Response, net.Conn, []byte) {}
func (NopObserver) Error(error, *http.Request, net.Conn) {}

// TelemetryObserver logs session lifecycle events and tracks session gauges.
type TelemetryObserver struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewTelemetryObserver creates a TelemetryObserver. The metrics parameter is
// optional; pass nil to only log.
func NewTelemetryObserver(logger *slog.Logger, m *metrics.Metrics) *TelemetryObserver {
	return &TelemetryObserver{
		logger:  logger.With("component", "bridge_observer"),
		metrics: m,
	}
}

func (o *TelemetryObserver) BeforeOutboundRequest(out *model.OutboundRequest, in *http.Request, _ net.Conn, _ *model.ProxyOptions, head []byte) {
	o.logger.Debug("outbound request",
		"addr", out.Addr,
		"path", out.Request.URL.Path,
		"host", out.Request.Host,
		"tls", out.TLS != nil,
		"remote_addr", in.RemoteAddr,
		"head_bytes", len(head),
	)
}

func (o *TelemetryObserver) Open(upstream net.Conn, in *http.Request) {
	if o.metrics != nil {
		o.metrics.SessionsTotal.Inc()
		o.metrics.SessionsActive.Inc()
	}
	o.logger.Info("session open",
		"path", in.URL.Path,
		"remote_addr", in.RemoteAddr,
		"upstream_addr", upstream.RemoteAddr().String(),
	)
}

func (o *TelemetryObserver) OutboundSocketAttached(net.Conn) {}

func (o *TelemetryObserver) Close(_ *http.Response, upstream net.Conn, _ []byte) {
	if o.metrics != nil {
		o.metrics.SessionsActive.Dec()
	}
	o.logger.Info("session closed", "upstream_addr", upstream.RemoteAddr().String())
}

func (o *TelemetryObserver) Error(err error, in *http.Request, _ net.Conn) {
	o.logger.Warn("bridge error",
		"err", err,
		"path", in.URL.Path,
		"remote_addr", in.RemoteAddr,
	)
}
