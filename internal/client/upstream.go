// Package client opens the outbound leg of a bridge: it dials the target and
// performs the HTTP/1.1 handshake over the raw socket.
package client

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"wsbridge-go/internal/config"
	"wsbridge-go/internal/metrics"
	"wsbridge-go/internal/model"
)

// Handshake is an established outbound connection and the target's response.
// Reader may hold bytes the target sent after its response head; they belong
// to the upgraded stream.
type Handshake struct {
	Conn     net.Conn
	Reader   *bufio.Reader
	Response *http.Response
}

// UpstreamClient dials the bridge target.
type UpstreamClient struct {
	dialer  *net.Dialer
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient bounded by the configured
// handshake timeout. The metrics parameter is optional; pass nil to disable
// handshake metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	timeout := time.Duration(cfg.Target.HandshakeTimeoutSeconds) * time.Second
	return &UpstreamClient{
		dialer: &net.Dialer{
			Timeout:   timeout,
			KeepAlive: time.Duration(cfg.Target.KeepAliveSeconds) * time.Second,
		},
		timeout: timeout,
		logger:  logger.With("component", "upstream_client"),
		metrics: m,
	}
}

// Handshake dials ob.Addr, writes ob.Request and reads the response head.
// The whole exchange is bounded by ctx and the handshake timeout. On success
// the caller owns Conn; for non-101 responses Response.Body streams from it.
func (c *UpstreamClient) Handshake(ctx context.Context, ob *model.OutboundRequest) (*Handshake, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.logger.Debug("upstream handshake",
		"addr", ob.Addr,
		"path", ob.Request.URL.Path,
		"tls", ob.TLS != nil,
	)

	start := time.Now()
	hs, err := c.handshake(ctx, ob)
	duration := time.Since(start).Seconds()

	if err != nil {
		if c.metrics != nil {
			c.metrics.HandshakeDuration.WithLabelValues("error").Observe(duration)
		}
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.HandshakeDuration.WithLabelValues("ok").Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(strconv.Itoa(hs.Response.StatusCode)).Inc()
	}
	return hs, nil
}

func (c *UpstreamClient) handshake(ctx context.Context, ob *model.OutboundRequest) (*Handshake, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", ob.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", ob.Addr, err)
	}

	if ob.TLS != nil {
		tc := tls.Client(conn, ob.TLS)
		if err := tc.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("tls handshake %s: %w", ob.Addr, err)
		}
		conn = tc
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if err := ob.Request.Write(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("write handshake request: %w", err)
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, ob.Request)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read handshake response: %w", err)
	}

	if !stop() {
		_ = conn.Close()
		return nil, fmt.Errorf("read handshake response: %w", ctx.Err())
	}
	_ = conn.SetDeadline(time.Time{})

	return &Handshake{Conn: conn, Reader: br, Response: resp}, nil
}
