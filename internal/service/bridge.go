package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"wsbridge-go/internal/client"
	"wsbridge-go/internal/config"
	"wsbridge-go/internal/metrics"
	"wsbridge-go/internal/model"
	"wsbridge-go/internal/netconn"
	"wsbridge-go/internal/wsext"
)

// ErrorHandler receives the single fatal error of one bridge.
type ErrorHandler func(err error, req *http.Request, conn net.Conn)

// Bridge connects upgraded client sockets to the configured target.
type Bridge struct {
	client    *client.UpstreamClient
	opts      *model.ProxyOptions
	observer  Observer
	metrics   *metrics.Metrics
	logger    *slog.Logger
	keepAlive time.Duration

	mu       sync.Mutex
	sessions map[*session]struct{}
	closed   bool
}

// NewBridge creates a Bridge. The metrics parameter is optional; pass nil to
// disable relay metrics recording.
func NewBridge(cfg *config.Config, c *client.UpstreamClient, opts *model.ProxyOptions, obs Observer, logger *slog.Logger, m *metrics.Metrics) *Bridge {
	if obs == nil {
		obs = NopObserver{}
	}
	return &Bridge{
		client:    c,
		opts:      opts,
		observer:  obs,
		metrics:   m,
		logger:    logger.With("component", "bridge"),
		keepAlive: time.Duration(cfg.Target.KeepAliveSeconds) * time.Second,
		sessions:  make(map[*session]struct{}),
	}
}

// Options returns the proxy options every session runs with.
func (b *Bridge) Options() *model.ProxyOptions {
	return b.opts
}

// Active returns the number of sessions currently in flight.
func (b *Bridge) Active() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// Serve bridges conn, whose request head req has already been read, to the
// target and returns immediately. head holds bytes read off conn past the
// request head. Fatal errors go to onError when it is non-nil and to the
// observer otherwise; either way conn is closed.
func (b *Bridge) Serve(req *http.Request, conn net.Conn, head []byte, onError ErrorHandler) {
	sink := onError
	if sink == nil {
		sink = b.observer.Error
	}
	s := &session{
		bridge: b,
		req:    req,
		conn:   conn,
		head:   head,
		sink:   sink,
		client: conn,
	}
	if !b.track(s) {
		_ = conn.Close()
		return
	}
	go func() {
		defer b.untrack(s)
		s.run()
	}()
}

// Close tears down every live session. Sessions served afterwards are
// closed immediately.
func (b *Bridge) Close() error {
	b.mu.Lock()
	b.closed = true
	live := make([]*session, 0, len(b.sessions))
	for s := range b.sessions {
		live = append(live, s)
	}
	b.mu.Unlock()

	for _, s := range live {
		s.close()
	}
	if len(live) > 0 {
		b.logger.Info("closed live sessions", "count", len(live))
	}
	return nil
}

func (b *Bridge) track(s *session) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.sessions[s] = struct{}{}
	return true
}

func (b *Bridge) untrack(s *session) {
	b.mu.Lock()
	delete(b.sessions, s)
	b.mu.Unlock()
}

func (s *session) run() {
	b := s.bridge

	if err := netconn.Tune(s.conn, b.keepAlive); err != nil {
		s.fail(fmt.Errorf("tune client socket: %w", err))
		return
	}
	s.setClient(netconn.Prime(s.conn, s.head))

	out, err := BuildOutgoing(b.opts, s.req)
	if err != nil {
		s.fail(fmt.Errorf("build outbound request: %w", err))
		return
	}
	b.observer.BeforeOutboundRequest(out, s.req, s.conn, b.opts, s.head)

	// The inbound request's context ends with the HTTP handler, long before
	// the handshake; the client enforces its own timeout.
	hs, err := b.client.Handshake(context.Background(), out)
	if err != nil {
		s.fail(fmt.Errorf("upstream handshake: %w", err))
		return
	}

	if hs.Response.StatusCode != http.StatusSwitchingProtocols {
		s.relayResponse(hs)
		return
	}
	s.upgrade(hs)
}

// relayResponse passes a non-upgrade response through to the client and
// ends the session.
func (s *session) relayResponse(hs *client.Handshake) {
	if !s.setUpstream(hs.Conn) {
		return
	}
	defer s.teardown()
	defer func() { _ = hs.Response.Body.Close() }()
	go s.watchClient()

	if err := writeHead(s.client, statusLine(hs.Response), hs.Response.Header); err != nil {
		s.fail(err)
		return
	}
	if _, err := io.Copy(s.client, hs.Response.Body); err != nil && !netconn.IsClosed(err) {
		s.fail(fmt.Errorf("relay response body: %w", err))
	}
}

// watchClient drains the client until it goes away and then ends the
// session, so a stalled response body cannot pin the upstream socket.
func (s *session) watchClient() {
	s.mu.Lock()
	c := s.client
	s.mu.Unlock()
	_, _ = io.Copy(io.Discard, c)
	s.close()
}

func (s *session) upgrade(hs *client.Handshake) {
	b := s.bridge
	resp := hs.Response
	upHead := netconn.Buffered(hs.Reader)

	if !s.setUpstream(netconn.Prime(hs.Conn, upHead)) {
		return
	}
	if err := netconn.Tune(hs.Conn, b.keepAlive); err != nil {
		s.fail(fmt.Errorf("tune upstream socket: %w", err))
		return
	}

	neg, err := wsext.Negotiate(resp.Header.Values("Sec-Websocket-Extensions"))
	if err != nil {
		s.fail(fmt.Errorf("negotiate extensions: %w", err))
		return
	}

	if err := writeHead(s.client, switchingProtocols, resp.Header); err != nil {
		s.fail(err)
		return
	}

	b.observer.Open(hs.Conn, s.req)
	b.observer.OutboundSocketAttached(hs.Conn)
	b.logger.Debug("relaying",
		"path", s.req.URL.Path,
		"compression", neg.Enabled,
		"client_transform", b.opts.ClientTransform != nil,
		"server_transform", b.opts.ServerTransform != nil,
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go s.pipe(&wg, model.ClientToServer, neg)
	go s.pipe(&wg, model.ServerToClient, neg)
	wg.Wait()

	s.teardown()
	b.observer.Close(resp, hs.Conn, upHead)
}
