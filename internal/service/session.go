package service

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"

	"go.uber.org/multierr"

	"wsbridge-go/internal/model"
	"wsbridge-go/internal/netconn"
	"wsbridge-go/internal/wsext"
	"wsbridge-go/internal/wsframe"
)

// session is one bridge: the client socket, the upstream socket once dialed,
// and the single termination path shared by both relay directions.
type session struct {
	bridge *Bridge
	req    *http.Request
	conn   net.Conn
	head   []byte
	sink   ErrorHandler

	mu       sync.Mutex
	client   net.Conn
	upstream net.Conn
	closed   bool

	errOnce   sync.Once
	closeOnce sync.Once
	closeErr  error
}

func (s *session) setClient(c net.Conn) {
	s.mu.Lock()
	s.client = c
	s.mu.Unlock()
}

func (s *session) setUpstream(c net.Conn) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = c.Close()
		return false
	}
	s.upstream = c
	s.mu.Unlock()
	return true
}

// fail reports err once and closes both sockets.
func (s *session) fail(err error) {
	s.errOnce.Do(func() {
		if m := s.bridge.metrics; m != nil {
			m.BridgeErrors.Inc()
		}
		s.sink(err, s.req, s.conn)
	})
	s.close()
}

// close releases both sockets exactly once.
func (s *session) close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		conn, upstream := s.conn, s.upstream
		s.mu.Unlock()

		s.closeErr = multierr.Combine(closeConn(conn), closeConn(upstream))
	})
	return s.closeErr
}

func (s *session) teardown() {
	if err := s.close(); err != nil {
		s.bridge.logger.Debug("session teardown", "err", err)
	}
}

func closeConn(c net.Conn) error {
	if c == nil {
		return nil
	}
	if err := c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// pipe relays one direction until its source ends. A clean end of stream is
// passed on as a half-close; anything else fails the session.
func (s *session) pipe(wg *sync.WaitGroup, d model.Direction, neg wsext.Negotiation) {
	defer wg.Done()

	s.mu.Lock()
	src, dst := s.client, s.upstream
	s.mu.Unlock()
	if d == model.ServerToClient {
		src, dst = dst, src
	}

	var err error
	if tr := s.bridge.opts.TransformFor(d); tr != nil {
		err = s.relayMessages(d, src, dst, tr, neg)
	} else {
		err = s.relayRaw(d, src, dst)
	}
	if err != nil {
		if !netconn.IsClosed(err) {
			s.fail(fmt.Errorf("relay %s: %w", d, err))
		}
		return
	}
	_ = netconn.CloseWrite(dst)
}

func (s *session) relayRaw(d model.Direction, src io.Reader, dst io.Writer) error {
	n, err := io.Copy(dst, src)
	if m := s.bridge.metrics; m != nil {
		m.BytesRelayed.WithLabelValues(d.String()).Add(float64(n))
	}
	return err
}

// relayMessages decodes frames from src, transforms data messages and
// re-encodes everything onto dst. Frames towards the target are masked.
func (s *session) relayMessages(d model.Direction, src io.Reader, dst io.Writer, tr model.Transform, neg wsext.Negotiation) error {
	role := wsext.RoleServer
	if d == model.ClientToServer {
		role = wsext.RoleClient
	}
	recv := wsframe.NewReceiver(src, neg.Inflater(role), s.bridge.opts.MaxMessageSize)
	send := wsframe.NewSender(dst, d == model.ClientToServer, neg.Deflater(role))
	m := s.bridge.metrics

	for {
		ev, err := recv.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode: %w", err)
		}

		switch ev.Kind {
		case wsframe.KindPing:
			err = send.Ping(ev.Payload)
		case wsframe.KindPong:
			err = send.Pong(ev.Payload)
		case wsframe.KindClose:
			err = send.Close(ev.Code, ev.Reason)
		case wsframe.KindMessage:
			out, terr := tr(ev.Payload)
			if terr != nil {
				return fmt.Errorf("transform: %w", terr)
			}
			err = send.Send(out)
			if m != nil && err == nil {
				m.BytesRelayed.WithLabelValues(d.String()).Add(float64(len(out)))
			}
		}
		if err != nil {
			return err
		}
		if m != nil {
			m.MessagesRelayed.WithLabelValues(d.String(), ev.Kind.String()).Inc()
		}
	}
}
