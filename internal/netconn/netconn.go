// Package netconn tunes bridged sockets and restores bytes that were already
// read off the wire while parsing HTTP.
package netconn

import (
	"bufio"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"time"
)

// DefaultKeepAlive is the TCP keep-alive probe period applied by Tune.
const DefaultKeepAlive = 30 * time.Second

// Tune disables idle timeouts and enables keep-alive probing on conn.
// Deadlines left by the HTTP server that accepted the connection are cleared.
func Tune(conn net.Conn, keepAlive time.Duration) error {
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return err
	}
	tcp, ok := underlying(conn).(*net.TCPConn)
	if !ok {
		return nil
	}
	if err := tcp.SetKeepAlive(true); err != nil {
		return err
	}
	if err := tcp.SetKeepAlivePeriod(keepAlive); err != nil {
		return err
	}
	return tcp.SetNoDelay(true)
}

func underlying(conn net.Conn) net.Conn {
	for {
		switch c := conn.(type) {
		case *Conn:
			conn = c.Conn
		case *tls.Conn:
			conn = c.NetConn()
		default:
			return conn
		}
	}
}

// Buffered drains whatever br has already read past the parsed HTTP head.
func Buffered(br *bufio.Reader) []byte {
	if br == nil {
		return nil
	}
	n := br.Buffered()
	if n == 0 {
		return nil
	}
	head := make([]byte, n)
	_, _ = io.ReadFull(br, head)
	return head
}

// Conn is a net.Conn whose first reads return head before reading the wire.
type Conn struct {
	net.Conn
	head []byte
}

// Prime returns conn with head re-injected at the front of its read stream.
func Prime(conn net.Conn, head []byte) *Conn {
	return &Conn{Conn: conn, head: head}
}

func (c *Conn) Read(p []byte) (int, error) {
	if len(c.head) > 0 {
		n := copy(p, c.head)
		c.head = c.head[n:]
		return n, nil
	}
	return c.Conn.Read(p)
}

// CloseWrite half-closes the connection when the transport supports it and
// closes it fully otherwise.
func (c *Conn) CloseWrite() error {
	return CloseWrite(c.Conn)
}

// CloseWrite signals end-of-stream on conn.
func CloseWrite(conn net.Conn) error {
	if hc, ok := conn.(interface{ CloseWrite() error }); ok {
		return hc.CloseWrite()
	}
	return conn.Close()
}

// IsClosed reports whether err only says that the stream has ended.
func IsClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
