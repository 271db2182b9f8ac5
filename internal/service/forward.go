package service

import (
	"net"
	"net/http"
	"strings"

	"wsbridge-go/internal/model"
)

// Peer describes the inbound side of a connection as seen by the bridge.
type Peer struct {
	IP        string
	Port      string
	Encrypted bool
}

// Proto is the forwarded scheme for the peer's connection.
func (p Peer) Proto() string {
	if p.Encrypted {
		return "wss"
	}
	return "ws"
}

// PeerFromRequest derives the peer from the request's remote address and
// TLS state.
func PeerFromRequest(req *http.Request) Peer {
	p := Peer{Encrypted: req.TLS != nil}
	host, port, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		p.IP = req.RemoteAddr
		return p
	}
	p.IP, p.Port = host, port
	return p
}

// ApplyForwarding adds x-forwarded-{for,port,proto} to req when forwarding is
// enabled in opts. It leaves the request untouched otherwise.
func ApplyForwarding(req *http.Request, opts *model.ProxyOptions) {
	if !opts.Forward {
		return
	}
	req.Header = AppendForwarded(req.Header, PeerFromRequest(req))
}

// AppendForwarded returns a copy of h with the peer appended to each
// x-forwarded-* header. Existing values come first, joined with ",".
func AppendForwarded(h http.Header, p Peer) http.Header {
	out := h.Clone()
	if out == nil {
		out = make(http.Header)
	}
	appendValue(out, "X-Forwarded-For", p.IP)
	appendValue(out, "X-Forwarded-Port", p.Port)
	appendValue(out, "X-Forwarded-Proto", p.Proto())
	return out
}

// forwardedSep joins both folded repeated lines and the appended hop.
const forwardedSep = ","

func appendValue(h http.Header, key, v string) {
	if v == "" {
		return
	}
	h.Set(key, strings.Join(append(h.Values(key), v), forwardedSep))
}
