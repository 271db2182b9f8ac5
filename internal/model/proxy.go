// Package model defines shared types for the bridge.
package model

import (
	"crypto/tls"
	"net/http"
	"net/url"
)

// Transform rewrites one message payload before it is relayed.
// A returned error terminates the bridge.
type Transform func(payload []byte) ([]byte, error)

// ProxyOptions is the per-call bridge configuration. It is not mutated after
// construction.
type ProxyOptions struct {
	Target *url.URL
	// TLS is used for the outbound leg when Target has a secure scheme.
	TLS *tls.Config

	// Forward enables x-forwarded-* header injection.
	Forward bool
	// ChangeOrigin replaces the inbound Host header with the target host.
	ChangeOrigin bool

	// ClientTransform applies to messages travelling client -> target,
	// ServerTransform to target -> client. A nil transform leaves that
	// direction on raw byte relay.
	ClientTransform Transform
	ServerTransform Transform

	// MaxMessageSize bounds reassembled messages in message relay; 0 means the
	// receiver's hard ceiling.
	MaxMessageSize int64
}

// Secure reports whether the target is reached over TLS.
func (o *ProxyOptions) Secure() bool {
	switch o.Target.Scheme {
	case "wss", "https":
		return true
	}
	return false
}

// TransformFor returns the transform configured for d, or nil.
func (o *ProxyOptions) TransformFor(d Direction) Transform {
	if d == ClientToServer {
		return o.ClientTransform
	}
	return o.ServerTransform
}

// Direction names one half of a bridge session.
type Direction int

const (
	ClientToServer Direction = iota
	ServerToClient
)

func (d Direction) String() string {
	if d == ClientToServer {
		return "client_to_server"
	}
	return "server_to_client"
}

// OutboundRequest fully describes the outbound connection for one bridge.
type OutboundRequest struct {
	// Addr is the host:port to dial.
	Addr string
	// TLS is nil for plain-text targets.
	TLS     *tls.Config
	Request *http.Request
}
