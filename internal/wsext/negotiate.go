// Package wsext negotiates the permessage-deflate WebSocket extension and
// provides the per-direction codec state it implies.
package wsext

import (
	"fmt"

	"github.com/gobwas/httphead"
	"github.com/gobwas/ws/wsflate"
)

// ExtensionName is the only extension the bridge interprets.
const ExtensionName = wsflate.ExtensionName

// maxWindowBits is the LZ77 window used by the DEFLATE encoder.
const maxWindowBits = 15

// Role identifies which endpoint of the WebSocket connection compressed a
// message. Compression parameters are negotiated per role.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// Negotiation is the outcome of parsing an accepted extension header.
type Negotiation struct {
	Enabled bool
	Params  wsflate.Parameters
}

// Negotiate inspects the Sec-WebSocket-Extensions values of a handshake
// response. Extensions other than permessage-deflate are ignored.
func Negotiate(values []string) (Negotiation, error) {
	var opts []httphead.Option
	for _, v := range values {
		var ok bool
		opts, ok = httphead.ParseOptions([]byte(v), opts)
		if !ok {
			return Negotiation{}, fmt.Errorf("parse extensions %q", v)
		}
	}
	for _, opt := range opts {
		if string(opt.Name) != ExtensionName {
			continue
		}
		var n Negotiation
		if err := n.Params.Parse(opt); err != nil {
			return Negotiation{}, fmt.Errorf("parse %s parameters: %w", ExtensionName, err)
		}
		n.Enabled = true
		return n, nil
	}
	return Negotiation{}, nil
}

func (n Negotiation) takeover(r Role) bool {
	if r == RoleServer {
		return !n.Params.ServerNoContextTakeover
	}
	return !n.Params.ClientNoContextTakeover
}

func (n Negotiation) windowBits(r Role) int {
	if r == RoleServer {
		return int(n.Params.ServerMaxWindowBits)
	}
	return int(n.Params.ClientMaxWindowBits)
}

// Inflater returns fresh decompression state for messages compressed by r,
// or nil when compression is disabled.
func (n Negotiation) Inflater(r Role) *Inflater {
	if !n.Enabled {
		return nil
	}
	return &Inflater{takeover: n.takeover(r)}
}

// Deflater returns fresh compression state for messages sent as r, or nil
// when messages must go out uncompressed. A peer that restricted the window
// below the encoder's window cannot decode our back-references.
func (n Negotiation) Deflater(r Role) *Deflater {
	if !n.Enabled {
		return nil
	}
	if bits := n.windowBits(r); bits > 1 && bits < maxWindowBits {
		return nil
	}
	return &Deflater{takeover: n.takeover(r)}
}
