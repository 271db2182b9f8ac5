// Package service implements the WebSocket bridge: upgrade validation,
// forwarding headers, the outbound handshake and the relay session.
package service

import (
	"errors"
	"net/http"
	"strings"
)

var (
	ErrMethodNotGet   = errors.New("upgrade request must use GET")
	ErrMissingUpgrade = errors.New("upgrade header missing")
	ErrNotWebSocket   = errors.New("upgrade protocol is not websocket")
)

// CheckUpgrade returns nil when req may be bridged. Callers must drop the
// connection without writing a response when it returns an error.
func CheckUpgrade(req *http.Request) error {
	if req.Method != http.MethodGet {
		return ErrMethodNotGet
	}
	upgrade := req.Header.Get("Upgrade")
	if upgrade == "" {
		return ErrMissingUpgrade
	}
	if !strings.EqualFold(upgrade, "websocket") {
		return ErrNotWebSocket
	}
	return nil
}

// RejectReason maps a CheckUpgrade error to a bounded metrics label.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, ErrMethodNotGet):
		return "method"
	case errors.Is(err, ErrMissingUpgrade):
		return "missing_upgrade"
	case errors.Is(err, ErrNotWebSocket):
		return "not_websocket"
	}
	return "other"
}
