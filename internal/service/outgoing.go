package service

import (
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/http/httputil"

	"wsbridge-go/internal/model"
)

// ErrNoTarget is returned when the options carry no target URL.
var ErrNoTarget = errors.New("no target configured")

// BuildOutgoing describes the outbound connection for the inbound request in.
// Method, path and headers are copied from in; the path and query are joined
// onto the target's. Host stays the inbound host unless ChangeOrigin is set.
func BuildOutgoing(opts *model.ProxyOptions, in *http.Request) (*model.OutboundRequest, error) {
	if opts.Target == nil || opts.Target.Host == "" {
		return nil, ErrNoTarget
	}
	target := *opts.Target
	secure := opts.Secure()

	port := target.Port()
	if port == "" {
		port = "80"
		if secure {
			port = "443"
		}
	}

	// The handshake is plain HTTP/1.1 on the wire.
	target.Scheme = "http"
	if secure {
		target.Scheme = "https"
	}

	u := *in.URL
	out := &http.Request{
		Method:     in.Method,
		URL:        &u,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     in.Header.Clone(),
	}
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	(&httputil.ProxyRequest{In: in, Out: out}).SetURL(&target)

	out.Host = in.Host
	if opts.ChangeOrigin || out.Host == "" {
		out.Host = opts.Target.Host
	}

	ob := &model.OutboundRequest{
		Addr:    net.JoinHostPort(target.Hostname(), port),
		Request: out,
	}
	if secure {
		ob.TLS = outboundTLS(opts.TLS, target.Hostname())
	}
	return ob, nil
}

func outboundTLS(base *tls.Config, host string) *tls.Config {
	var cfg *tls.Config
	if base != nil {
		cfg = base.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}
	// The upgrade only exists in HTTP/1.1.
	cfg.NextProtos = []string{"http/1.1"}
	return cfg
}
