package service

import (
	"crypto/tls"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"wsbridge-go/internal/model"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestBuildOutgoing(t *testing.T) {
	tests := []struct {
		name         string
		target       string
		changeOrigin bool
		reqURL       string
		wantAddr     string
		wantURI      string
		wantHost     string
		wantTLS      bool
	}{
		{
			name:     "ws default port",
			target:   "ws://backend",
			reqURL:   "http://front.example/chat?room=1",
			wantAddr: "backend:80",
			wantURI:  "/chat?room=1",
			wantHost: "front.example",
		},
		{
			name:     "wss default port",
			target:   "wss://backend",
			reqURL:   "http://front.example/chat",
			wantAddr: "backend:443",
			wantURI:  "/chat",
			wantHost: "front.example",
			wantTLS:  true,
		},
		{
			name:         "explicit port and change origin",
			target:       "ws://backend:9000",
			changeOrigin: true,
			reqURL:       "http://front.example/chat",
			wantAddr:     "backend:9000",
			wantURI:      "/chat",
			wantHost:     "backend:9000",
		},
		{
			name:     "target path and query are joined",
			target:   "http://backend/socket/?token=a",
			reqURL:   "http://front.example/room?x=1",
			wantAddr: "backend:80",
			wantURI:  "/socket/room?token=a&x=1",
			wantHost: "front.example",
		},
		{
			name:     "https target",
			target:   "https://[::1]:8443",
			reqURL:   "http://front.example/",
			wantAddr: "[::1]:8443",
			wantURI:  "/",
			wantHost: "front.example",
			wantTLS:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := httptest.NewRequest(http.MethodGet, tt.reqURL, http.NoBody)
			in.Header.Set("Upgrade", "websocket")
			in.Header.Set("Connection", "Upgrade")
			opts := &model.ProxyOptions{Target: mustURL(t, tt.target), ChangeOrigin: tt.changeOrigin}

			ob, err := BuildOutgoing(opts, in)
			if err != nil {
				t.Fatalf("BuildOutgoing() error = %v", err)
			}

			if ob.Addr != tt.wantAddr {
				t.Errorf("Addr = %q, want %q", ob.Addr, tt.wantAddr)
			}
			if got := ob.Request.URL.RequestURI(); got != tt.wantURI {
				t.Errorf("RequestURI = %q, want %q", got, tt.wantURI)
			}
			if ob.Request.Host != tt.wantHost {
				t.Errorf("Host = %q, want %q", ob.Request.Host, tt.wantHost)
			}
			if (ob.TLS != nil) != tt.wantTLS {
				t.Errorf("TLS = %v, want TLS %v", ob.TLS, tt.wantTLS)
			}
			if ob.Request.Method != http.MethodGet {
				t.Errorf("Method = %q, want GET", ob.Request.Method)
			}
			if ob.Request.Header.Get("Upgrade") != "websocket" || ob.Request.Header.Get("Connection") != "Upgrade" {
				t.Errorf("upgrade headers not copied: %v", ob.Request.Header)
			}
		})
	}
}

func TestBuildOutgoing_HeadersAreCloned(t *testing.T) {
	in := httptest.NewRequest(http.MethodGet, "http://front/ws", http.NoBody)
	in.Header.Set("X-Trace", "a")

	ob, err := BuildOutgoing(&model.ProxyOptions{Target: mustURL(t, "ws://backend")}, in)
	if err != nil {
		t.Fatal(err)
	}
	ob.Request.Header.Set("X-Trace", "b")

	if got := in.Header.Get("X-Trace"); got != "a" {
		t.Errorf("inbound header mutated: %q", got)
	}
	if in.URL.Host == "backend" {
		t.Error("inbound URL mutated")
	}
}

func TestBuildOutgoing_TLSConfig(t *testing.T) {
	base := &tls.Config{MinVersion: tls.VersionTLS13, InsecureSkipVerify: true} //nolint:gosec // test
	opts := &model.ProxyOptions{Target: mustURL(t, "wss://backend.internal"), TLS: base}

	ob, err := BuildOutgoing(opts, httptest.NewRequest(http.MethodGet, "http://front/", http.NoBody))
	if err != nil {
		t.Fatal(err)
	}
	if ob.TLS == base {
		t.Error("TLS config must be cloned per request")
	}
	if ob.TLS.ServerName != "backend.internal" {
		t.Errorf("ServerName = %q, want backend.internal", ob.TLS.ServerName)
	}
	if !ob.TLS.InsecureSkipVerify || ob.TLS.MinVersion != tls.VersionTLS13 {
		t.Error("base TLS settings not carried over")
	}
	if base.ServerName != "" {
		t.Error("base TLS config mutated")
	}

	base.ServerName = "override"
	ob, err = BuildOutgoing(opts, httptest.NewRequest(http.MethodGet, "http://front/", http.NoBody))
	if err != nil {
		t.Fatal(err)
	}
	if ob.TLS.ServerName != "override" {
		t.Errorf("ServerName = %q, want configured override", ob.TLS.ServerName)
	}
}

func TestBuildOutgoing_NoTarget(t *testing.T) {
	_, err := BuildOutgoing(&model.ProxyOptions{}, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if !errors.Is(err, ErrNoTarget) {
		t.Errorf("error = %v, want ErrNoTarget", err)
	}
}
