package service

import (
	"bytes"
	"net/http"
	"testing"
)

func TestWriteHead(t *testing.T) {
	resp := &http.Response{
		Status:     "404 Not Found",
		StatusCode: http.StatusNotFound,
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     http.Header{"X-A": {"1", "2"}},
	}

	var buf bytes.Buffer
	if err := writeHead(&buf, statusLine(resp), resp.Header); err != nil {
		t.Fatalf("writeHead() error = %v", err)
	}

	want := "HTTP/1.1 404 Not Found\r\nX-A: 1\r\nX-A: 2\r\n\r\n"
	if buf.String() != want {
		t.Errorf("head = %q, want %q", buf.String(), want)
	}
}

func TestWriteHead_SortedKeys(t *testing.T) {
	h := http.Header{
		"Upgrade":              {"websocket"},
		"Connection":           {"Upgrade"},
		"Sec-Websocket-Accept": {"abc"},
	}

	var buf bytes.Buffer
	if err := writeHead(&buf, switchingProtocols, h); err != nil {
		t.Fatal(err)
	}

	want := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-Websocket-Accept: abc\r\n" +
		"Upgrade: websocket\r\n" +
		"\r\n"
	if buf.String() != want {
		t.Errorf("head = %q, want %q", buf.String(), want)
	}
}

func TestStatusLine(t *testing.T) {
	tests := []struct {
		name string
		resp *http.Response
		want string
	}{
		{"from status", &http.Response{Status: "502 Bad Gateway", ProtoMajor: 1, ProtoMinor: 0}, "HTTP/1.0 502 Bad Gateway"},
		{"from code", &http.Response{StatusCode: http.StatusForbidden, ProtoMajor: 1, ProtoMinor: 1}, "HTTP/1.1 403 Forbidden"},
		{"missing proto", &http.Response{Status: "200 OK"}, "HTTP/1.1 200 OK"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusLine(tt.resp); got != tt.want {
				t.Errorf("statusLine() = %q, want %q", got, tt.want)
			}
		})
	}
}
