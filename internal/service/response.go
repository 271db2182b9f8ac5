package service

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
)

const switchingProtocols = "HTTP/1.1 101 Switching Protocols"

// statusLine renders the response's status line without the trailing CRLF.
func statusLine(resp *http.Response) string {
	status := resp.Status
	if status == "" {
		status = strconv.Itoa(resp.StatusCode) + " " + http.StatusText(resp.StatusCode)
	}
	major, minor := resp.ProtoMajor, resp.ProtoMinor
	if major == 0 {
		major, minor = 1, 1
	}
	return fmt.Sprintf("HTTP/%d.%d %s", major, minor, status)
}

// writeHead writes a raw HTTP response head: the status line, one
// "Key: Value" line per header value with keys sorted, then a blank line.
func writeHead(w io.Writer, line string, h http.Header) error {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteString(line)
	buf.WriteString("\r\n")
	for _, k := range keys {
		for _, v := range h[k] {
			buf.WriteString(k)
			buf.WriteString(": ")
			buf.WriteString(v)
			buf.WriteString("\r\n")
		}
	}
	buf.WriteString("\r\n")

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write response head: %w", err)
	}
	return nil
}
