package service

import (
	"bytes"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"wsbridge-go/internal/metrics"
)

func TestTelemetryObserver_SessionGauges(t *testing.T) {
	var buf bytes.Buffer
	m := metrics.New()
	o := NewTelemetryObserver(slog.New(slog.NewTextHandler(&buf, nil)), m)

	a, b := net.Pipe()
	defer func() { _ = a.Close(); _ = b.Close() }()
	req := httptest.NewRequest(http.MethodGet, "/chat", http.NoBody)

	o.Open(a, req)
	o.Open(a, req)
	if got := testutil.ToFloat64(m.SessionsActive); got != 2 {
		t.Errorf("sessions_active = %v, want 2", got)
	}

	o.Close(nil, a, nil)
	if got := testutil.ToFloat64(m.SessionsActive); got != 1 {
		t.Errorf("sessions_active = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SessionsTotal); got != 2 {
		t.Errorf("sessions_total = %v, want 2", got)
	}
	if !strings.Contains(buf.String(), "session open") {
		t.Errorf("log output %q missing session open", buf.String())
	}
}

func TestTelemetryObserver_ErrorLogsWithoutMetrics(t *testing.T) {
	var buf bytes.Buffer
	o := NewTelemetryObserver(slog.New(slog.NewTextHandler(&buf, nil)), nil)

	req := httptest.NewRequest(http.MethodGet, "/chat", http.NoBody)
	o.Error(errors.New("dial refused"), req, nil)

	out := buf.String()
	for _, want := range []string{"level=WARN", "bridge error", "dial refused", "path=/chat"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %q", out, want)
		}
	}
}
