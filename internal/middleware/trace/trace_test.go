package trace

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	applog "ocp/internal/log"
)

func newTestMiddleware() (*Middleware, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := applog.New(applog.Config{Level: slog.LevelDebug, Output: &buf})
	return NewMiddleware(logger, func(*http.Request) string { return "10.1.2.3" }), &buf
}

func TestMiddleware_AssignsRequestID(t *testing.T) {
	m, buf := newTestMiddleware()

	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusCreated)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/analyze", nil))

	if !strings.HasPrefix(seen, "req_") {
		t.Errorf("request id = %q, want req_ prefix", seen)
	}
	if rr.Header().Get(HeaderRequestID) != seen {
		t.Errorf("response header = %q, want %q", rr.Header().Get(HeaderRequestID), seen)
	}
	out := buf.String()
	for _, want := range []string{"HTTP request started", "HTTP request completed", "status_code=201", "client_ip=10.1.2.3"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
	if got := m.GetMetrics().TotalRequests; got != 1 {
		t.Errorf("TotalRequests = %d, want 1", got)
	}
}

func TestMiddleware_ReusesIncomingID(t *testing.T) {
	m, _ := newTestMiddleware()

	tests := []struct {
		header string
		reused bool
	}{
		{"abc-123", true},
		{"bad id with spaces", false},
		{strings.Repeat("x", 65), false},
	}
	for _, tt := range tests {
		var seen string
		h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = RequestIDFromRequest(r)
		}))
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set(HeaderRequestID, tt.header)
		h.ServeHTTP(httptest.NewRecorder(), req)

		if (seen == tt.header) != tt.reused {
			t.Errorf("header %q: got id %q, reused want %v", tt.header, seen, tt.reused)
		}
	}
}

func TestResponseWriter_FirstStatusWins(t *testing.T) {
	rw := &responseWriter{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
	_, _ = rw.Write([]byte("body"))
	rw.WriteHeader(http.StatusInternalServerError)
	if rw.statusCode != http.StatusOK {
		t.Errorf("statusCode = %d, want 200", rw.statusCode)
	}
}
