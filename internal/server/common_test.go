package server

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORSMiddlewareAllowAll(t *testing.T) {
	handler := CORSMiddlewareWithConfig(CORSConfig{}, okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS header to allow all origins")
	}
	if !strings.Contains(resp.Header.Get("Access-Control-Allow-Headers"), "X-User-ID") {
		t.Error("expected X-User-ID to be an allowed header")
	}
	if resp.Header.Get("Access-Control-Allow-Credentials") != "" {
		t.Error("credentials must not be allowed with a wildcard origin")
	}
}

func TestCORSMiddlewareWithConfigRestrictedOrigins(t *testing.T) {
	cfg := CORSConfig{AllowedOrigins: []string{"https://example.com", "https://trusted.com"}}
	handler := CORSMiddlewareWithConfig(cfg, okHandler())

	tests := []struct {
		name              string
		method            string
		origin            string
		expectStatus      int
		expectAllowOrigin string
		expectCredentials bool
	}{
		{"allowed origin", http.MethodGet, "https://example.com", http.StatusOK, "https://example.com", true},
		{"another allowed origin", http.MethodGet, "https://trusted.com", http.StatusOK, "https://trusted.com", true},
		{"disallowed origin", http.MethodGet, "https://evil.com", http.StatusOK, "", false},
		{"no origin header", http.MethodGet, "", http.StatusOK, "", false},
		{"preflight allowed", http.MethodOptions, "https://example.com", http.StatusNoContent, "https://example.com", true},
		{"preflight disallowed", http.MethodOptions, "https://evil.com", http.StatusForbidden, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			resp := w.Result()
			if resp.StatusCode != tt.expectStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.expectStatus)
			}
			if got := resp.Header.Get("Access-Control-Allow-Origin"); got != tt.expectAllowOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.expectAllowOrigin)
			}
			if got := resp.Header.Get("Access-Control-Allow-Credentials") == "true"; got != tt.expectCredentials {
				t.Errorf("Allow-Credentials = %v, want %v", got, tt.expectCredentials)
			}
		})
	}
}

func TestTimingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	fast := TimingMiddleware(logger, okHandler())
	fast.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fast", nil))
	if buf.Len() != 0 {
		t.Errorf("fast request logged: %s", buf.String())
	}

	slow := TimingMiddleware(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(SlowRequestThreshold + 20*time.Millisecond)
	}))
	slow.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/slow", nil))
	if !strings.Contains(buf.String(), "slow_request") || !strings.Contains(buf.String(), "/slow") {
		t.Errorf("slow request not logged: %s", buf.String())
	}
}
