package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

// captureLogOutput captures log output for testing by temporarily
// redirecting the logger to write to a buffer
func captureLogOutput(f func()) string {
	var buf bytes.Buffer
	oldLogger := defaultLogger
	defaultLogger = NewLogger(&buf, LevelDebug, FormatJSON)

	f()

	defaultLogger = oldLogger
	return buf.String()
}

func decodeLine(t *testing.T, out string) map[string]any {
	t.Helper()
	var m map[string]any
	line := strings.TrimSpace(strings.Split(strings.TrimSpace(out), "\n")[0])
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		t.Fatalf("log line is not JSON: %q: %v", line, err)
	}
	return m
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("text"); err != nil || f != FormatText {
		t.Errorf("ParseFormat(text) = %v, %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(\"\") = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) should fail")
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("json with RFC3339 time", func(t *testing.T) {
		var buf bytes.Buffer
		NewLogger(&buf, LevelInfo, FormatJSON).Info("hello", "k", "v")

		m := decodeLine(t, buf.String())
		ts, ok := m["time"].(string)
		if !ok {
			t.Fatalf("time missing: %v", m)
		}
		if _, err := time.Parse(time.RFC3339, ts); err != nil {
			t.Errorf("time %q is not RFC3339", ts)
		}
		if m["k"] != "v" {
			t.Errorf("k = %v", m["k"])
		}
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		NewLogger(&buf, LevelInfo, FormatText).Info("hello")
		if !strings.Contains(buf.String(), "msg=hello") {
			t.Errorf("text output = %q", buf.String())
		}
	})

	t.Run("level filters", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewLogger(&buf, LevelWarn, FormatJSON)
		l.Info("dropped")
		l.Warn("kept")
		if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
			t.Errorf("output = %q", buf.String())
		}
	})
}

func TestSetLogger(t *testing.T) {
	old := GetLogger()
	defer SetLogger(old)

	var buf bytes.Buffer
	SetLogger(NewLogger(&buf, LevelInfo, FormatJSON))
	slog.Info("via default")
	if !strings.Contains(buf.String(), "via default") {
		t.Error("slog.Default should follow SetLogger")
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "abc")
	if got := GetRequestID(ctx); got != "abc" {
		t.Errorf("GetRequestID() = %q", got)
	}
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID(empty) = %q", got)
	}

	out := captureLogOutput(func() {
		InfoContext(ctx, "with id")
	})
	if m := decodeLine(t, out); m["request_id"] != "abc" {
		t.Errorf("request_id = %v", m["request_id"])
	}
}

func TestDomainHelpers(t *testing.T) {
	tests := []struct {
		name string
		fn   func()
		msg  string
		want map[string]any
	}{
		{
			name: "cache event",
			fn:   func() { CacheEvent("evicted", "chapter:acf:gn:1", 3*1024*1024) },
			msg:  "cache_event",
			want: map[string]any{"event": "evicted", "key": "chapter:acf:gn:1", "size": "3.0 MiB"},
		},
		{
			name: "corpus loaded",
			fn:   func() { CorpusLoaded("acf", 2048, "ab12") },
			msg:  "corpus_loaded",
			want: map[string]any{"version": "acf", "size": "2.0 KiB", "blake3": "ab12"},
		},
		{
			name: "server startup",
			fn:   func() { ServerStartup(":8080", []string{"acf"}) },
			msg:  "server_startup",
			want: map[string]any{"addr": ":8080"},
		},
		{
			name: "websocket",
			fn:   func() { WebSocketEvent("connected", 2) },
			msg:  "websocket_event",
			want: map[string]any{"event": "connected", "client_count": float64(2)},
		},
		{
			name: "security",
			fn:   func() { SecurityEvent("origin_rejected", "websocket") },
			msg:  "security_event",
			want: map[string]any{"event": "origin_rejected", "level": "WARN"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := decodeLine(t, captureLogOutput(tt.fn))
			if m["msg"] != tt.msg {
				t.Errorf("msg = %v, want %s", m["msg"], tt.msg)
			}
			for k, v := range tt.want {
				if m[k] != v {
					t.Errorf("%s = %v, want %v", k, m[k], v)
				}
			}
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	t.Run("generates uuid", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if _, err := uuid.Parse(seen); err != nil {
			t.Errorf("request id %q is not a UUID", seen)
		}
		if rec.Header().Get("X-Request-ID") != seen {
			t.Error("response header should echo the request id")
		}
	})

	t.Run("keeps client id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "client-1")
		h.ServeHTTP(httptest.NewRecorder(), req)
		if seen != "client-1" {
			t.Errorf("request id = %q", seen)
		}
	})
}

func TestLoggingMiddleware(t *testing.T) {
	h := CombinedMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	out := captureLogOutput(func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/x", nil))
	})
	m := decodeLine(t, out)
	if m["msg"] != "http_request" || m["path"] != "/api/x" {
		t.Errorf("log = %v", m)
	}
	if m["status_code"] != float64(http.StatusTeapot) {
		t.Errorf("status_code = %v", m["status_code"])
	}
	if m["request_id"] == nil {
		t.Error("request_id should be attached")
	}
}
