package api

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/FocuswithJustin/versereader/core/cache"
)

func TestCacheCollector(t *testing.T) {
	stats := cache.Stats{
		Hits: 7, Misses: 3, Evictions: 2, Expirations: 1, Rejections: 0,
		Entries: 4, TotalBytes: 2048, MaxBytes: 4096,
	}
	c := newCacheCollector(func() cache.Stats { return stats })

	if n := testutil.CollectAndCount(c); n != 8 {
		t.Errorf("CollectAndCount() = %d, want 8", n)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	expected := `
# HELP versereader_cache_bytes Accounted bytes held by the corpus cache.
# TYPE versereader_cache_bytes gauge
versereader_cache_bytes 2048
# HELP versereader_cache_hits_total Corpus cache hits.
# TYPE versereader_cache_hits_total counter
versereader_cache_hits_total 7
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"versereader_cache_bytes", "versereader_cache_hits_total"); err != nil {
		t.Error(err)
	}
}

func TestRequestMetrics(t *testing.T) {
	env := newTestEnv(t, testOptions{})

	env.do(t, http.MethodGet, "/health", nil, nil)
	env.do(t, http.MethodGet, "/health", nil, nil)
	env.do(t, http.MethodGet, "/api/versions/mini/books/xx/chapters/1", nil, nil)

	m := env.srv.metrics
	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET /health", "200", "get")); got != 2 {
		t.Errorf("health requests = %v, want 2", got)
	}
	route := "GET /api/versions/{version}/books/{book}/chapters/{chapter}"
	if got := testutil.ToFloat64(m.requests.WithLabelValues(route, "404", "get")); got != 1 {
		t.Errorf("chapter 404s = %v, want 1", got)
	}

	resp, err := http.Get(env.ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	text := string(raw)
	for _, name := range []string{
		"versereader_http_requests_total",
		"versereader_http_request_duration_seconds",
		"versereader_cache_entries",
		"versereader_websocket_clients",
	} {
		if !strings.Contains(text, name) {
			t.Errorf("/metrics output missing %s", name)
		}
	}
}
