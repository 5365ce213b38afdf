package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/FocuswithJustin/versereader/core/cache"
)

const metricsNamespace = "versereader"

// metrics holds the server's Prometheus collectors on a private registry.
type metrics struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	wsClients prometheus.Gauge
}

func newMetrics(stats func() cache.Stats) *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, status code and method.",
		}, []string{"route", "code", "method"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "websocket_clients",
			Help:      "Connected reader WebSocket sessions.",
		}),
	}
	m.registry.MustRegister(m.requests, m.latency, m.wsClients)
	if stats != nil {
		m.registry.MustRegister(newCacheCollector(stats))
	}
	return m
}

// instrument wraps h with request counting and latency for route.
func (m *metrics) instrument(route string, h http.Handler) http.Handler {
	labels := prometheus.Labels{"route": route}
	return promhttp.InstrumentHandlerDuration(m.latency.MustCurryWith(labels),
		promhttp.InstrumentHandlerCounter(m.requests.MustCurryWith(labels), h))
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// cacheCollector exports SizeCache statistics at scrape time.
type cacheCollector struct {
	stats func() cache.Stats

	entries, bytes, maxBytes                         *prometheus.Desc
	hits, misses, evictions, expirations, rejections *prometheus.Desc
}

func newCacheCollector(stats func() cache.Stats) *cacheCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "cache", name), help, nil, nil)
	}
	return &cacheCollector{
		stats:       stats,
		entries:     desc("entries", "Entries held by the corpus cache."),
		bytes:       desc("bytes", "Accounted bytes held by the corpus cache."),
		maxBytes:    desc("max_bytes", "Byte budget of the corpus cache."),
		hits:        desc("hits_total", "Corpus cache hits."),
		misses:      desc("misses_total", "Corpus cache misses."),
		evictions:   desc("evictions_total", "Entries evicted to fit the byte budget."),
		expirations: desc("expirations_total", "Entries dropped after their TTL."),
		rejections:  desc("rejections_total", "Entries larger than the whole budget."),
	}
}

// Describe implements prometheus.Collector.
func (c *cacheCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.entries, c.bytes, c.maxBytes,
		c.hits, c.misses, c.evictions, c.expirations, c.rejections,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *cacheCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}
	counter := func(d *prometheus.Desc, v int64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	gauge(c.entries, float64(s.Entries))
	gauge(c.bytes, float64(s.TotalBytes))
	gauge(c.maxBytes, float64(s.MaxBytes))
	counter(c.hits, s.Hits)
	counter(c.misses, s.Misses)
	counter(c.evictions, s.Evictions)
	counter(c.expirations, s.Expirations)
	counter(c.rejections, s.Rejections)
}
