package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/ethpandaops/bundleoor/pkg/build"
	"github.com/ethpandaops/bundleoor/pkg/store"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	metricsNamespace = "bundleoor"
	collectTimeout   = 5 * time.Second
)

// metrics holds the server's Prometheus instruments on a private registry.
type metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rateLimitHits   prometheus.Counter
	cleanupDeleted  prometheus.Counter
}

func newMetrics(log logrus.FieldLogger, st store.Store) *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"method", "route"},
		),
		rateLimitHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rate_limit_hits_total",
			Help:      "Requests rejected by the rate limiter",
		}),
		cleanupDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "retention_builds_deleted_total",
			Help:      "Builds removed by scheduled retention cleanup",
		}),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.rateLimitHits,
		m.cleanupDeleted,
		collectors.NewGoCollector(),
		newLatestBuildCollector(log, st),
	)

	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// instrument records request counts and latencies by route pattern.
func (m *metrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		m.requestsTotal.WithLabelValues(
			r.Method, route, strconv.Itoa(ww.Status()),
		).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).
			Observe(time.Since(start).Seconds())
	})
}

// latestBuildCollector exports the most recent build on every scrape.
type latestBuildCollector struct {
	log   logrus.FieldLogger
	store store.Store

	totalSize     *prometheus.Desc
	totalGzipSize *prometheus.Desc
	bundleSize    *prometheus.Desc
	metricValue   *prometheus.Desc
	timestamp     *prometheus.Desc
}

var _ prometheus.Collector = (*latestBuildCollector)(nil)

func newLatestBuildCollector(log logrus.FieldLogger, st store.Store) *latestBuildCollector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "latest_build", name),
			help, labels, nil,
		)
	}

	return &latestBuildCollector{
		log:           log,
		store:         st,
		totalSize:     desc("total_size_bytes", "Total raw size of the latest build"),
		totalGzipSize: desc("total_gzip_size_bytes", "Total gzip size of the latest build"),
		bundleSize:    desc("bundle_size_bytes", "Raw size per bundle of the latest build", "bundle", "status"),
		metricValue:   desc("metric", "Performance metrics of the latest build", "name"),
		timestamp:     desc("timestamp_seconds", "Unix time of the latest build"),
	}
}

func (c *latestBuildCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalSize
	ch <- c.totalGzipSize
	ch <- c.bundleSize
	ch <- c.metricValue
	ch <- c.timestamp
}

func (c *latestBuildCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	b, err := c.store.LatestBuild(ctx, store.Filter{})
	if err != nil {
		c.log.WithError(err).Warn("Failed to load latest build for metrics")

		return
	}

	if b == nil {
		return
	}

	ch <- prometheus.MustNewConstMetric(c.totalSize, prometheus.GaugeValue, float64(b.TotalSize()))
	ch <- prometheus.MustNewConstMetric(c.totalGzipSize, prometheus.GaugeValue, float64(b.TotalGzipSize()))
	ch <- prometheus.MustNewConstMetric(c.timestamp, prometheus.GaugeValue, float64(b.Timestamp.Unix()))

	for _, bundle := range b.Bundles {
		status := bundle.Status
		if status == "" {
			status = build.StatusOK
		}

		ch <- prometheus.MustNewConstMetric(
			c.bundleSize, prometheus.GaugeValue, float64(bundle.Size),
			bundle.Name, string(status),
		)
	}

	for name, v := range b.Metrics.Values() {
		ch <- prometheus.MustNewConstMetric(c.metricValue, prometheus.GaugeValue, v, name)
	}
}
