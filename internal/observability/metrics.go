package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors for the push engine.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec
	pushSentTotal          prometheus.Counter
	pushFailedTotal        *prometheus.CounterVec
	pushSendDuration       prometheus.Histogram
	tokensInvalidatedTotal prometheus.Counter
	campaignRunsTotal      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "push_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "push_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		pushSentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "push_engine",
				Name:      "push_sent_total",
				Help:      "Total number of push notifications accepted by the provider.",
			},
		),
		pushFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "push_engine",
				Name:      "push_failed_total",
				Help:      "Total number of failed push sends by reason.",
			},
			[]string{"reason"},
		),
		pushSendDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "push_engine",
				Name:      "push_send_duration_seconds",
				Help:      "Provider call duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		tokensInvalidatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "push_engine",
				Name:      "tokens_invalidated_total",
				Help:      "Total number of device tokens cleared after provider rejection.",
			},
		),
		campaignRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "push_engine",
				Name:      "campaign_runs_total",
				Help:      "Total number of campaign firings by campaign name and outcome.",
			},
			[]string{"campaign", "outcome"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.pushSentTotal,
		m.pushFailedTotal,
		m.pushSendDuration,
		m.tokensInvalidatedTotal,
		m.campaignRunsTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncSent() {
	if m == nil {
		return
	}
	m.pushSentTotal.Inc()
}

func (m *Metrics) IncFailed(reason string) {
	if m == nil {
		return
	}
	reasonLabel := strings.TrimSpace(strings.ToLower(reason))
	if reasonLabel == "" {
		reasonLabel = "unknown"
	}
	m.pushFailedTotal.WithLabelValues(reasonLabel).Inc()
}

func (m *Metrics) ObserveSendDuration(duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.pushSendDuration.Observe(seconds)
}

func (m *Metrics) IncTokenInvalidated() {
	if m == nil {
		return
	}
	m.tokensInvalidatedTotal.Inc()
}

func (m *Metrics) IncCampaignRun(campaign string, success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	campaignLabel := strings.TrimSpace(strings.ToLower(campaign))
	if campaignLabel == "" {
		campaignLabel = "unknown"
	}
	m.campaignRunsTotal.WithLabelValues(campaignLabel, outcome).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}
