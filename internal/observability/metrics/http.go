package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	jobRunsTotal    *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	alertsTotal     *prometheus.CounterVec
	deliveriesTotal *prometheus.CounterVec
	slackPostsTotal *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ia",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ia",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ia",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	jobRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ia",
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Total job runs by job name and outcome.",
		},
		[]string{"service", "job", "status"},
	)
	jobDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ia",
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Job run duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "job"},
	)
	alertsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ia",
			Subsystem: "alerts",
			Name:      "created_total",
			Help:      "Alert rows created or upgraded by the creation job.",
		},
		[]string{"service", "kind"},
	)
	deliveriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ia",
			Subsystem: "alerts",
			Name:      "deliveries_total",
			Help:      "Flush outcomes per alert row.",
		},
		[]string{"service", "outcome"},
	)
	slackPostsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ia",
			Subsystem: "slack",
			Name:      "posts_total",
			Help:      "Webhook posts by result.",
		},
		[]string{"service", "result"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		jobRunsTotal,
		jobDuration,
		alertsTotal,
		deliveriesTotal,
		slackPostsTotal,
	)

	return &HTTPServerMetrics{
		registry:        registry,
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
		requestInFlight: requestInFlight,
		jobRunsTotal:    jobRunsTotal,
		jobDuration:     jobDuration,
		alertsTotal:     alertsTotal,
		deliveriesTotal: deliveriesTotal,
		slackPostsTotal: slackPostsTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses per-document paths so label cardinality stays
// bounded.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/invoices/") && strings.HasSuffix(path, "/file"):
		return "/api/invoices/{document_id}/file"
	case strings.HasPrefix(path, "/api/invoices/") && path != "/api/invoices/":
		return "/api/invoices/{document_id}"
	case strings.HasPrefix(path, "/api/debug/document/"):
		return "/api/debug/document/{document_id}"
	default:
		return path
	}
}

// RecordJobRun records one completed job invocation.
func (m *HTTPServerMetrics) RecordJobRun(service, job, status string, duration time.Duration) {
	if status == "" {
		status = "unknown"
	}
	m.jobRunsTotal.WithLabelValues(service, job, status).Inc()
	m.jobDuration.WithLabelValues(service, job).Observe(duration.Seconds())
}

// RecordAlertCreation records how many rows a creation run produced.
func (m *HTTPServerMetrics) RecordAlertCreation(service string, created, upgraded int) {
	if created > 0 {
		m.alertsTotal.WithLabelValues(service, "created").Add(float64(created))
	}
	if upgraded > 0 {
		m.alertsTotal.WithLabelValues(service, "upgraded").Add(float64(upgraded))
	}
}

// RecordFlushOutcomes records the per-row outcomes of one flush run.
func (m *HTTPServerMetrics) RecordFlushOutcomes(service string, sent, errored, skipped, healed int) {
	add := func(outcome string, n int) {
		if n > 0 {
			m.deliveriesTotal.WithLabelValues(service, outcome).Add(float64(n))
		}
	}
	add("sent", sent)
	add("errored", errored)
	add("skipped", skipped)
	add("healed", healed)
}

// RecordSlackPost records a webhook post attempt result (ok, error, skipped).
func (m *HTTPServerMetrics) RecordSlackPost(service, result string) {
	if result == "" {
		result = "unknown"
	}
	m.slackPostsTotal.WithLabelValues(service, result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
