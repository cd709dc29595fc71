package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const metricsNamespace = "hunt_dashboard"

var (
	appStartedAt    = time.Now()
	metricsRegistry = prometheus.NewRegistry()

	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests handled by this app.",
	}, []string{"method", "path", "status"})
	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "http_in_flight_requests",
		Help:      "In-flight HTTP requests currently served by this app.",
	})

	dbQueryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "db_query_duration_seconds",
		Help:      "Database query duration in seconds by connector/operation.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"connector", "operation"})
	dbQueryErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "db_query_errors_total",
		Help:      "Database query errors by connector/operation.",
	}, []string{"connector", "operation"})

	externalDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "external_call_duration_seconds",
		Help:      "Analytics API call duration in seconds by target/operation.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"target", "operation"})
	externalErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "external_call_errors_total",
		Help:      "Analytics API call errors by target/operation.",
	}, []string{"target", "operation"})

	timelinePoints = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "timeline_points",
		Help:      "Timestamps per aligned timeline.",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	})
	timelineRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "timeline_rejected_total",
		Help:      "Timeline answers rejected as malformed, by parse mode.",
	}, []string{"mode"})
)

func init() {
	metricsRegistry.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		httpInFlight,
		dbQueryDuration,
		dbQueryErrors,
		externalDuration,
		externalErrors,
		timelinePoints,
		timelineRejected,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		}, func() float64 { return time.Since(appStartedAt).Seconds() }),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

func metricsHandler() http.Handler {
	return promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func observabilityMiddleware(next http.Handler) http.Handler {
	tracer := otel.Tracer("go-hunt-dashboard/http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		ctx, span := tracer.Start(r.Context(), r.Method+" "+normalizeMetricPath(r.URL.Path), trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		req := r.WithContext(ctx)
		next.ServeHTTP(rec, req)

		route := req.Pattern
		if route == "" {
			route = normalizeMetricPath(r.URL.Path)
		} else if _, path, ok := strings.Cut(route, " "); ok {
			route = path
		}
		span.SetAttributes(attribute.String("http.route", route), attribute.Int("http.status_code", rec.status))
		recordHTTPMetric(r.Method, route, rec.status, time.Since(start).Seconds())
	})
}

// normalizeMetricPath keeps label cardinality bounded for requests that did
// not match a route pattern.
func normalizeMetricPath(path string) string {
	switch {
	case path == "/", path == "/metrics", path == "/health", path == "/ready":
		return path
	case strings.HasPrefix(path, "/api/v1/dashboard/fields/"):
		return "/api/v1/dashboard/fields/{field}/more"
	case strings.HasPrefix(path, "/api/v1/dashboard/layouts/micro/"):
		return "/api/v1/dashboard/layouts/micro/{panel}"
	case strings.HasPrefix(path, "/api/v1/rules/"):
		return "/api/v1/rules/{sid}"
	default:
		return "other"
	}
}

func recordHTTPMetric(method, path string, status int, durationSeconds float64) {
	code := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, path, code).Inc()
	httpRequestDuration.WithLabelValues(method, path, code).Observe(durationSeconds)
}

func recordDBQuery(connector, operation string, durationSeconds float64, err error) {
	if connector == "" || operation == "" {
		return
	}
	dbQueryDuration.WithLabelValues(connector, operation).Observe(durationSeconds)
	if err != nil {
		dbQueryErrors.WithLabelValues(connector, operation).Inc()
	}
}

func recordExternalProbe(target, operation string, durationSeconds float64, err error) {
	if target == "" || operation == "" {
		return
	}
	externalDuration.WithLabelValues(target, operation).Observe(durationSeconds)
	if err != nil {
		externalErrors.WithLabelValues(target, operation).Inc()
	}
}
