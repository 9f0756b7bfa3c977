package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Общие HTTP-метрики
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Метрики подсистемы аутентификации и аудита.
var (
	LoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gestix_logins_total",
			Help: "Login attempts by outcome.",
		},
		[]string{"outcome"},
	)

	ForcedLogoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gestix_forced_logouts_total",
			Help: "Sessions terminated during validation, by reason.",
		},
		[]string{"reason"},
	)

	AccessDeniedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gestix_access_denied_total",
		Help: "Requests to protected resources rejected by the guard.",
	})

	AuditWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gestix_audit_writes_total",
			Help: "Audit log insertions by event type.",
		},
		[]string{"event_type"},
	)

	AuditWriteFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gestix_audit_write_failures_total",
			Help: "Audit log insertions that failed and were dropped.",
		},
		[]string{"event_type"},
	)
)

var readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "gestix_ready",
	Help: "1 when the service dependencies answered the last readiness check.",
})

// SetReady records the outcome of the latest readiness check.
func SetReady(ok bool) {
	if ok {
		readyGauge.Set(1)
		return
	}
	readyGauge.Set(0)
}

var initOnce sync.Once

// Init registers all collectors in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			LoginsTotal, ForcedLogoutsTotal, AccessDeniedTotal,
			AuditWritesTotal, AuditWriteFailuresTotal, readyGauge,
		)
	})
}

// Хэндлер Prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument measures RPS, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

var knownPaths = map[string]struct{}{
	"/":              {},
	"/login":         {},
	"/logout":        {},
	"/check_session": {},
	"/dashboard":     {},
	"/healthz":       {},
	"/readyz":        {},
	"/metrics":       {},
}

// CanonicalPath collapses request paths into a bounded label set so that
// arbitrary URLs cannot blow up metric cardinality.
func CanonicalPath(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" {
		return "/"
	}
	if len(raw) > 1 {
		raw = strings.TrimSuffix(raw, "/")
	}
	if _, ok := knownPaths[raw]; ok {
		return raw
	}
	if strings.HasPrefix(raw, "/assets/") {
		return "/assets/*"
	}
	return "other"
}

// statusWriter: локальная копия, чтобы знать код ответа.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
