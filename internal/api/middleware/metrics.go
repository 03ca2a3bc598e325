package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const otherPath = "other"

// knownPaths — пути, которые попадают в лейбл path как есть.
var knownPaths = map[string]struct{}{
	"/health/live":  {},
	"/health/ready": {},
	"/metrics":      {},
}

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "itadmin",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Количество HTTP-запросов к служебному серверу",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "itadmin",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Длительность обработки HTTP-запросов, секунды",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 3},
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware считает запросы и их длительность
// (itadmin_http_requests_total, itadmin_http_request_duration_seconds).
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			rec := newResponseWriter(w)
			next.ServeHTTP(rec, r)

			path := normalizePath(r.URL.Path)
			httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.Status())).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(started).Seconds())
		})
	}
}

// normalizePath сводит неизвестные пути к "other": сканеры и опечатки
// не должны раздувать кардинальность.
func normalizePath(path string) string {
	if _, ok := knownPaths[path]; ok {
		return path
	}
	return otherPath
}
