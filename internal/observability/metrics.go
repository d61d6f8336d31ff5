// Package observability holds the bridge's prometheus metrics and the HTTP
// middleware that records them.
package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricsOnce sync.Once

	reqTotal     *prometheus.CounterVec
	reqDuration  *prometheus.HistogramVec
	queueDepth   prometheus.Gauge
	callDuration *prometheus.HistogramVec
)

func initMetrics() {
	metricsOnce.Do(func() {
		reqTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "apro_bridge_http_requests_total",
			Help: "Total HTTP requests handled by method, route and status.",
		}, []string{"method", "route", "status"})
		reqDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "apro_bridge_http_request_duration_seconds",
			Help:    "HTTP request duration by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"})
		queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "apro_bridge_main_queue_depth",
			Help: "Work items waiting for the main-thread executor.",
		})
		callDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "apro_bridge_call_duration_seconds",
			Help:    "Time from submitting work to the main thread until the caller resumes.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"})
		prometheus.MustRegister(reqTotal, reqDuration, queueDepth, callDuration)
	})
}

// SetQueueDepth records the executor backlog.
func SetQueueDepth(n int) {
	initMetrics()
	queueDepth.Set(float64(n))
}

// ObserveCall records one bridge round trip. outcome is "ok" or an error kind.
func ObserveCall(outcome string, d time.Duration) {
	initMetrics()
	callDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// Handler serves the prometheus registry.
func Handler() http.Handler {
	initMetrics()
	return promhttp.Handler()
}

// Middleware counts requests by chi route pattern so ids in paths do not
// explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	initMetrics()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		reqTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.statusCode)).Inc()
		reqDuration.WithLabelValues(r.Method, route).Observe(time.Since(started).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
