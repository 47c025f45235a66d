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

	queriesTotal       *prometheus.CounterVec
	queryDuration      *prometheus.HistogramVec
	intentTotal        *prometheus.CounterVec
	resultCount        *prometheus.HistogramVec
	modalityCandidates *prometheus.HistogramVec
	modalityFailures   *prometheus.CounterVec
	rerankFallbacks    *prometheus.CounterVec
	degradedTotal      *prometheus.CounterVec
	cacheRefreshTotal  *prometheus.CounterVec
	cacheDocuments     *prometheus.GaugeVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mmrag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mmrag",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mmrag",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mmrag",
			Subsystem: "retrieval",
			Name:      "queries_total",
			Help:      "Total retrieval queries by type and outcome.",
		},
		[]string{"service", "query_type", "status"},
	)
	queryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mmrag",
			Subsystem: "retrieval",
			Name:      "query_duration_seconds",
			Help:      "End-to-end query pipeline duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "query_type"},
	)
	intentTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mmrag",
			Subsystem: "retrieval",
			Name:      "intent_total",
			Help:      "Total analyzed query intents.",
		},
		[]string{"service", "intent"},
	)
	resultCount := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mmrag",
			Subsystem: "retrieval",
			Name:      "results_returned",
			Help:      "Distribution of fused results per query.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "query_type"},
	)
	modalityCandidates := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mmrag",
			Subsystem: "retrieval",
			Name:      "modality_candidates",
			Help:      "Distribution of raw candidates per modality engine.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "engine", "match_type"},
	)
	modalityFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mmrag",
			Subsystem: "retrieval",
			Name:      "modality_failures_total",
			Help:      "Total modality engine failures excluded from fusion.",
		},
		[]string{"service", "engine"},
	)
	rerankFallbacks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mmrag",
			Subsystem: "rerank",
			Name:      "fallbacks_total",
			Help:      "Total rerank calls degraded to rule scoring.",
		},
		[]string{"service"},
	)
	degradedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mmrag",
			Subsystem: "retrieval",
			Name:      "degraded_total",
			Help:      "Total queries served in degraded mode.",
		},
		[]string{"service", "query_type"},
	)
	cacheRefreshTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mmrag",
			Subsystem: "cache",
			Name:      "refresh_total",
			Help:      "Total modality cache refreshes by status.",
		},
		[]string{"service", "engine", "status"},
	)
	cacheDocuments := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mmrag",
			Subsystem: "cache",
			Name:      "documents",
			Help:      "Documents currently held per modality cache.",
		},
		[]string{"service", "engine"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		queriesTotal,
		queryDuration,
		intentTotal,
		resultCount,
		modalityCandidates,
		modalityFailures,
		rerankFallbacks,
		degradedTotal,
		cacheRefreshTotal,
		cacheDocuments,
	)

	return &HTTPServerMetrics{
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		queriesTotal:       queriesTotal,
		queryDuration:      queryDuration,
		intentTotal:        intentTotal,
		resultCount:        resultCount,
		modalityCandidates: modalityCandidates,
		modalityFailures:   modalityFailures,
		rerankFallbacks:    rerankFallbacks,
		degradedTotal:      degradedTotal,
		cacheRefreshTotal:  cacheRefreshTotal,
		cacheDocuments:     cacheDocuments,
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

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/queries/"):
		return "/v1/queries/recent"
	default:
		return path
	}
}

// RecordQuery captures the per-request retrieval observation after the
// pipeline finishes.
func (m *HTTPServerMetrics) RecordQuery(service, queryType string, success, degraded bool, results int, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	m.queriesTotal.WithLabelValues(service, queryType, status).Inc()
	m.queryDuration.WithLabelValues(service, queryType).Observe(duration.Seconds())
	m.resultCount.WithLabelValues(service, queryType).Observe(float64(results))
	if degraded {
		m.degradedTotal.WithLabelValues(service, queryType).Inc()
	}
}

func (m *HTTPServerMetrics) RecordIntent(service, intent string) {
	if intent == "" {
		intent = "unknown"
	}
	m.intentTotal.WithLabelValues(service, intent).Inc()
}

func (m *HTTPServerMetrics) RecordModalityBatch(service, engine, matchType string, candidates int) {
	if matchType == "" {
		matchType = "unknown"
	}
	m.modalityCandidates.WithLabelValues(service, engine, matchType).Observe(float64(candidates))
}

func (m *HTTPServerMetrics) RecordModalityFailure(service, engine string) {
	m.modalityFailures.WithLabelValues(service, engine).Inc()
}

func (m *HTTPServerMetrics) RecordRerankFallback(service string) {
	m.rerankFallbacks.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordCacheRefresh(service, engine string, documents int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.cacheRefreshTotal.WithLabelValues(service, engine, status).Inc()
	if err == nil {
		m.cacheDocuments.WithLabelValues(service, engine).Set(float64(documents))
	}
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
