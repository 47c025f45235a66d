package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alvaxu/multimodal-rag/internal/core/domain"
	"github.com/alvaxu/multimodal-rag/internal/core/ports"
	"github.com/alvaxu/multimodal-rag/internal/observability/metrics"
)

const serviceName = "multimodal-rag-api"

type RouterConfig struct {
	RateLimitPerSecond    float64
	RateLimitBurst        int
	MaxConcurrentRequests int
	AuditRecentLimit      int

	// Notifier, when set, broadcasts a manual cache refresh so peer
	// instances reload too.
	Notifier ports.ChunkEventBus
}

func (c RouterConfig) normalize() RouterConfig {
	out := c
	if out.RateLimitPerSecond <= 0 {
		out.RateLimitPerSecond = 20
	}
	if out.RateLimitBurst <= 0 {
		out.RateLimitBurst = 40
	}
	if out.MaxConcurrentRequests <= 0 {
		out.MaxConcurrentRequests = 64
	}
	if out.AuditRecentLimit <= 0 {
		out.AuditRecentLimit = 50
	}
	return out
}

type Router struct {
	service ports.QueryService
	audit   ports.QueryAuditReader
	metrics *metrics.HTTPServerMetrics
	cfg     RouterConfig
}

func NewRouter(service ports.QueryService, audit ports.QueryAuditReader, m *metrics.HTTPServerMetrics, cfg RouterConfig) *Router {
	return &Router{
		service: service,
		audit:   audit,
		metrics: m,
		cfg:     cfg.normalize(),
	}
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware)
	if rt.metrics != nil {
		r.Use(func(next http.Handler) http.Handler {
			return rt.metrics.Middleware(serviceName, next)
		})
	}
	r.Use(rateLimitMiddleware(rt.cfg.RateLimitPerSecond, rt.cfg.RateLimitBurst))
	r.Use(func(next http.Handler) http.Handler {
		return backpressureMiddleware(next, rt.cfg.MaxConcurrentRequests, 50*time.Millisecond)
	})

	r.Get("/healthz", rt.healthz)
	if rt.metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/query", rt.processQuery)
		r.Get("/engines/status", rt.engineStatus)
		r.Post("/caches/refresh", rt.refreshCaches)
		r.Get("/queries/recent", rt.recentQueries)
	})

	return r
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type queryRequest struct {
	Query      string `json:"query"`
	QueryType  string `json:"query_type"`
	MaxResults int    `json:"max_results"`
}

func (rt *Router) processQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}
	queryType, ok := domain.ParseQueryType(req.QueryType)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown query_type: " + req.QueryType})
		return
	}

	start := time.Now()
	result := rt.service.ProcessQuery(r.Context(), req.Query, queryType, req.MaxResults)
	rt.observeQuery(result, time.Since(start))

	// Pipeline failures are encoded in the result body, not the HTTP
	// status: the request itself was well-formed and handled.
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) observeQuery(result domain.QueryResult, duration time.Duration) {
	if rt.metrics == nil {
		return
	}
	rt.metrics.RecordQuery(
		serviceName,
		string(result.QueryType),
		result.Success,
		result.Metadata.Degraded,
		result.TotalCount,
		duration,
	)
	rt.metrics.RecordIntent(serviceName, result.Metadata.Intent)
	for engine, count := range result.Metadata.ModalityCounts {
		rt.metrics.RecordModalityBatch(serviceName, engine, result.Metadata.MatchTypes[engine], count)
	}
	for _, detail := range result.Metadata.ProcessingDetails {
		switch detail.Stage {
		case "retrieval":
			rt.metrics.RecordModalityFailure(serviceName, detail.Engine)
		case "reranking":
			rt.metrics.RecordRerankFallback(serviceName)
		}
	}
}

func (rt *Router) engineStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"engines": rt.service.EngineStatus(r.Context()),
	})
}

func (rt *Router) refreshCaches(w http.ResponseWriter, r *http.Request) {
	refreshed, err := rt.service.RefreshCaches(r.Context())
	if rt.metrics != nil {
		statuses := rt.service.EngineStatus(r.Context())
		for engine, status := range statuses {
			rt.metrics.RecordCacheRefresh(serviceName, engine, status.DocumentCount, err)
		}
	}
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]any{
			"error":     err.Error(),
			"refreshed": refreshed,
		})
		return
	}
	if rt.cfg.Notifier != nil {
		if err := rt.cfg.Notifier.PublishChunksUpdated(r.Context(), ""); err != nil {
			slog.Warn("cache_refresh_broadcast_failed", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"refreshed": refreshed})
}

func (rt *Router) recentQueries(w http.ResponseWriter, r *http.Request) {
	if rt.audit == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "query audit log is not configured"})
		return
	}

	limit := rt.cfg.AuditRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	records, err := rt.audit.ListRecent(r.Context(), limit)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queries": records})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
