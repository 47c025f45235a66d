package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alvaxu/multimodal-rag/internal/core/domain"
	"github.com/alvaxu/multimodal-rag/internal/core/ports"
)

type OrchestratorConfig struct {
	// MaxParallel bounds the modality fan-out worker pool.
	MaxParallel int

	// ModalityTimeout caps each modality engine call independently; a
	// timeout excludes that modality only, never the whole query.
	ModalityTimeout time.Duration

	DefaultMaxResults int
	GenerateAnswers   bool
}

func (c OrchestratorConfig) normalize() OrchestratorConfig {
	out := c
	if out.MaxParallel <= 0 {
		out.MaxParallel = 5
	}
	if out.ModalityTimeout <= 0 {
		out.ModalityTimeout = 10 * time.Second
	}
	if out.DefaultMaxResults <= 0 {
		out.DefaultMaxResults = 10
	}
	return out
}

// OrchestratorOptions carries the optional post-stages. A nil field simply
// skips that stage.
type OrchestratorOptions struct {
	SmartFilter  *SmartFilter
	SourceFilter *SourceFilter
	Generator    ports.AnswerGenerator
	AuditLog     ports.QueryLogStore
}

// Orchestrator is the public entry point of the hybrid retrieval core. It
// routes a query to modality engines, reranks and fuses their candidates,
// applies optional filter/generation stages, and degrades gracefully: only
// an empty query or the loss of every modality fails a request.
type Orchestrator struct {
	engines   map[domain.ContentType]*ModalityEngine
	rerankers map[domain.ContentType]Reranker
	hybrid    *HybridReranker
	fusion    *FusionEngine
	intent    *IntentAnalyzer
	opts      OrchestratorOptions
	cfg       OrchestratorConfig
}

func NewOrchestrator(
	engines map[domain.ContentType]*ModalityEngine,
	rerankers map[domain.ContentType]Reranker,
	fusion *FusionEngine,
	intent *IntentAnalyzer,
	cfg OrchestratorConfig,
	opts OrchestratorOptions,
) *Orchestrator {
	return &Orchestrator{
		engines:   engines,
		rerankers: rerankers,
		hybrid:    NewHybridReranker(rerankers, fusion),
		fusion:    fusion,
		intent:    intent,
		opts:      opts,
		cfg:       cfg.normalize(),
	}
}

type engineOutcome struct {
	engine domain.ContentType
	batch  domain.RetrievalBatch
	err    error
}

func (o *Orchestrator) ProcessQuery(ctx context.Context, query string, queryType domain.QueryType, maxResults int) domain.QueryResult {
	start := time.Now()

	result := domain.QueryResult{
		Query:     query,
		QueryType: queryType,
		Results:   []domain.FusedResult{},
		Metadata: domain.QueryMetadata{
			ModalityCounts:  map[string]int{},
			RelevanceByType: map[string]float64{},
			MatchTypes:      map[string]string{},
		},
	}

	if strings.TrimSpace(query) == "" {
		result.ErrorMessage = "query is empty"
		result.ProcessingTime = time.Since(start).Seconds()
		return result
	}
	if maxResults <= 0 {
		maxResults = o.cfg.DefaultMaxResults
	}

	route := queryType
	if queryType == domain.QueryTypeSmart {
		ir := o.intent.AnalyzeIntentWithConfidence(query)
		result.Metadata.Intent = ir.PrimaryIntent
		route = RouteForIntent(ir.PrimaryIntent)
	} else {
		result.Metadata.Intent = string(queryType)
	}

	targets := o.targetEngines(route)
	if len(targets) == 0 {
		result.ErrorMessage = "no modality engines configured for query type " + string(route)
		result.ProcessingTime = time.Since(start).Seconds()
		return result
	}

	outcomes := o.retrieve(ctx, targets, query, maxResults)

	batches := make([]domain.RetrievalBatch, 0, len(outcomes))
	failed := 0
	for _, outcome := range outcomes {
		if outcome.err != nil {
			failed++
			result.Metadata.Degraded = true
			result.Metadata.ProcessingDetails = append(result.Metadata.ProcessingDetails, domain.ProcessingDetail{
				Stage:   "retrieval",
				Engine:  string(outcome.engine),
				Message: outcome.err.Error(),
			})
			slog.Warn("modality_failed", "engine", string(outcome.engine), "error", outcome.err)
			continue
		}
		batches = append(batches, outcome.batch)
		result.Metadata.ModalityCounts[string(outcome.engine)] = len(outcome.batch.Candidates)
		result.Metadata.MatchTypes[string(outcome.engine)] = outcome.batch.MatchType
	}

	if len(batches) == 0 {
		result.ErrorMessage = "all modality engines failed"
		result.ProcessingTime = time.Since(start).Seconds()
		o.audit(ctx, result, time.Since(start))
		return result
	}

	fused, rerankSummary := o.rerankAndFuse(ctx, query, batches)
	result.Metadata.DroppedCandidates = rerankSummary.Dropped
	result.Metadata.Degraded = result.Metadata.Degraded || rerankSummary.Degraded
	if rerankSummary.Degraded {
		result.Metadata.ProcessingDetails = append(result.Metadata.ProcessingDetails, domain.ProcessingDetail{
			Stage:   "reranking",
			Message: "rerank api unavailable, degraded to rule scoring",
		})
	}

	if len(fused) > maxResults {
		fused = fused[:maxResults]
	}

	if o.opts.SmartFilter != nil {
		kept, removed := o.opts.SmartFilter.Apply(query, fused)
		fused = kept
		result.Metadata.FilteredResults += removed
	}
	if o.opts.SourceFilter != nil {
		kept, removed := o.opts.SourceFilter.Apply(fused)
		fused = kept
		result.Metadata.FilteredResults += removed
	}

	for _, item := range fused {
		key := string(item.ContentType)
		if item.RerankScore > result.Metadata.RelevanceByType[key] {
			result.Metadata.RelevanceByType[key] = item.RerankScore
		}
	}

	result.Success = true
	result.Results = fused
	result.TotalCount = len(fused)

	if o.cfg.GenerateAnswers && o.opts.Generator != nil && len(fused) > 0 {
		answer, err := o.opts.Generator.GenerateAnswer(ctx, query, fused)
		if err != nil {
			slog.Warn("answer_generation_failed", "error", err)
			result.Metadata.Degraded = true
			result.Metadata.ProcessingDetails = append(result.Metadata.ProcessingDetails, domain.ProcessingDetail{
				Stage:   "generation",
				Message: err.Error(),
			})
		} else {
			result.Answer = answer
		}
	}

	result.ProcessingTime = time.Since(start).Seconds()
	o.audit(ctx, result, time.Since(start))
	return result
}

// retrieve runs the target engines concurrently in a bounded pool. Each
// worker writes an immutable outcome into its own slot; results are joined
// here, after every call has finished or timed out.
func (o *Orchestrator) retrieve(ctx context.Context, targets []*ModalityEngine, query string, maxResults int) []engineOutcome {
	outcomes := make([]engineOutcome, len(targets))

	var g errgroup.Group
	g.SetLimit(o.cfg.MaxParallel)
	for i, engine := range targets {
		i, engine := i, engine
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, o.cfg.ModalityTimeout)
			defer cancel()

			batch, err := engine.ProcessQuery(callCtx, query, maxResults)
			outcomes[i] = engineOutcome{
				engine: engine.ContentType(),
				batch:  batch,
				err:    err,
			}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (o *Orchestrator) rerankAndFuse(ctx context.Context, query string, batches []domain.RetrievalBatch) ([]domain.FusedResult, RerankOutcome) {
	if len(batches) > 1 {
		return o.hybrid.RerankAndFuse(ctx, query, batches)
	}

	batch := batches[0]
	reranker, ok := o.rerankers[batch.Engine]
	if !ok {
		reranker = NewRuleReranker(len(batch.Candidates))
	}
	outcome, err := reranker.Rerank(ctx, query, batch.Candidates)
	if err != nil {
		outcome = RerankOutcome{
			Candidates: rankByRule(query, batch.Candidates, 0, domain.RerankSourceFallback),
			Source:     domain.RerankSourceFallback,
			Degraded:   true,
		}
	}
	return o.fusion.FromSingle(batch.Engine, outcome.Candidates), outcome
}

func (o *Orchestrator) targetEngines(route domain.QueryType) []*ModalityEngine {
	if route == domain.QueryTypeHybrid {
		targets := make([]*ModalityEngine, 0, len(o.engines))
		for _, contentType := range o.fusion.TypePriority() {
			if engine, ok := o.engines[contentType]; ok {
				targets = append(targets, engine)
			}
		}
		return targets
	}

	contentType, ok := domain.ParseContentType(string(route))
	if !ok {
		return nil
	}
	engine, ok := o.engines[contentType]
	if !ok {
		return nil
	}
	return []*ModalityEngine{engine}
}

func (o *Orchestrator) audit(ctx context.Context, result domain.QueryResult, duration time.Duration) {
	if o.opts.AuditLog == nil {
		return
	}

	record := domain.QueryLogRecord{
		Query:          result.Query,
		QueryType:      string(result.QueryType),
		Intent:         result.Metadata.Intent,
		ModalityCounts: result.Metadata.ModalityCounts,
		ResultCount:    result.TotalCount,
		Degraded:       result.Metadata.Degraded,
		DurationMS:     float64(duration.Microseconds()) / 1000.0,
		CreatedAt:      time.Now().UTC(),
	}
	if err := o.opts.AuditLog.Insert(ctx, record); err != nil {
		slog.Warn("query_audit_failed", "error", err)
	}
}

func (o *Orchestrator) EngineStatus(_ context.Context) map[string]domain.EngineStatus {
	out := make(map[string]domain.EngineStatus, len(o.engines))
	for contentType, engine := range o.engines {
		out[string(contentType)] = engine.Status()
	}
	return out
}

// RefreshCaches refreshes every modality cache and reports which engines
// were refreshed. Per-engine failures are joined, not short-circuited.
func (o *Orchestrator) RefreshCaches(ctx context.Context) ([]string, error) {
	refreshed := make([]string, 0, len(o.engines))
	var errs []error

	for _, contentType := range o.fusion.TypePriority() {
		engine, ok := o.engines[contentType]
		if !ok {
			continue
		}
		if err := engine.RefreshCache(ctx); err != nil {
			errs = append(errs, err)
			continue
		}
		refreshed = append(refreshed, string(contentType))
		slog.Info("cache_refreshed", "engine", string(contentType), "documents", engine.Status().DocumentCount)
	}

	return refreshed, errors.Join(errs...)
}

var _ ports.QueryService = (*Orchestrator)(nil)
