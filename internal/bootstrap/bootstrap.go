package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alvaxu/multimodal-rag/internal/config"
	"github.com/alvaxu/multimodal-rag/internal/core/domain"
	"github.com/alvaxu/multimodal-rag/internal/core/ports"
	"github.com/alvaxu/multimodal-rag/internal/core/usecase"
	"github.com/alvaxu/multimodal-rag/internal/infrastructure/llm/ollama"
	"github.com/alvaxu/multimodal-rag/internal/infrastructure/queue/nats"
	"github.com/alvaxu/multimodal-rag/internal/infrastructure/rerank/crossencoder"
	"github.com/alvaxu/multimodal-rag/internal/infrastructure/repository/postgres"
	"github.com/alvaxu/multimodal-rag/internal/infrastructure/resilience"
	"github.com/alvaxu/multimodal-rag/internal/infrastructure/vector/qdrant"
	"github.com/alvaxu/multimodal-rag/internal/observability/metrics"
)

type App struct {
	Config  config.Config
	Service ports.QueryService
	Audit   ports.QueryAuditReader
	Bus     ports.ChunkEventBus
	Metrics *metrics.HTTPServerMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "validate config", err)
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	auditRepo := postgres.NewQueryLogRepository(db)
	if err := auditRepo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	bus, err := nats.New(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		return nil, fmt.Errorf("init chunk event bus: %w", err)
	}

	store := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, resilience.NewExecutor(resilience.VectorStorePolicy()))

	// Embedding calls sit on the query hot path and tolerate retries;
	// generation is a single long call and must not be replayed.
	embedder := ollama.NewEmbedder(ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, resilience.NewExecutor(resilience.DefaultConfig())))
	generator := ollama.NewGenerator(ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, resilience.NewExecutor(resilience.GenerationPolicy())))

	orchestrator, err := buildOrchestrator(cfg, store, embedder, generator, auditRepo)
	if err != nil {
		bus.Close()
		_ = db.Close()
		return nil, err
	}

	return &App{
		Config:  cfg,
		Service: orchestrator,
		Audit:   auditRepo,
		Bus:     bus,
		Metrics: metrics.NewHTTPServerMetrics("multimodal-rag-api"),

		closeFn: func() {
			bus.Close()
			_ = db.Close()
		},
	}, nil
}

func buildOrchestrator(
	cfg config.Config,
	store ports.DocumentStore,
	embedder ports.Embedder,
	generator ports.AnswerGenerator,
	auditLog ports.QueryLogStore,
) (*usecase.Orchestrator, error) {
	engineCfg := usecase.ModalityEngineConfig{
		SimilarityThreshold:    cfg.SimilarityThreshold,
		FallbackThresholdRatio: cfg.FallbackThresholdRatio,
	}

	engines := make(map[domain.ContentType]*usecase.ModalityEngine, 3)
	for _, name := range []domain.ContentType{domain.ContentTypeImage, domain.ContentTypeText, domain.ContentTypeTable} {
		cache := usecase.NewDocumentCache(name, store)
		engines[name] = usecase.NewModalityEngine(name, cache, store, embedder, engineCfg)
	}

	rerankers, err := buildRerankers(cfg)
	if err != nil {
		return nil, err
	}

	fusion := usecase.NewFusionEngine(usecase.FusionConfig{
		TypePriority:     parseTypePriority(cfg.TypePriority),
		TypePriorityStep: cfg.TypePriorityStep,
		RankDecay:        cfg.RankDecay,
	})

	tables := usecase.DefaultKeywordTables()
	if cfg.IntentKeywordsFile != "" {
		tables, err = usecase.LoadKeywordTables(cfg.IntentKeywordsFile)
		if err != nil {
			return nil, domain.WrapError(domain.ErrConfiguration, "load intent keywords", err)
		}
	}
	intent := usecase.NewIntentAnalyzer(tables)

	opts := usecase.OrchestratorOptions{
		Generator: generator,
		AuditLog:  auditLog,
	}
	if cfg.SmartFilterRelevance > 0 {
		opts.SmartFilter = usecase.NewSmartFilter(cfg.SmartFilterRelevance)
	}
	if len(cfg.ExcludedSources) > 0 {
		opts.SourceFilter = usecase.NewSourceFilter(cfg.ExcludedSources)
	}

	return usecase.NewOrchestrator(
		engines,
		rerankers,
		fusion,
		intent,
		usecase.OrchestratorConfig{
			MaxParallel:       cfg.MaxParallel,
			ModalityTimeout:   time.Duration(cfg.ModalityTimeoutSeconds) * time.Second,
			DefaultMaxResults: cfg.DefaultMaxResults,
			GenerateAnswers:   cfg.GenerateAnswers,
		},
		opts,
	), nil
}

// buildRerankers picks the configured mode once at startup. Rule mode needs
// no collaborators; LLM mode builds one cross-encoder reranker per modality
// around a shared API client.
func buildRerankers(cfg config.Config) (map[domain.ContentType]usecase.Reranker, error) {
	rerankers := make(map[domain.ContentType]usecase.Reranker, 3)

	if !cfg.RerankUseLLM {
		for _, name := range []domain.ContentType{domain.ContentTypeImage, domain.ContentTypeText, domain.ContentTypeTable} {
			rerankers[name] = usecase.NewRuleReranker(cfg.DefaultMaxResults)
		}
		return rerankers, nil
	}

	client := crossencoder.New(cfg.RerankAPIURL, cfg.RerankAPIKey, cfg.RerankModelName, resilience.NewExecutor(resilience.RerankPolicy()))
	for _, name := range []domain.ContentType{domain.ContentTypeImage, domain.ContentTypeText, domain.ContentTypeTable} {
		reranker, err := usecase.NewCrossEncoderReranker(client, usecase.CrossEncoderConfig{
			ModelName:           cfg.RerankModelName,
			TargetCount:         cfg.RerankTargetCount,
			SimilarityThreshold: cfg.RerankSimilarityThreshold,
		})
		if err != nil {
			return nil, err
		}
		rerankers[name] = reranker
	}
	return rerankers, nil
}

func parseTypePriority(names []string) []domain.ContentType {
	out := make([]domain.ContentType, 0, len(names))
	for _, name := range names {
		contentType, ok := domain.ParseContentType(name)
		if !ok {
			slog.Warn("unknown_type_priority_entry", "value", name)
			continue
		}
		out = append(out, contentType)
	}
	return out
}

// RunCacheLoop warms every modality cache, then refreshes on chunk-update
// notifications until ctx is cancelled.
func (a *App) RunCacheLoop(ctx context.Context) error {
	if refreshed, err := a.Service.RefreshCaches(ctx); err != nil {
		slog.Warn("initial_cache_warmup_incomplete", "refreshed", refreshed, "error", err)
	}
	a.recordCacheState(ctx, nil)

	return a.Bus.SubscribeChunksUpdated(ctx, func(ctx context.Context, contentType string) error {
		slog.Info("chunks_updated", "content_type", contentType)
		_, err := a.Service.RefreshCaches(ctx)
		a.recordCacheState(ctx, err)
		return err
	})
}

func (a *App) recordCacheState(ctx context.Context, refreshErr error) {
	for engine, status := range a.Service.EngineStatus(ctx) {
		a.Metrics.RecordCacheRefresh("multimodal-rag-api", engine, status.DocumentCount, refreshErr)
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
