package ports

import (
	"context"

	"github.com/alvaxu/multimodal-rag/internal/core/domain"
)

// DocumentStore reads the shared chunk index. The core never mutates it
// during query processing.
type DocumentStore interface {
	DocumentsByType(ctx context.Context, contentType domain.ContentType) ([]domain.StoredChunk, error)
	Search(ctx context.Context, queryVector []float32, limit int, contentType domain.ContentType) ([]domain.ScoredChunk, error)
}

// Embedder builds vectors for query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// RerankClient calls an external cross-encoder reranking API.
type RerankClient interface {
	Rerank(ctx context.Context, query string, documents []string, topK int) ([]domain.RerankScore, error)
}

// AnswerGenerator creates the optional natural-language answer from the
// final fused result set.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, results []domain.FusedResult) (string, error)
}

// ChunkEventBus broadcasts document-store updates so running instances can
// refresh their modality caches.
type ChunkEventBus interface {
	PublishChunksUpdated(ctx context.Context, contentType string) error
	SubscribeChunksUpdated(ctx context.Context, handler func(context.Context, string) error) error
}

// QueryLogStore persists the per-query audit trail.
type QueryLogStore interface {
	Insert(ctx context.Context, rec domain.QueryLogRecord) error
	ListRecent(ctx context.Context, limit int) ([]domain.QueryLogRecord, error)
}
