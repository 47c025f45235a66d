package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alvaxu/multimodal-rag/internal/core/domain"
	"github.com/alvaxu/multimodal-rag/internal/core/ports"
)

// CrossEncoderConfig is the required contract for LLM-mode reranking. All
// three keys must be present; missing keys fail at construction, never at
// query time.
type CrossEncoderConfig struct {
	ModelName           string
	TargetCount         int
	SimilarityThreshold float64
}

// CrossEncoderReranker submits (query, documents) pairs to an external
// cross-encoder API and keeps results above the similarity threshold.
// Request-time API failures degrade to rule scoring for that call only; the
// configured mode never changes.
type CrossEncoderReranker struct {
	client ports.RerankClient
	cfg    CrossEncoderConfig
}

func NewCrossEncoderReranker(client ports.RerankClient, cfg CrossEncoderConfig) (*CrossEncoderReranker, error) {
	if client == nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "cross-encoder reranker", errors.New("rerank client is required"))
	}
	if cfg.ModelName == "" {
		return nil, domain.WrapError(domain.ErrConfiguration, "cross-encoder reranker", errors.New("model_name is required"))
	}
	if cfg.TargetCount <= 0 {
		return nil, domain.WrapError(domain.ErrConfiguration, "cross-encoder reranker", errors.New("target_count is required"))
	}
	if cfg.SimilarityThreshold <= 0 {
		return nil, domain.WrapError(domain.ErrConfiguration, "cross-encoder reranker", errors.New("similarity_threshold is required"))
	}
	return &CrossEncoderReranker{client: client, cfg: cfg}, nil
}

func (r *CrossEncoderReranker) Rerank(ctx context.Context, query string, candidates []domain.Candidate) (RerankOutcome, error) {
	valid, dropped := validateCandidates(candidates)
	if len(valid) == 0 {
		return RerankOutcome{Source: domain.RerankSourceLLM, Dropped: dropped}, nil
	}

	documents := make([]string, 0, len(valid))
	for _, c := range valid {
		documents = append(documents, describeCandidate(c))
	}

	scores, err := r.client.Rerank(ctx, query, documents, r.cfg.TargetCount)
	if err != nil {
		slog.Warn("rerank_degraded",
			"model", r.cfg.ModelName,
			"candidates", len(valid),
			"error", err,
		)
		return RerankOutcome{
			Candidates: rankByRule(query, valid, r.cfg.TargetCount, domain.RerankSourceFallback),
			Source:     domain.RerankSourceFallback,
			Dropped:    dropped,
			Degraded:   true,
		}, nil
	}

	out := make([]domain.RerankedCandidate, 0, len(scores))
	for _, score := range scores {
		if score.Index < 0 || score.Index >= len(valid) {
			continue
		}
		if score.RelevanceScore < r.cfg.SimilarityThreshold {
			continue
		}
		out = append(out, domain.RerankedCandidate{
			Candidate:    valid[score.Index],
			RerankScore:  score.RelevanceScore,
			RerankSource: domain.RerankSourceLLM,
			Rank:         len(out) + 1,
		})
	}

	return RerankOutcome{
		Candidates: out,
		Source:     domain.RerankSourceLLM,
		Dropped:    dropped,
	}, nil
}

var _ Reranker = (*CrossEncoderReranker)(nil)
