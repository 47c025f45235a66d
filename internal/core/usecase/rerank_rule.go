package usecase

import (
	"context"

	"github.com/alvaxu/multimodal-rag/internal/core/domain"
)

// RuleReranker scores candidates with keyword-overlap heuristics only. It is
// both the configured mode when LLM enhancement is off and the per-call
// fallback when the cross-encoder API errors.
type RuleReranker struct {
	targetCount int
}

func NewRuleReranker(targetCount int) *RuleReranker {
	if targetCount <= 0 {
		targetCount = 10
	}
	return &RuleReranker{targetCount: targetCount}
}

func (r *RuleReranker) Rerank(_ context.Context, query string, candidates []domain.Candidate) (RerankOutcome, error) {
	valid, dropped := validateCandidates(candidates)
	return RerankOutcome{
		Candidates: rankByRule(query, valid, r.targetCount, domain.RerankSourceRule),
		Source:     domain.RerankSourceRule,
		Dropped:    dropped,
	}, nil
}

var _ Reranker = (*RuleReranker)(nil)
