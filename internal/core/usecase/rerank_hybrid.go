package usecase

import (
	"context"
	"sort"

	"github.com/alvaxu/multimodal-rag/internal/core/domain"
)

// HybridReranker composes the per-type rerankers and the fusion engine.
// It deduplicates by id across modality batches before fusion, keeping the
// occurrence from the higher-priority batch.
type HybridReranker struct {
	perType map[domain.ContentType]Reranker
	fusion  *FusionEngine
}

func NewHybridReranker(perType map[domain.ContentType]Reranker, fusion *FusionEngine) *HybridReranker {
	return &HybridReranker{perType: perType, fusion: fusion}
}

// RerankAndFuse reranks each modality batch with its type-specific service
// and merges the results. A reranker error does not abort the call: that
// group degrades to rule scoring and the degradation is reported.
func (h *HybridReranker) RerankAndFuse(ctx context.Context, query string, batches []domain.RetrievalBatch) ([]domain.FusedResult, RerankOutcome) {
	groups := make(map[domain.ContentType][]domain.RerankedCandidate, len(batches))
	summary := RerankOutcome{Source: domain.RerankSourceRule}

	seen := make(map[string]struct{}, 32)
	for _, batch := range h.orderBatches(batches) {
		deduped := make([]domain.Candidate, 0, len(batch.Candidates))
		for _, c := range batch.Candidates {
			if _, dup := seen[c.ID]; dup {
				continue
			}
			seen[c.ID] = struct{}{}
			deduped = append(deduped, c)
		}
		if len(deduped) == 0 {
			continue
		}

		reranker, ok := h.perType[batch.Engine]
		if !ok {
			reranker = NewRuleReranker(len(deduped))
		}

		outcome, err := reranker.Rerank(ctx, query, deduped)
		if err != nil {
			outcome = RerankOutcome{
				Candidates: rankByRule(query, deduped, 0, domain.RerankSourceFallback),
				Source:     domain.RerankSourceFallback,
				Degraded:   true,
			}
		}

		groups[batch.Engine] = outcome.Candidates
		summary.Dropped += outcome.Dropped
		summary.Degraded = summary.Degraded || outcome.Degraded
		if outcome.Source == domain.RerankSourceLLM && summary.Source != domain.RerankSourceFallback {
			summary.Source = domain.RerankSourceLLM
		}
		if outcome.Source == domain.RerankSourceFallback {
			summary.Source = domain.RerankSourceFallback
		}
	}

	return h.fusion.Fuse(groups), summary
}

// Rerank implements the Reranker contract for mixed-type candidate lists.
// Candidates are grouped by their explicit content type; the fused order is
// re-expressed as rerank ranks.
func (h *HybridReranker) Rerank(ctx context.Context, query string, candidates []domain.Candidate) (RerankOutcome, error) {
	byType := make(map[domain.ContentType][]domain.Candidate, 3)
	invalid := 0
	for _, c := range candidates {
		if _, ok := domain.ParseContentType(string(c.ContentType)); !ok {
			invalid++
			continue
		}
		byType[c.ContentType] = append(byType[c.ContentType], c)
	}

	batches := make([]domain.RetrievalBatch, 0, len(byType))
	for contentType, group := range byType {
		batches = append(batches, domain.RetrievalBatch{
			Engine:     contentType,
			Candidates: group,
			MatchType:  domain.MatchTypeKeyword,
		})
	}

	fused, summary := h.RerankAndFuse(ctx, query, batches)

	out := make([]domain.RerankedCandidate, 0, len(fused))
	for i, item := range fused {
		rc := item.RerankedCandidate
		rc.Rank = i + 1
		out = append(out, rc)
	}
	summary.Candidates = out
	summary.Dropped += invalid
	return summary, nil
}

// orderBatches yields batches in fusion type-priority order so cross-batch
// dedup keeps the higher-priority occurrence deterministically.
func (h *HybridReranker) orderBatches(batches []domain.RetrievalBatch) []domain.RetrievalBatch {
	byType := make(map[domain.ContentType]domain.RetrievalBatch, len(batches))
	for _, batch := range batches {
		if existing, ok := byType[batch.Engine]; ok {
			existing.Candidates = append(existing.Candidates, batch.Candidates...)
			byType[batch.Engine] = existing
			continue
		}
		byType[batch.Engine] = batch
	}

	ordered := make([]domain.RetrievalBatch, 0, len(byType))
	for _, contentType := range h.fusion.TypePriority() {
		if batch, ok := byType[contentType]; ok {
			ordered = append(ordered, batch)
			delete(byType, contentType)
		}
	}
	if len(byType) > 0 {
		// Types outside the priority table go last, in name order.
		rest := make([]domain.ContentType, 0, len(byType))
		for contentType := range byType {
			rest = append(rest, contentType)
		}
		sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
		for _, contentType := range rest {
			ordered = append(ordered, byType[contentType])
		}
	}
	return ordered
}

var _ Reranker = (*HybridReranker)(nil)
