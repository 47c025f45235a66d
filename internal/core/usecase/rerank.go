package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/alvaxu/multimodal-rag/internal/core/domain"
)

// Reranker reorders candidates by estimated relevance to the query.
//
// Implementations must not fail on external-service errors at request time;
// they degrade to rule scoring and report it through RerankOutcome.Degraded.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []domain.Candidate) (RerankOutcome, error)
}

// RerankOutcome carries the reranked list plus validation/degradation
// diagnostics for the orchestrator's metadata.
type RerankOutcome struct {
	Candidates []domain.RerankedCandidate
	Source     domain.RerankSource
	Dropped    int
	Degraded   bool
}

// validateCandidates drops malformed candidates (empty content) before
// reranking. This is a permanent filter: dropped candidates never reappear
// in rerank output.
func validateCandidates(in []domain.Candidate) ([]domain.Candidate, int) {
	valid := make([]domain.Candidate, 0, len(in))
	for _, c := range in {
		if strings.TrimSpace(c.Content) == "" {
			continue
		}
		valid = append(valid, c)
	}
	return valid, len(in) - len(valid)
}

// ruleRelevance is the rule-based relevance score shared by the rule
// reranker and the LLM-mode fallback path. Same shape as the modality
// engines' keyword scoring: content overlap dominates, modality metadata
// contributes the rest.
func ruleRelevance(queryTokens map[string]struct{}, c domain.Candidate) float64 {
	contentOverlap := tokenOverlap(queryTokens, toTokenSet(c.Content))

	switch c.ContentType {
	case domain.ContentTypeImage:
		score := imageContentWeight*contentOverlap +
			imageCaptionWeight*tokenOverlap(queryTokens, toTokenSet(c.MetaString("caption"))) +
			imageEnhancedWeight*tokenOverlap(queryTokens, toTokenSet(c.MetaString("enhanced_description")))
		return clamp01(score)
	case domain.ContentTypeTable:
		score := tableContentWeight*contentOverlap +
			tableHeaderWeight*tokenOverlap(queryTokens, toTokenSet(metaString(c.Metadata, "columns")))
		return clamp01(score)
	default:
		return clamp01(contentOverlap)
	}
}

func rankByRule(query string, candidates []domain.Candidate, targetCount int, source domain.RerankSource) []domain.RerankedCandidate {
	queryTokens := toTokenSet(query)

	out := make([]domain.RerankedCandidate, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, domain.RerankedCandidate{
			Candidate:    c,
			RerankScore:  ruleRelevance(queryTokens, c),
			RerankSource: source,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RerankScore != out[j].RerankScore {
			return out[i].RerankScore > out[j].RerankScore
		}
		return out[i].ID < out[j].ID
	})

	if targetCount > 0 && len(out) > targetCount {
		out = out[:targetCount]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// describeCandidate builds the per-candidate document text submitted to the
// cross-encoder. Tables get a structural summary, images get caption plus
// enhancement, text goes in raw.
func describeCandidate(c domain.Candidate) string {
	switch c.ContentType {
	case domain.ContentTypeTable:
		var b strings.Builder
		b.WriteString("table")
		if rows := metaString(c.Metadata, "row_count"); rows != "" {
			fmt.Fprintf(&b, " rows=%s", rows)
		}
		if cols := metaString(c.Metadata, "column_count"); cols != "" {
			fmt.Fprintf(&b, " cols=%s", cols)
		}
		if dom := c.MetaString("business_domain"); dom != "" {
			fmt.Fprintf(&b, " domain=%s", dom)
		}
		if headers := metaString(c.Metadata, "columns"); headers != "" {
			fmt.Fprintf(&b, " headers=%s", headers)
		}
		b.WriteString("\n")
		b.WriteString(c.Content)
		return b.String()
	case domain.ContentTypeImage:
		parts := make([]string, 0, 4)
		if caption := c.MetaString("caption"); caption != "" {
			parts = append(parts, caption)
		}
		if enhanced := c.MetaString("enhanced_description"); enhanced != "" {
			parts = append(parts, enhanced)
		}
		if imageType := c.MetaString("image_type"); imageType != "" {
			parts = append(parts, "type: "+imageType)
		}
		parts = append(parts, c.Content)
		return strings.Join(parts, "\n")
	default:
		return c.Content
	}
}
