package usecase

import (
	"strings"

	"github.com/alvaxu/multimodal-rag/internal/core/domain"
)

// SmartFilter drops fused results whose content relevance against the query
// falls below a threshold. Optional post-stage; never fails a query.
type SmartFilter struct {
	minRelevance float64
}

func NewSmartFilter(minRelevance float64) *SmartFilter {
	if minRelevance < 0 {
		minRelevance = 0
	}
	return &SmartFilter{minRelevance: minRelevance}
}

func (f *SmartFilter) Apply(query string, results []domain.FusedResult) ([]domain.FusedResult, int) {
	if f.minRelevance == 0 || len(results) == 0 {
		return results, 0
	}

	queryTokens := toTokenSet(query)
	kept := make([]domain.FusedResult, 0, len(results))
	for _, item := range results {
		if ruleRelevance(queryTokens, item.Candidate) < f.minRelevance {
			continue
		}
		kept = append(kept, item)
	}
	return kept, len(results) - len(kept)
}

// SourceFilter drops results originating from excluded document sources,
// matched against the document_name metadata key.
type SourceFilter struct {
	excluded map[string]struct{}
}

func NewSourceFilter(excludedSources []string) *SourceFilter {
	excluded := make(map[string]struct{}, len(excludedSources))
	for _, source := range excludedSources {
		source = strings.TrimSpace(source)
		if source == "" {
			continue
		}
		excluded[strings.ToLower(source)] = struct{}{}
	}
	return &SourceFilter{excluded: excluded}
}

func (f *SourceFilter) Apply(results []domain.FusedResult) ([]domain.FusedResult, int) {
	if len(f.excluded) == 0 || len(results) == 0 {
		return results, 0
	}

	kept := make([]domain.FusedResult, 0, len(results))
	for _, item := range results {
		source := strings.ToLower(item.MetaString("document_name"))
		if _, drop := f.excluded[source]; drop {
			continue
		}
		kept = append(kept, item)
	}
	return kept, len(results) - len(kept)
}
