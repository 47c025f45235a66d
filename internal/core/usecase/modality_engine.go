package usecase

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/alvaxu/multimodal-rag/internal/core/domain"
	"github.com/alvaxu/multimodal-rag/internal/core/ports"
)

// Per-type weights for the keyword strategy. Content overlap always
// dominates; caption and table-structure matches reward modality-specific
// metadata the raw content rendering may not carry.
const (
	imageContentWeight  = 0.5
	imageCaptionWeight  = 0.3
	imageEnhancedWeight = 0.2

	tableContentWeight = 0.6
	tableHeaderWeight  = 0.4
)

type ModalityEngineConfig struct {
	// SimilarityThreshold gates the keyword strategy; candidates scoring
	// below it are discarded.
	SimilarityThreshold float64

	// FallbackThresholdRatio relaxes the threshold for the vector
	// fallback (0.8 by default).
	FallbackThresholdRatio float64
}

func (c ModalityEngineConfig) normalize() ModalityEngineConfig {
	out := c
	if out.SimilarityThreshold <= 0 {
		out.SimilarityThreshold = 0.3
	}
	if out.FallbackThresholdRatio <= 0 || out.FallbackThresholdRatio > 1 {
		out.FallbackThresholdRatio = 0.8
	}
	return out
}

// ModalityEngine retrieves raw candidates of one content type. Strategy one
// is a keyword/structural match over the cached type-filtered subset;
// strategy two is a vector similarity search against the shared index with a
// relaxed threshold, used only when the keyword pass yields nothing.
type ModalityEngine struct {
	contentType domain.ContentType
	cache       *DocumentCache
	store       ports.DocumentStore
	embedder    ports.Embedder
	cfg         ModalityEngineConfig
}

func NewModalityEngine(
	contentType domain.ContentType,
	cache *DocumentCache,
	store ports.DocumentStore,
	embedder ports.Embedder,
	cfg ModalityEngineConfig,
) *ModalityEngine {
	return &ModalityEngine{
		contentType: contentType,
		cache:       cache,
		store:       store,
		embedder:    embedder,
		cfg:         cfg.normalize(),
	}
}

func (e *ModalityEngine) ContentType() domain.ContentType {
	return e.contentType
}

// ProcessQuery returns up to maxResults candidates ordered by descending
// score, ties broken by id ascending. An empty match set is not an error;
// the returned error is reserved for unreachable backends.
func (e *ModalityEngine) ProcessQuery(ctx context.Context, query string, maxResults int) (domain.RetrievalBatch, error) {
	if maxResults <= 0 {
		maxResults = 10
	}

	candidates := e.keywordSearch(query, maxResults)
	if len(candidates) > 0 {
		return domain.RetrievalBatch{
			Engine:     e.contentType,
			Candidates: candidates,
			MatchType:  domain.MatchTypeKeyword,
		}, nil
	}

	candidates, err := e.vectorFallback(ctx, query, maxResults)
	if err != nil {
		return domain.RetrievalBatch{}, err
	}
	return domain.RetrievalBatch{
		Engine:     e.contentType,
		Candidates: candidates,
		MatchType:  domain.MatchTypeVectorFallback,
	}, nil
}

func (e *ModalityEngine) keywordSearch(query string, maxResults int) []domain.Candidate {
	queryTokens := toTokenSet(query)
	if len(queryTokens) == 0 {
		return nil
	}

	matched := make([]domain.Candidate, 0, maxResults)
	for _, chunk := range e.cache.Chunks() {
		score := e.scoreChunk(queryTokens, chunk)
		if score < e.cfg.SimilarityThreshold {
			continue
		}
		matched = append(matched, domain.Candidate{
			ID:          chunk.ID,
			ContentType: e.contentType,
			Content:     chunk.Content,
			Metadata:    chunk.Metadata,
			BaseScore:   score,
		})
	}

	sortCandidates(matched)
	if len(matched) > maxResults {
		matched = matched[:maxResults]
	}
	return matched
}

func (e *ModalityEngine) vectorFallback(ctx context.Context, query string, maxResults int) ([]domain.Candidate, error) {
	vector, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrieval, "embed query for "+string(e.contentType)+" fallback", err)
	}

	scored, err := e.store.Search(ctx, vector, maxResults, e.contentType)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrieval, "vector search for "+string(e.contentType), err)
	}

	relaxed := e.cfg.SimilarityThreshold * e.cfg.FallbackThresholdRatio
	out := make([]domain.Candidate, 0, len(scored))
	for _, chunk := range scored {
		if chunk.Score < relaxed {
			continue
		}
		out = append(out, domain.Candidate{
			ID:          chunk.ID,
			ContentType: e.contentType,
			Content:     chunk.Content,
			Metadata:    chunk.Metadata,
			BaseScore:   chunk.Score,
		})
	}

	sortCandidates(out)
	if len(out) > maxResults {
		out = out[:maxResults]
	}
	return out, nil
}

// scoreChunk computes the keyword-strategy score in [0,1].
func (e *ModalityEngine) scoreChunk(queryTokens map[string]struct{}, chunk domain.StoredChunk) float64 {
	contentOverlap := tokenOverlap(queryTokens, toTokenSet(chunk.Content))

	switch e.contentType {
	case domain.ContentTypeImage:
		caption := metaString(chunk.Metadata, "caption")
		enhanced := metaString(chunk.Metadata, "enhanced_description")
		score := imageContentWeight*contentOverlap +
			imageCaptionWeight*tokenOverlap(queryTokens, toTokenSet(caption)) +
			imageEnhancedWeight*tokenOverlap(queryTokens, toTokenSet(enhanced))
		return clamp01(score)
	case domain.ContentTypeTable:
		headers := metaString(chunk.Metadata, "columns")
		score := tableContentWeight*contentOverlap +
			tableHeaderWeight*tokenOverlap(queryTokens, toTokenSet(headers))
		return clamp01(score)
	default:
		return clamp01(contentOverlap)
	}
}

func (e *ModalityEngine) RefreshCache(ctx context.Context) error {
	return e.cache.Refresh(ctx)
}

func (e *ModalityEngine) Status() domain.EngineStatus {
	return domain.EngineStatus{
		Enabled:       true,
		Ready:         e.cache.Ready(),
		DocumentCount: e.cache.Len(),
		LastRefresh:   e.cache.LastRefresh(),
	}
}

func sortCandidates(candidates []domain.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].BaseScore != candidates[j].BaseScore {
			return candidates[i].BaseScore > candidates[j].BaseScore
		}
		return candidates[i].ID < candidates[j].ID
	})
}

func metaString(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	switch v := metadata[key].(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []string:
		return strings.Join(v, " ")
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	default:
		return ""
	}
}
