package domain

import "strings"

type ContentType string

const (
	ContentTypeImage ContentType = "image"
	ContentTypeText  ContentType = "text"
	ContentTypeTable ContentType = "table"
)

// ParseContentType maps chunk_type payload values to a ContentType.
func ParseContentType(s string) (ContentType, bool) {
	switch ContentType(strings.ToLower(strings.TrimSpace(s))) {
	case ContentTypeImage:
		return ContentTypeImage, true
	case ContentTypeText:
		return ContentTypeText, true
	case ContentTypeTable:
		return ContentTypeTable, true
	default:
		return "", false
	}
}

// StoredChunk is one ingested unit as read from the shared document store.
type StoredChunk struct {
	ID          string         `json:"id"`
	ContentType ContentType    `json:"content_type"`
	Content     string         `json:"content"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type ScoredChunk struct {
	StoredChunk
	Score float64 `json:"score"`
}

// Candidate is a retrieved unit before reranking. ContentType is set by the
// producing modality engine at creation time and never inferred downstream.
type Candidate struct {
	ID          string         `json:"id"`
	ContentType ContentType    `json:"content_type"`
	Content     string         `json:"content"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	BaseScore   float64        `json:"base_score"`
}

// MetaString reads an optional string metadata key ("" when absent).
func (c Candidate) MetaString(key string) string {
	if c.Metadata == nil {
		return ""
	}
	v, ok := c.Metadata[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

type RerankSource string

const (
	RerankSourceLLM      RerankSource = "llm"
	RerankSourceRule     RerankSource = "rule"
	RerankSourceFallback RerankSource = "fallback"
)

type RerankedCandidate struct {
	Candidate
	RerankScore  float64      `json:"rerank_score"`
	RerankSource RerankSource `json:"rerank_source"`
	Rank         int          `json:"rank"`
}

// FusedResult is the final ranked item returned to the caller.
type FusedResult struct {
	RerankedCandidate
	ContentTypePriority int     `json:"content_type_priority"`
	HybridScore         float64 `json:"hybrid_score"`
	HybridRank          int     `json:"hybrid_rank"`
}

// Match strategies reported by modality engines.
const (
	MatchTypeKeyword        = "keyword"
	MatchTypeVectorFallback = "vector_fallback"
)

// RetrievalBatch is one modality engine's immutable per-query output.
type RetrievalBatch struct {
	Engine     ContentType `json:"engine"`
	Candidates []Candidate `json:"candidates"`
	MatchType  string      `json:"match_type"`
}

// RerankScore is one entry of a cross-encoder rerank response, referencing
// the submitted document by position.
type RerankScore struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}
