package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/alvaxu/multimodal-rag/internal/core/domain"
)

func textCandidate(id, content string) domain.Candidate {
	return domain.Candidate{
		ID:          id,
		ContentType: domain.ContentTypeText,
		Content:     content,
	}
}

func TestRuleRerankerOrdersByOverlap(t *testing.T) {
	reranker := NewRuleReranker(10)

	out, err := reranker.Rerank(context.Background(), "quarterly revenue table", []domain.Candidate{
		textCandidate("miss", "weather report for tomorrow"),
		textCandidate("hit", "quarterly revenue figures in the table"),
	})
	if err != nil {
		t.Fatalf("rule rerank: %v", err)
	}
	if len(out.Candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(out.Candidates))
	}
	if out.Candidates[0].ID != "hit" {
		t.Fatalf("expected overlap match first, got %s", out.Candidates[0].ID)
	}
	if out.Candidates[0].RerankScore <= out.Candidates[1].RerankScore {
		t.Fatalf("scores not descending: %+v", out.Candidates)
	}
	if out.Candidates[0].Rank != 1 || out.Candidates[1].Rank != 2 {
		t.Fatalf("ranks must be 1-based sequential, got %+v", out.Candidates)
	}
	if out.Source != domain.RerankSourceRule {
		t.Fatalf("expected rule source, got %s", out.Source)
	}
}

func TestRuleRerankerDropsEmptyContent(t *testing.T) {
	reranker := NewRuleReranker(10)

	out, err := reranker.Rerank(context.Background(), "revenue", []domain.Candidate{
		textCandidate("empty", "   "),
		textCandidate("ok", "revenue summary"),
	})
	if err != nil {
		t.Fatalf("rule rerank: %v", err)
	}
	if out.Dropped != 1 {
		t.Fatalf("expected 1 dropped candidate, got %d", out.Dropped)
	}
	if len(out.Candidates) != 1 || out.Candidates[0].ID != "ok" {
		t.Fatalf("dropped candidate must not reappear: %+v", out.Candidates)
	}
}

func TestRuleRerankerHonorsTargetCount(t *testing.T) {
	reranker := NewRuleReranker(2)

	out, err := reranker.Rerank(context.Background(), "revenue", []domain.Candidate{
		textCandidate("a", "revenue one"),
		textCandidate("b", "revenue two"),
		textCandidate("c", "revenue three"),
	})
	if err != nil {
		t.Fatalf("rule rerank: %v", err)
	}
	if len(out.Candidates) != 2 {
		t.Fatalf("expected truncation to 2, got %d", len(out.Candidates))
	}
}

func TestNewCrossEncoderRerankerRequiresConfig(t *testing.T) {
	client := &stubRerankClient{}
	cases := []struct {
		name string
		cfg  CrossEncoderConfig
	}{
		{"missing model name", CrossEncoderConfig{TargetCount: 5, SimilarityThreshold: 0.35}},
		{"missing target count", CrossEncoderConfig{ModelName: "bge-reranker-v2-m3", SimilarityThreshold: 0.35}},
		{"missing threshold", CrossEncoderConfig{ModelName: "bge-reranker-v2-m3", TargetCount: 5}},
	}
	for _, tc := range cases {
		_, err := NewCrossEncoderReranker(client, tc.cfg)
		if err == nil {
			t.Fatalf("%s: expected construction error", tc.name)
		}
		if !domain.IsKind(err, domain.ErrConfiguration) {
			t.Fatalf("%s: expected configuration error, got %v", tc.name, err)
		}
	}

	if _, err := NewCrossEncoderReranker(nil, CrossEncoderConfig{ModelName: "m", TargetCount: 5, SimilarityThreshold: 0.35}); err == nil {
		t.Fatal("expected error for nil client")
	}
}

func TestCrossEncoderRerankerFallsBackOnAPIError(t *testing.T) {
	client := &stubRerankClient{err: errBackendDown}
	reranker, err := NewCrossEncoderReranker(client, CrossEncoderConfig{
		ModelName:           "bge-reranker-v2-m3",
		TargetCount:         5,
		SimilarityThreshold: 0.35,
	})
	if err != nil {
		t.Fatalf("construct reranker: %v", err)
	}

	out, err := reranker.Rerank(context.Background(), "quarterly revenue", []domain.Candidate{
		textCandidate("a", "quarterly revenue summary"),
		textCandidate("b", "unrelated"),
	})
	if err != nil {
		t.Fatalf("api failure must not surface as an error: %v", err)
	}
	if !out.Degraded {
		t.Fatal("expected degraded outcome")
	}
	if out.Source != domain.RerankSourceFallback {
		t.Fatalf("expected fallback source, got %s", out.Source)
	}
	if len(out.Candidates) == 0 {
		t.Fatal("fallback must still return rule-ranked candidates")
	}
	for _, c := range out.Candidates {
		if c.RerankSource != domain.RerankSourceFallback {
			t.Fatalf("fallback candidates must be tagged fallback, got %s", c.RerankSource)
		}
	}
}

func TestCrossEncoderRerankerFiltersByThreshold(t *testing.T) {
	client := &stubRerankClient{scores: []domain.RerankScore{
		{Index: 1, RelevanceScore: 0.92},
		{Index: 0, RelevanceScore: 0.12},
	}}
	reranker, err := NewCrossEncoderReranker(client, CrossEncoderConfig{
		ModelName:           "bge-reranker-v2-m3",
		TargetCount:         5,
		SimilarityThreshold: 0.35,
	})
	if err != nil {
		t.Fatalf("construct reranker: %v", err)
	}

	out, err := reranker.Rerank(context.Background(), "revenue", []domain.Candidate{
		textCandidate("low", "noise"),
		textCandidate("high", "revenue detail"),
	})
	if err != nil {
		t.Fatalf("rerank: %v", err)
	}
	if len(out.Candidates) != 1 {
		t.Fatalf("expected threshold to keep 1 candidate, got %d", len(out.Candidates))
	}
	if out.Candidates[0].ID != "high" {
		t.Fatalf("index mapping broken, got %s", out.Candidates[0].ID)
	}
	if out.Candidates[0].RerankScore != 0.92 {
		t.Fatalf("expected api score kept, got %f", out.Candidates[0].RerankScore)
	}
	if out.Candidates[0].RerankSource != domain.RerankSourceLLM {
		t.Fatalf("expected llm source, got %s", out.Candidates[0].RerankSource)
	}
	if client.calls != 1 {
		t.Fatalf("expected single api call, got %d", client.calls)
	}
}

func TestCrossEncoderRerankerIgnoresOutOfRangeIndices(t *testing.T) {
	client := &stubRerankClient{scores: []domain.RerankScore{
		{Index: 7, RelevanceScore: 0.99},
		{Index: 0, RelevanceScore: 0.8},
	}}
	reranker, err := NewCrossEncoderReranker(client, CrossEncoderConfig{
		ModelName:           "bge-reranker-v2-m3",
		TargetCount:         5,
		SimilarityThreshold: 0.35,
	})
	if err != nil {
		t.Fatalf("construct reranker: %v", err)
	}

	out, err := reranker.Rerank(context.Background(), "revenue", []domain.Candidate{
		textCandidate("only", "revenue"),
	})
	if err != nil {
		t.Fatalf("rerank: %v", err)
	}
	if len(out.Candidates) != 1 || out.Candidates[0].ID != "only" {
		t.Fatalf("out-of-range index must be skipped, got %+v", out.Candidates)
	}
}

func TestHybridRerankerDeduplicatesAcrossBatches(t *testing.T) {
	fusion := NewFusionEngine(FusionConfig{})
	hybrid := NewHybridReranker(map[domain.ContentType]Reranker{}, fusion)

	batches := []domain.RetrievalBatch{
		{
			Engine:    domain.ContentTypeText,
			MatchType: domain.MatchTypeKeyword,
			Candidates: []domain.Candidate{
				{ID: "shared", ContentType: domain.ContentTypeText, Content: "revenue text"},
			},
		},
		{
			Engine:    domain.ContentTypeImage,
			MatchType: domain.MatchTypeKeyword,
			Candidates: []domain.Candidate{
				{ID: "shared", ContentType: domain.ContentTypeImage, Content: "revenue chart"},
				{ID: "img", ContentType: domain.ContentTypeImage, Content: "revenue trend chart"},
			},
		},
	}

	fused, summary := hybrid.RerankAndFuse(context.Background(), "revenue", batches)
	if len(fused) != 2 {
		t.Fatalf("expected dedup to 2 results, got %d", len(fused))
	}
	for _, item := range fused {
		if item.ID == "shared" && item.ContentType != domain.ContentTypeImage {
			t.Fatalf("dedup must keep higher-priority image occurrence, got %s", item.ContentType)
		}
	}
	if summary.Degraded {
		t.Fatal("rule-only path must not report degradation")
	}
}

func TestHybridRerankerDegradesPerGroup(t *testing.T) {
	fusion := NewFusionEngine(FusionConfig{})
	failing, err := NewCrossEncoderReranker(&stubRerankClient{err: errBackendDown}, CrossEncoderConfig{
		ModelName:           "bge-reranker-v2-m3",
		TargetCount:         5,
		SimilarityThreshold: 0.35,
	})
	if err != nil {
		t.Fatalf("construct reranker: %v", err)
	}
	hybrid := NewHybridReranker(map[domain.ContentType]Reranker{
		domain.ContentTypeText: failing,
	}, fusion)

	batches := []domain.RetrievalBatch{
		{
			Engine:    domain.ContentTypeText,
			MatchType: domain.MatchTypeKeyword,
			Candidates: []domain.Candidate{
				{ID: "t1", ContentType: domain.ContentTypeText, Content: "revenue text"},
			},
		},
		{
			Engine:    domain.ContentTypeImage,
			MatchType: domain.MatchTypeKeyword,
			Candidates: []domain.Candidate{
				{ID: "i1", ContentType: domain.ContentTypeImage, Content: "revenue chart"},
			},
		},
	}

	fused, summary := hybrid.RerankAndFuse(context.Background(), "revenue", batches)
	if len(fused) != 2 {
		t.Fatalf("degraded group must still contribute, got %d results", len(fused))
	}
	if !summary.Degraded {
		t.Fatal("expected degradation reported in summary")
	}
	if summary.Source != domain.RerankSourceFallback {
		t.Fatalf("expected fallback summary source, got %s", summary.Source)
	}
}

func TestHybridRerankerMixedListGroupsByType(t *testing.T) {
	fusion := NewFusionEngine(FusionConfig{})
	hybrid := NewHybridReranker(map[domain.ContentType]Reranker{}, fusion)

	out, err := hybrid.Rerank(context.Background(), "revenue", []domain.Candidate{
		{ID: "bad", ContentType: domain.ContentType("video"), Content: "clip"},
		{ID: "t1", ContentType: domain.ContentTypeText, Content: "revenue text"},
		{ID: "i1", ContentType: domain.ContentTypeImage, Content: "revenue chart"},
	})
	if err != nil {
		t.Fatalf("mixed rerank: %v", err)
	}
	if out.Dropped != 1 {
		t.Fatalf("invalid content type must count as dropped, got %d", out.Dropped)
	}
	if len(out.Candidates) != 2 {
		t.Fatalf("expected 2 reranked candidates, got %d", len(out.Candidates))
	}
	for i, c := range out.Candidates {
		if c.Rank != i+1 {
			t.Fatalf("expected fused order re-expressed as ranks, got %+v", out.Candidates)
		}
	}
}

func TestDescribeCandidateTableSummary(t *testing.T) {
	c := domain.Candidate{
		ID:          "tbl",
		ContentType: domain.ContentTypeTable,
		Content:     "2023,100\n2024,120",
		Metadata: map[string]any{
			"row_count":       2,
			"column_count":    2,
			"business_domain": "财务",
			"columns":         []string{"年份", "营收"},
		},
	}

	doc := describeCandidate(c)
	for _, want := range []string{"rows=2", "cols=2", "domain=财务", "年份", "2023,100"} {
		if !strings.Contains(doc, want) {
			t.Fatalf("table description missing %q:\n%s", want, doc)
		}
	}
}
