package usecase

import (
	"context"
	"testing"

	"github.com/alvaxu/multimodal-rag/internal/core/domain"
)

func readyCache(t *testing.T, contentType domain.ContentType, chunks []domain.StoredChunk) (*DocumentCache, *stubStore) {
	t.Helper()
	store := &stubStore{docs: map[domain.ContentType][]domain.StoredChunk{contentType: chunks}}
	cache := NewDocumentCache(contentType, store)
	if err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh cache: %v", err)
	}
	return cache, store
}

func TestModalityEngineKeywordMatch(t *testing.T) {
	cache, store := readyCache(t, domain.ContentTypeText, []domain.StoredChunk{
		{ID: "hit", Content: "quarterly revenue grew ten percent"},
		{ID: "miss", Content: "shipping schedule update"},
	})
	engine := NewModalityEngine(domain.ContentTypeText, cache, store, &stubEmbedder{}, ModalityEngineConfig{})

	batch, err := engine.ProcessQuery(context.Background(), "quarterly revenue", 10)
	if err != nil {
		t.Fatalf("process query: %v", err)
	}
	if batch.MatchType != domain.MatchTypeKeyword {
		t.Fatalf("expected keyword match, got %s", batch.MatchType)
	}
	if len(batch.Candidates) != 1 || batch.Candidates[0].ID != "hit" {
		t.Fatalf("expected single keyword hit, got %+v", batch.Candidates)
	}
	if batch.Candidates[0].BaseScore < 0.3 {
		t.Fatalf("keyword score below threshold should not pass: %f", batch.Candidates[0].BaseScore)
	}
}

func TestModalityEngineImageCaptionContributes(t *testing.T) {
	cache, store := readyCache(t, domain.ContentTypeImage, []domain.StoredChunk{
		{
			ID:      "captioned",
			Content: "chart",
			Metadata: map[string]any{
				"caption": "季度营收对比图",
			},
		},
	})
	engine := NewModalityEngine(domain.ContentTypeImage, cache, store, &stubEmbedder{}, ModalityEngineConfig{})

	batch, err := engine.ProcessQuery(context.Background(), "营收对比", 10)
	if err != nil {
		t.Fatalf("process query: %v", err)
	}
	if len(batch.Candidates) != 1 {
		t.Fatalf("caption-only match must pass, got %+v", batch.Candidates)
	}
}

func TestModalityEngineTableHeaderContributes(t *testing.T) {
	cache, store := readyCache(t, domain.ContentTypeTable, []domain.StoredChunk{
		{
			ID:      "by-header",
			Content: "100,200,300",
			Metadata: map[string]any{
				"columns": []string{"年份", "营收"},
			},
		},
	})
	engine := NewModalityEngine(domain.ContentTypeTable, cache, store, &stubEmbedder{}, ModalityEngineConfig{})

	batch, err := engine.ProcessQuery(context.Background(), "营收", 10)
	if err != nil {
		t.Fatalf("process query: %v", err)
	}
	if len(batch.Candidates) != 1 || batch.Candidates[0].ID != "by-header" {
		t.Fatalf("header match must pass threshold, got %+v", batch.Candidates)
	}
}

func TestModalityEngineVectorFallback(t *testing.T) {
	cache, store := readyCache(t, domain.ContentTypeText, []domain.StoredChunk{
		{ID: "unrelated", Content: "nothing in common"},
	})
	store.scored = map[domain.ContentType][]domain.ScoredChunk{
		domain.ContentTypeText: {
			{StoredChunk: domain.StoredChunk{ID: "vec-hit", Content: "semantically close"}, Score: 0.5},
			{StoredChunk: domain.StoredChunk{ID: "vec-low", Content: "barely related"}, Score: 0.1},
		},
	}
	engine := NewModalityEngine(domain.ContentTypeText, cache, store, &stubEmbedder{}, ModalityEngineConfig{})

	batch, err := engine.ProcessQuery(context.Background(), "quarterly revenue", 10)
	if err != nil {
		t.Fatalf("process query: %v", err)
	}
	if batch.MatchType != domain.MatchTypeVectorFallback {
		t.Fatalf("expected vector fallback diagnostic, got %s", batch.MatchType)
	}
	// Relaxed threshold is 0.3*0.8 = 0.24: the 0.1 hit stays out.
	if len(batch.Candidates) != 1 || batch.Candidates[0].ID != "vec-hit" {
		t.Fatalf("relaxed threshold filtering broken: %+v", batch.Candidates)
	}
}

func TestModalityEngineFallbackEmbedErrorIsRetrieval(t *testing.T) {
	cache, store := readyCache(t, domain.ContentTypeText, nil)
	engine := NewModalityEngine(domain.ContentTypeText, cache, store, &stubEmbedder{err: errBackendDown}, ModalityEngineConfig{})

	_, err := engine.ProcessQuery(context.Background(), "quarterly revenue", 10)
	if err == nil {
		t.Fatal("expected error when embedder is down and keyword pass is empty")
	}
	if !domain.IsKind(err, domain.ErrRetrieval) {
		t.Fatalf("expected retrieval error kind, got %v", err)
	}
}

func TestModalityEngineFallbackSearchErrorIsRetrieval(t *testing.T) {
	cache, store := readyCache(t, domain.ContentTypeText, nil)
	store.searchErr = errBackendDown
	engine := NewModalityEngine(domain.ContentTypeText, cache, store, &stubEmbedder{}, ModalityEngineConfig{})

	_, err := engine.ProcessQuery(context.Background(), "quarterly revenue", 10)
	if !domain.IsKind(err, domain.ErrRetrieval) {
		t.Fatalf("expected retrieval error kind, got %v", err)
	}
}

func TestModalityEngineDeterministicOrdering(t *testing.T) {
	cache, store := readyCache(t, domain.ContentTypeText, []domain.StoredChunk{
		{ID: "b", Content: "quarterly revenue"},
		{ID: "a", Content: "quarterly revenue"},
	})
	engine := NewModalityEngine(domain.ContentTypeText, cache, store, &stubEmbedder{}, ModalityEngineConfig{})

	batch, err := engine.ProcessQuery(context.Background(), "quarterly revenue", 10)
	if err != nil {
		t.Fatalf("process query: %v", err)
	}
	if len(batch.Candidates) != 2 || batch.Candidates[0].ID != "a" || batch.Candidates[1].ID != "b" {
		t.Fatalf("equal scores must order by id ascending, got %+v", batch.Candidates)
	}
}

func TestModalityEngineTruncatesToMaxResults(t *testing.T) {
	chunks := []domain.StoredChunk{
		{ID: "a", Content: "quarterly revenue one"},
		{ID: "b", Content: "quarterly revenue two"},
		{ID: "c", Content: "quarterly revenue three"},
	}
	cache, store := readyCache(t, domain.ContentTypeText, chunks)
	engine := NewModalityEngine(domain.ContentTypeText, cache, store, &stubEmbedder{}, ModalityEngineConfig{})

	batch, err := engine.ProcessQuery(context.Background(), "quarterly revenue", 2)
	if err != nil {
		t.Fatalf("process query: %v", err)
	}
	if len(batch.Candidates) != 2 {
		t.Fatalf("expected truncation to 2, got %d", len(batch.Candidates))
	}
}

func TestModalityEngineStatus(t *testing.T) {
	cache, store := readyCache(t, domain.ContentTypeImage, []domain.StoredChunk{
		{ID: "one", Content: "chart"},
	})
	engine := NewModalityEngine(domain.ContentTypeImage, cache, store, &stubEmbedder{}, ModalityEngineConfig{})

	status := engine.Status()
	if !status.Enabled || !status.Ready {
		t.Fatalf("refreshed engine must report enabled and ready: %+v", status)
	}
	if status.DocumentCount != 1 {
		t.Fatalf("expected document count 1, got %d", status.DocumentCount)
	}
	if status.LastRefresh.IsZero() {
		t.Fatal("expected last refresh timestamp")
	}
}
