package usecase

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/alvaxu/multimodal-rag/internal/core/domain"
)

func reranked(id string, contentType domain.ContentType, score float64, rank int) domain.RerankedCandidate {
	return domain.RerankedCandidate{
		Candidate: domain.Candidate{
			ID:          id,
			ContentType: contentType,
			Content:     "content " + id,
			BaseScore:   score,
		},
		RerankScore:  score,
		RerankSource: domain.RerankSourceRule,
		Rank:         rank,
	}
}

func TestFuseIsDeterministic(t *testing.T) {
	engine := NewFusionEngine(FusionConfig{})
	groups := map[domain.ContentType][]domain.RerankedCandidate{
		domain.ContentTypeImage: {reranked("img-1", domain.ContentTypeImage, 0.8, 1), reranked("img-2", domain.ContentTypeImage, 0.6, 2)},
		domain.ContentTypeText:  {reranked("txt-1", domain.ContentTypeText, 0.9, 1)},
		domain.ContentTypeTable: {reranked("tbl-1", domain.ContentTypeTable, 0.7, 1)},
	}

	first := engine.Fuse(groups)
	second := engine.Fuse(groups)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("fuse not deterministic:\n%+v\nvs\n%+v", first, second)
	}
}

func TestFuseDeduplicatesByID(t *testing.T) {
	engine := NewFusionEngine(FusionConfig{})
	groups := map[domain.ContentType][]domain.RerankedCandidate{
		domain.ContentTypeImage: {reranked("shared", domain.ContentTypeImage, 0.8, 1)},
		domain.ContentTypeText:  {reranked("shared", domain.ContentTypeText, 0.9, 1)},
	}

	fused := engine.Fuse(groups)
	if len(fused) != 1 {
		t.Fatalf("expected 1 fused result after dedup, got %d", len(fused))
	}
	if fused[0].ContentType != domain.ContentTypeImage {
		t.Fatalf("expected higher-priority image occurrence kept, got %s", fused[0].ContentType)
	}
}

func TestFuseImageWinsEqualScore(t *testing.T) {
	engine := NewFusionEngine(FusionConfig{})
	groups := map[domain.ContentType][]domain.RerankedCandidate{
		domain.ContentTypeImage: {reranked("a", domain.ContentTypeImage, 0.9, 1)},
		domain.ContentTypeText:  {reranked("b", domain.ContentTypeText, 0.9, 1)},
	}

	fused := engine.Fuse(groups)
	if len(fused) != 2 {
		t.Fatalf("expected 2 fused results, got %d", len(fused))
	}
	if fused[0].ID != "a" || fused[1].ID != "b" {
		t.Fatalf("expected image before text for equal rerank score, got %s, %s", fused[0].ID, fused[1].ID)
	}
}

func TestFuseTieBreakByTypePriority(t *testing.T) {
	engine := NewFusionEngine(FusionConfig{})
	// Zero scores force equal hybrid scores so only tie-breaks order.
	groups := map[domain.ContentType][]domain.RerankedCandidate{
		domain.ContentTypeText:  {reranked("t", domain.ContentTypeText, 0, 1)},
		domain.ContentTypeImage: {reranked("i", domain.ContentTypeImage, 0, 1)},
	}

	fused := engine.Fuse(groups)
	if fused[0].ID != "i" {
		t.Fatalf("expected image first on equal hybrid score, got %s", fused[0].ID)
	}
	if fused[0].ContentTypePriority >= fused[1].ContentTypePriority {
		t.Fatalf("expected ascending type priority on tie, got %d then %d",
			fused[0].ContentTypePriority, fused[1].ContentTypePriority)
	}
}

func TestFuseHybridScoreMonotonicWithinType(t *testing.T) {
	engine := NewFusionEngine(FusionConfig{})
	groups := map[domain.ContentType][]domain.RerankedCandidate{
		domain.ContentTypeText: {
			reranked("hi", domain.ContentTypeText, 0.9, 1),
			reranked("lo", domain.ContentTypeText, 0.4, 2),
		},
	}

	fused := engine.Fuse(groups)
	if fused[0].ID != "hi" || fused[0].HybridScore < fused[1].HybridScore {
		t.Fatalf("higher rerank score must not fuse below lower one: %+v", fused)
	}
}

func TestFuseDiversityCapOnDominantType(t *testing.T) {
	engine := NewFusionEngine(FusionConfig{})

	images := make([]domain.RerankedCandidate, 0, 20)
	for i := 0; i < 20; i++ {
		images = append(images, reranked(fmt.Sprintf("img-%02d", i), domain.ContentTypeImage, 0.9-float64(i)*0.01, i+1))
	}
	groups := map[domain.ContentType][]domain.RerankedCandidate{
		domain.ContentTypeImage: images,
		domain.ContentTypeText:  {reranked("txt-1", domain.ContentTypeText, 0.6, 1)},
		domain.ContentTypeTable: {reranked("tbl-1", domain.ContentTypeTable, 0.6, 1)},
	}

	fused := engine.Fuse(groups)
	if len(fused) != 22 {
		t.Fatalf("diversity pass must preserve list length, got %d", len(fused))
	}

	// cap = max(3, 22/3) = 7: at most 7 images may appear before the
	// remaining images are re-appended.
	imagesSeen := 0
	for i, item := range fused {
		if item.ContentType != domain.ContentTypeImage {
			continue
		}
		imagesSeen++
		if imagesSeen > 7 && i < 9 {
			t.Fatalf("image %d appeared at position %d before minority types", imagesSeen, i)
		}
	}

	minorityPositions := map[domain.ContentType]int{}
	for i, item := range fused {
		if item.ContentType != domain.ContentTypeImage {
			minorityPositions[item.ContentType] = i
		}
	}
	for contentType, pos := range minorityPositions {
		if pos > 8 {
			t.Fatalf("%s pushed to position %d despite diversity cap", contentType, pos)
		}
	}

	ids := map[string]struct{}{}
	for _, item := range fused {
		if _, dup := ids[item.ID]; dup {
			t.Fatalf("duplicate id %s in fused output", item.ID)
		}
		ids[item.ID] = struct{}{}
	}
}

func TestFuseAssignsSequentialHybridRanks(t *testing.T) {
	engine := NewFusionEngine(FusionConfig{})
	groups := map[domain.ContentType][]domain.RerankedCandidate{
		domain.ContentTypeText:  {reranked("a", domain.ContentTypeText, 0.9, 1)},
		domain.ContentTypeTable: {reranked("b", domain.ContentTypeTable, 0.8, 1)},
	}

	fused := engine.Fuse(groups)
	for i, item := range fused {
		if item.HybridRank != i+1 {
			t.Fatalf("expected hybrid rank %d at position %d, got %d", i+1, i, item.HybridRank)
		}
	}
}

func TestFromSingleKeepsRerankScore(t *testing.T) {
	engine := NewFusionEngine(FusionConfig{})
	in := []domain.RerankedCandidate{
		reranked("a", domain.ContentTypeTable, 0.9, 1),
		reranked("b", domain.ContentTypeTable, 0.5, 2),
	}

	fused := engine.FromSingle(domain.ContentTypeTable, in)
	if len(fused) != 2 {
		t.Fatalf("expected 2 results, got %d", len(fused))
	}
	if fused[0].HybridScore != 0.9 || fused[1].HybridScore != 0.5 {
		t.Fatalf("single-modality results must keep rerank scores, got %+v", fused)
	}
	if fused[0].HybridRank != 1 || fused[1].HybridRank != 2 {
		t.Fatalf("expected sequential hybrid ranks, got %+v", fused)
	}
}
