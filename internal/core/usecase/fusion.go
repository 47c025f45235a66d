package usecase

import (
	"sort"

	"github.com/alvaxu/multimodal-rag/internal/core/domain"
)

type FusionConfig struct {
	// TypePriority orders content types for merging and tie-breaking.
	// Default: image, table, text.
	TypePriority []domain.ContentType

	// TypePriorityStep and RankDecay are tunable weighting defaults, not
	// load-bearing constants.
	TypePriorityStep float64
	RankDecay        float64

	// DiversityMinResults is the merged-list size above which the
	// diversity pass applies.
	DiversityMinResults int
}

func (c FusionConfig) normalize() FusionConfig {
	out := c
	if len(out.TypePriority) == 0 {
		out.TypePriority = []domain.ContentType{
			domain.ContentTypeImage,
			domain.ContentTypeTable,
			domain.ContentTypeText,
		}
	}
	if out.TypePriorityStep <= 0 {
		out.TypePriorityStep = 0.1
	}
	if out.RankDecay <= 0 {
		out.RankDecay = 0.01
	}
	if out.DiversityMinResults <= 0 {
		out.DiversityMinResults = 10
	}
	return out
}

// FusionEngine merges reranked per-type lists into one ranked list:
// type-priority concatenation, a combined hybrid score, a descending
// re-sort, and a diversity cap on large result sets. Deterministic for
// identical inputs.
type FusionEngine struct {
	cfg FusionConfig
}

func NewFusionEngine(cfg FusionConfig) *FusionEngine {
	return &FusionEngine{cfg: cfg.normalize()}
}

func (f *FusionEngine) TypePriority() []domain.ContentType {
	return f.cfg.TypePriority
}

func (f *FusionEngine) typePriorityIndex(contentType domain.ContentType) int {
	for i, t := range f.cfg.TypePriority {
		if t == contentType {
			return i
		}
	}
	return len(f.cfg.TypePriority)
}

// Fuse merges per-type groups. Groups are concatenated in type-priority
// order preserving each group's internal rank; duplicates by id are dropped
// keeping the higher-priority occurrence.
func (f *FusionEngine) Fuse(groups map[domain.ContentType][]domain.RerankedCandidate) []domain.FusedResult {
	merged := make([]domain.FusedResult, 0, 16)
	seen := make(map[string]struct{}, 16)

	for idx, contentType := range f.cfg.TypePriority {
		typeWeight := 1.0 - float64(idx)*f.cfg.TypePriorityStep
		if typeWeight < 0 {
			typeWeight = 0
		}
		for _, rc := range groups[contentType] {
			if _, dup := seen[rc.ID]; dup {
				continue
			}
			seen[rc.ID] = struct{}{}

			position := len(merged)
			rankWeight := 1.0 - float64(position)*f.cfg.RankDecay
			if rankWeight < 0 {
				rankWeight = 0
			}

			hybridScore := rc.RerankScore * typeWeight * rankWeight
			if hybridScore < 0 {
				hybridScore = 0
			}

			merged = append(merged, domain.FusedResult{
				RerankedCandidate:   rc,
				ContentTypePriority: idx,
				HybridScore:         hybridScore,
			})
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].HybridScore != merged[j].HybridScore {
			return merged[i].HybridScore > merged[j].HybridScore
		}
		if merged[i].ContentTypePriority != merged[j].ContentTypePriority {
			return merged[i].ContentTypePriority < merged[j].ContentTypePriority
		}
		if merged[i].Rank != merged[j].Rank {
			return merged[i].Rank < merged[j].Rank
		}
		return merged[i].ID < merged[j].ID
	})

	merged = f.diversityPass(merged)

	for i := range merged {
		merged[i].HybridRank = i + 1
	}
	return merged
}

// FromSingle shapes one reranked group as final results without hybrid
// weighting; fusion proper applies only when more than one modality
// participated.
func (f *FusionEngine) FromSingle(contentType domain.ContentType, reranked []domain.RerankedCandidate) []domain.FusedResult {
	idx := f.typePriorityIndex(contentType)
	out := make([]domain.FusedResult, 0, len(reranked))
	for i, rc := range reranked {
		out = append(out, domain.FusedResult{
			RerankedCandidate:   rc,
			ContentTypePriority: idx,
			HybridScore:         rc.RerankScore,
			HybridRank:          i + 1,
		})
	}
	return out
}

// diversityPass caps each type's representation at max(3, total/3) for
// merged lists larger than the configured minimum, then restores the
// original length with the remaining items in score order.
func (f *FusionEngine) diversityPass(merged []domain.FusedResult) []domain.FusedResult {
	total := len(merged)
	if total <= f.cfg.DiversityMinResults {
		return merged
	}

	typeCap := total / 3
	if typeCap < 3 {
		typeCap = 3
	}

	perType := make(map[domain.ContentType]int, 3)
	selected := make([]domain.FusedResult, 0, total)
	leftover := make([]domain.FusedResult, 0, total)

	for _, item := range merged {
		if perType[item.ContentType] < typeCap {
			perType[item.ContentType]++
			selected = append(selected, item)
			continue
		}
		leftover = append(leftover, item)
	}

	return append(selected, leftover...)
}
