package usecase

import (
	"context"
	"errors"

	"github.com/alvaxu/multimodal-rag/internal/core/domain"
)

type stubStore struct {
	docs      map[domain.ContentType][]domain.StoredChunk
	scored    map[domain.ContentType][]domain.ScoredChunk
	docsErr   error
	searchErr error
}

func (s *stubStore) DocumentsByType(_ context.Context, contentType domain.ContentType) ([]domain.StoredChunk, error) {
	if s.docsErr != nil {
		return nil, s.docsErr
	}
	return s.docs[contentType], nil
}

func (s *stubStore) Search(_ context.Context, _ []float32, _ int, contentType domain.ContentType) ([]domain.ScoredChunk, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.scored[contentType], nil
}

type stubEmbedder struct {
	err error
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

func (s *stubEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []float32{0.1, 0.2}, nil
}

type stubRerankClient struct {
	scores []domain.RerankScore
	err    error
	calls  int
}

func (s *stubRerankClient) Rerank(_ context.Context, _ string, _ []string, _ int) ([]domain.RerankScore, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.scores, nil
}

type stubGenerator struct {
	answer string
	err    error
}

func (s *stubGenerator) GenerateAnswer(_ context.Context, _ string, _ []domain.FusedResult) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

type stubAuditLog struct {
	records []domain.QueryLogRecord
	err     error
}

func (s *stubAuditLog) Insert(_ context.Context, rec domain.QueryLogRecord) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *stubAuditLog) ListRecent(_ context.Context, limit int) ([]domain.QueryLogRecord, error) {
	if limit > len(s.records) {
		limit = len(s.records)
	}
	return s.records[:limit], nil
}

var errBackendDown = errors.New("backend unreachable")
