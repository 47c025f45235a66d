package usecase

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/alvaxu/multimodal-rag/internal/core/domain"
	"github.com/alvaxu/multimodal-rag/internal/core/ports"
)

type cacheSnapshot struct {
	chunks      []domain.StoredChunk
	refreshedAt time.Time
}

// DocumentCache holds the type-filtered chunk subset a modality engine
// searches with its keyword strategy. Refresh replaces the snapshot with a
// single atomic pointer swap, so concurrent readers never observe a
// half-updated cache.
type DocumentCache struct {
	contentType domain.ContentType
	store       ports.DocumentStore
	snapshot    atomic.Pointer[cacheSnapshot]
}

func NewDocumentCache(contentType domain.ContentType, store ports.DocumentStore) *DocumentCache {
	return &DocumentCache{
		contentType: contentType,
		store:       store,
	}
}

// Refresh reloads the type-filtered subset from the shared store.
// Safe to call concurrently with in-flight readers.
func (c *DocumentCache) Refresh(ctx context.Context) error {
	chunks, err := c.store.DocumentsByType(ctx, c.contentType)
	if err != nil {
		return domain.WrapError(domain.ErrRetrieval, "refresh "+string(c.contentType)+" cache", err)
	}

	c.snapshot.Store(&cacheSnapshot{
		chunks:      chunks,
		refreshedAt: time.Now().UTC(),
	})
	return nil
}

// Chunks returns the current snapshot. Callers must not mutate it.
func (c *DocumentCache) Chunks() []domain.StoredChunk {
	snap := c.snapshot.Load()
	if snap == nil {
		return nil
	}
	return snap.chunks
}

func (c *DocumentCache) Ready() bool {
	return c.snapshot.Load() != nil
}

func (c *DocumentCache) Len() int {
	snap := c.snapshot.Load()
	if snap == nil {
		return 0
	}
	return len(snap.chunks)
}

func (c *DocumentCache) LastRefresh() time.Time {
	snap := c.snapshot.Load()
	if snap == nil {
		return time.Time{}
	}
	return snap.refreshedAt
}
