package ports

import (
	"context"

	"github.com/alvaxu/multimodal-rag/internal/core/domain"
)

// QueryService is the inbound contract for hybrid retrieval.
//
// ProcessQuery never returns an error: failures are encoded in the result
// (success=false plus error_message) so the transport layer cannot leak an
// unhandled failure to the caller.
type QueryService interface {
	ProcessQuery(ctx context.Context, query string, queryType domain.QueryType, maxResults int) domain.QueryResult
	EngineStatus(ctx context.Context) map[string]domain.EngineStatus
	RefreshCaches(ctx context.Context) ([]string, error)
}

// QueryAuditReader is the inbound read model for recent query diagnostics.
type QueryAuditReader interface {
	ListRecent(ctx context.Context, limit int) ([]domain.QueryLogRecord, error)
}
