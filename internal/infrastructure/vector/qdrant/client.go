package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alvaxu/multimodal-rag/internal/core/domain"
	"github.com/alvaxu/multimodal-rag/internal/core/ports"
	"github.com/alvaxu/multimodal-rag/internal/infrastructure/resilience"
)

const scrollPageSize = 256

// Client reads the shared chunk collection over qdrant's HTTP API. The
// collection is written by the ingestion pipeline; this service only scrolls
// type-filtered subsets for the modality caches and runs filtered vector
// search for the fallback strategy.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, collection string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		executor:   executor,
	}
}

// DocumentsByType scrolls every point whose chunk_type payload matches,
// following next_page_offset until the collection is exhausted.
func (c *Client) DocumentsByType(ctx context.Context, contentType domain.ContentType) ([]domain.StoredChunk, error) {
	var out []domain.StoredChunk
	var offset any

	for {
		page, nextOffset, err := c.scrollPage(ctx, contentType, offset)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if nextOffset == nil {
			return out, nil
		}
		offset = nextOffset
	}
}

func (c *Client) scrollPage(ctx context.Context, contentType domain.ContentType, offset any) ([]domain.StoredChunk, any, error) {
	reqBody := map[string]any{
		"limit":        scrollPageSize,
		"with_payload": true,
		"filter":       chunkTypeFilter(contentType),
	}
	if offset != nil {
		reqBody["offset"] = offset
	}

	var scrollResp struct {
		Result struct {
			Points []struct {
				ID      any            `json:"id"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
			NextPageOffset any `json:"next_page_offset"`
		} `json:"result"`
	}

	operation := "qdrant.scroll." + string(contentType)
	err := c.executor.Execute(ctx, operation, func(ctx context.Context) error {
		return c.postJSON(ctx, "/collections/"+c.collection+"/points/scroll", reqBody, &scrollResp)
	}, classifyTransport)
	if err != nil {
		return nil, nil, domain.WrapError(domain.ErrRetrieval, operation, err)
	}

	chunks := make([]domain.StoredChunk, 0, len(scrollResp.Result.Points))
	for _, point := range scrollResp.Result.Points {
		chunks = append(chunks, domain.StoredChunk{
			ID:          pointID(point.ID, point.Payload),
			ContentType: contentType,
			Content:     payloadString(point.Payload, "content"),
			Metadata:    payloadMetadata(point.Payload),
		})
	}
	return chunks, scrollResp.Result.NextPageOffset, nil
}

// Search runs filtered vector similarity search. Scores come back in
// qdrant's native similarity scale; the caller applies its own threshold.
func (c *Client) Search(ctx context.Context, queryVector []float32, limit int, contentType domain.ContentType) ([]domain.ScoredChunk, error) {
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
		"filter":       chunkTypeFilter(contentType),
	}

	var searchResp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}

	operation := "qdrant.search." + string(contentType)
	err := c.executor.Execute(ctx, operation, func(ctx context.Context) error {
		return c.postJSON(ctx, "/collections/"+c.collection+"/points/search", reqBody, &searchResp)
	}, classifyTransport)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrieval, operation, err)
	}

	out := make([]domain.ScoredChunk, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.ScoredChunk{
			StoredChunk: domain.StoredChunk{
				ID:          pointID(r.ID, r.Payload),
				ContentType: contentType,
				Content:     payloadString(r.Payload, "content"),
				Metadata:    payloadMetadata(r.Payload),
			},
			Score: r.Score,
		})
	}
	return out, nil
}

func (c *Client) postJSON(ctx context.Context, path string, reqBody any, into any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return &statusError{status: resp.StatusCode, text: resp.Status}
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type statusError struct {
	status int
	text   string
}

func (e *statusError) Error() string {
	return "qdrant status: " + e.text
}

// classifyTransport treats network failures and server errors as retryable;
// client errors (bad collection, bad filter) are permanent.
func classifyTransport(err error) resilience.ErrorClassification {
	var se *statusError
	if errors.As(err, &se) {
		return resilience.ErrorClassification{
			Retryable:     se.status >= 500 || se.status == http.StatusTooManyRequests,
			RecordFailure: se.status >= 500,
		}
	}
	return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
}

func chunkTypeFilter(contentType domain.ContentType) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{
				"key":   "chunk_type",
				"match": map[string]any{"value": string(contentType)},
			},
		},
	}
}

// pointID prefers the payload chunk_id the ingestion pipeline writes; the
// qdrant point id (uuid or integer) is the fallback.
func pointID(id any, payload map[string]any) string {
	if chunkID := payloadString(payload, "chunk_id"); chunkID != "" {
		return chunkID
	}
	switch v := id.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func payloadString(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// payloadMetadata exposes everything except the content/routing keys as
// candidate metadata (caption, columns, business_domain, document_name, ...).
func payloadMetadata(payload map[string]any) map[string]any {
	if len(payload) == 0 {
		return nil
	}
	out := make(map[string]any, len(payload))
	for key, value := range payload {
		switch key {
		case "content", "chunk_type", "chunk_id":
			continue
		}
		out[key] = value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

var _ ports.DocumentStore = (*Client)(nil)
