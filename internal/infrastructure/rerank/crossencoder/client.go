package crossencoder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alvaxu/multimodal-rag/internal/core/domain"
	"github.com/alvaxu/multimodal-rag/internal/core/ports"
	"github.com/alvaxu/multimodal-rag/internal/infrastructure/resilience"
)

// Client calls an external cross-encoder rerank API (xinference/vllm style:
// POST {model, query, documents, top_n} -> {results: [{index,
// relevance_score}]}).
type Client struct {
	apiURL     string
	apiKey     string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(apiURL, apiKey, model string, executor *resilience.Executor) *Client {
	return &Client{
		apiURL:     strings.TrimSpace(apiURL),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		executor:   executor,
	}
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

func (c *Client) Rerank(ctx context.Context, query string, documents []string, topK int) ([]domain.RerankScore, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	reqBody := rerankRequest{
		Model:     c.model,
		Query:     query,
		Documents: documents,
		TopN:      topK,
	}

	var parsed rerankResponse
	err := c.executor.Execute(ctx, "crossencoder.rerank", func(ctx context.Context) error {
		return c.call(ctx, reqBody, &parsed)
	}, classifyRerank)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRerankAPI, "crossencoder rerank", err)
	}

	out := make([]domain.RerankScore, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		out = append(out, domain.RerankScore{
			Index:          r.Index,
			RelevanceScore: r.RelevanceScore,
		})
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, reqBody rerankRequest, into *rerankResponse) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &apiError{
			status: resp.StatusCode,
			detail: strings.TrimSpace(string(detail)),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("decode rerank response: %w", err)
	}
	return nil
}

type apiError struct {
	status int
	detail string
}

func (e *apiError) Error() string {
	switch e.status {
	case http.StatusTooManyRequests:
		return "rerank api rate limited"
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Sprintf("rerank api auth rejected (%d)", e.status)
	case http.StatusBadRequest:
		return "rerank api rejected request: " + e.detail
	default:
		return fmt.Sprintf("rerank api status %d: %s", e.status, e.detail)
	}
}

// classifyRerank: 429 and 5xx are worth one more attempt, auth and malformed
// requests are permanent. Only server-side trouble feeds the breaker; a bad
// key must not open the circuit for everyone.
func classifyRerank(err error) resilience.ErrorClassification {
	var ae *apiError
	if errors.As(err, &ae) {
		switch {
		case ae.status == http.StatusTooManyRequests:
			return resilience.ErrorClassification{Retryable: true, RecordFailure: false}
		case ae.status == http.StatusUnauthorized || ae.status == http.StatusForbidden:
			return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
		case ae.status == http.StatusBadRequest:
			return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
		case ae.status >= 500:
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		default:
			return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
		}
	}
	return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
}

var _ ports.RerankClient = (*Client)(nil)
