package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/cenkalti/backoff/v4"

	"github.com/athenamem/episodic/pkg/config"
)

// httpDoer abstracts *http.Client so tests can inject a fake transport
// without a real network call, the same narrowing pkg/sources uses for its
// GitHub and Slack adapters.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// embedRequest is the OpenAI-embeddings-compatible request body: a model
// name and a batch of input strings.
type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// HTTPEmbedder requests embeddings from a remote HTTP endpoint speaking the
// OpenAI embeddings wire format, retrying transient failures with
// exponential backoff before giving up and letting the caller soft-skip
// enrichment for this batch.
type HTTPEmbedder struct {
	endpoint   string
	model      string
	apiKey     string
	maxRetries int
	client     httpDoer
}

// NewHTTPEmbedder builds an HTTPEmbedder from EmbeddingConfig. The client's
// timeout is set from cfg.Timeout; cfg.APIKeyEnv, if set, names the
// environment variable holding the bearer token.
func NewHTTPEmbedder(cfg config.EmbeddingConfig) *HTTPEmbedder {
	var apiKey string
	if cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
	}
	return &HTTPEmbedder{
		endpoint:   cfg.Endpoint,
		model:      cfg.Model,
		apiKey:     apiKey,
		maxRetries: cfg.MaxRetries,
		client:     &http.Client{Timeout: cfg.Timeout},
	}
}

// EmbedBatch posts texts to the configured endpoint in one request and
// returns the embeddings in input order, retrying the whole request up to
// maxRetries times with exponential backoff on transport errors or 5xx
// responses; any other non-200 status fails at once. Any error here is
// expected to be soft-skipped by the caller
// (pipeline enrichment persists events without embeddings rather than
// failing the batch).
func (h *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embedRequest{Model: h.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("embeddings: marshal request: %w", err)
	}

	var parsed embedResponse
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if h.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+h.apiKey)
		}

		resp, err := h.client.Do(req)
		if err != nil {
			return fmt.Errorf("embeddings: request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("embeddings: server error: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("embeddings: unexpected status %d", resp.StatusCode))
		}

		parsed = embedResponse{}
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("embeddings: decode response: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	retries := uint64(h.maxRetries)
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, retries), ctx)); err != nil {
		return nil, err
	}

	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings: expected %d vectors, got %d", len(texts), len(parsed.Data))
	}
	out := make([][]float64, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embeddings: response index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
