package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hyperjump/shiori/pkg/utils"
)

const (
	// DefaultHTTPTimeout is the timeout for embedding requests.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultRequestsPerSecond throttles calls to the embedding API.
	DefaultRequestsPerSecond = 5

	apiPathEmbeddings = "/embeddings"
)

// HTTPEmbedder calls an OpenAI-compatible /embeddings endpoint.
type HTTPEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	normalize  bool
	client     *http.Client
	limiter    *rate.Limiter
}

// HTTPOption configures an HTTPEmbedder.
type HTTPOption func(*HTTPEmbedder)

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) HTTPOption {
	return func(e *HTTPEmbedder) { e.apiKey = key }
}

// WithModel sets the embedding model name.
func WithModel(model string) HTTPOption {
	return func(e *HTTPEmbedder) { e.model = model }
}

// WithDimensions sets the expected vector dimension. Responses of another
// length are rejected.
func WithDimensions(dims int) HTTPOption {
	return func(e *HTTPEmbedder) { e.dimensions = dims }
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) HTTPOption {
	return func(e *HTTPEmbedder) { e.client.Timeout = timeout }
}

// WithRateLimit sets the sustained request rate. A non-positive rate disables throttling.
func WithRateLimit(perSecond float64) HTTPOption {
	return func(e *HTTPEmbedder) {
		if perSecond <= 0 {
			e.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		e.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(e *HTTPEmbedder) { e.client = c }
}

// NewHTTPEmbedder creates an embedder for the API at baseURL (for example
// "https://api.openai.com/v1" or an Ollama /v1 endpoint).
func NewHTTPEmbedder(baseURL string, opts ...HTTPOption) *HTTPEmbedder {
	e := &HTTPEmbedder{
		baseURL:   strings.TrimRight(baseURL, "/"),
		model:     "text-embedding-3-small",
		normalize: true,
		client:    &http.Client{Timeout: DefaultHTTPTimeout},
		limiter:   rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed returns the embedding for text.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embs[0], nil
}

// EmbedBatch embeds texts in one request.
func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(embeddingsRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+apiPathEmbeddings, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("embedding API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("embedding API error: %s", parsed.Error.Message)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embedding API returned %d vectors for %d inputs", len(parsed.Data), len(texts))
	}
	sort.Slice(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })

	out := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		if e.dimensions > 0 && len(d.Embedding) != e.dimensions {
			return nil, fmt.Errorf("embedding has %d dimensions, expected %d", len(d.Embedding), e.dimensions)
		}
		if e.normalize {
			utils.NormalizeL2(d.Embedding)
		}
		out[i] = d.Embedding
	}
	return out, nil
}

// Dimensions returns the configured dimension, or 0 when unknown.
func (e *HTTPEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *HTTPEmbedder) Close() error {
	return nil
}
