package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HTTPConfig configures the OpenAI-compatible embedding client.
type HTTPConfig struct {
	// BaseURL is the API root, e.g. "https://api.openai.com/v1" or a local
	// inference server.
	BaseURL string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// Model is the embedding model name.
	Model string

	// Dimension is the vector width the model produces.
	Dimension int

	// RequestsPerSecond throttles outbound calls. Default: 10.
	RequestsPerSecond float64

	// Timeout bounds each HTTP request. Default: 15 seconds.
	Timeout time.Duration

	// Breaker tunes the circuit breaker. Zero values use defaults.
	Breaker BreakerConfig
}

// HTTPProvider calls an OpenAI-compatible /embeddings endpoint. Calls are
// rate limited and routed through a circuit breaker so a failing endpoint
// degrades retrieval instead of stalling it.
type HTTPProvider struct {
	config  HTTPConfig
	client  *http.Client
	limiter *rate.Limiter
	breaker *Breaker
	logger  *zap.Logger
}

// Ensure *HTTPProvider implements Provider at compile time.
var _ Provider = (*HTTPProvider)(nil)

// NewHTTPProvider creates an embedding client for the given endpoint.
func NewHTTPProvider(config HTTPConfig, logger *zap.Logger) (*HTTPProvider, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("embed: base URL is required")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("embed: model is required")
	}
	if config.Dimension < 1 {
		return nil, fmt.Errorf("embed: dimension must be positive, got %d", config.Dimension)
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 10
	}
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HTTPProvider{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1),
		breaker: NewBreaker(config.Breaker),
		logger:  logger,
	}, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding for a single text.
func (p *HTTPProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns embeddings for multiple texts in input order.
func (p *HTTPProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embed: rate limiter: %w", err)
	}

	result, err := p.breaker.Execute(ctx, func() (interface{}, error) {
		return p.post(ctx, texts)
	})
	if err != nil {
		p.logger.Warn("embedding request failed",
			zap.Int("batch_size", len(texts)),
			zap.String("breaker_state", p.breaker.State()),
			zap.Error(err),
		)
		return nil, err
	}

	return result.([][]float32), nil
}

// Dimension reports the configured vector width.
func (p *HTTPProvider) Dimension() int {
	return p.config.Dimension
}

// BreakerState exposes the circuit state for health reporting.
func (p *HTTPProvider) BreakerState() string {
	return p.breaker.State()
}

func (p *HTTPProvider) post(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: p.config.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("embed: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.config.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embed: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embed: endpoint returned %d: %s", resp.StatusCode, snippet)
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("embed: decode response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embed: expected %d embeddings, got %d", len(texts), len(parsed.Data))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embed: embedding index %d out of range", d.Index)
		}
		if len(d.Embedding) != p.config.Dimension {
			return nil, fmt.Errorf("embed: embedding has %d dimensions, expected %d",
				len(d.Embedding), p.config.Dimension)
		}
		vectors[d.Index] = d.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("embed: missing embedding for input %d", i)
		}
	}

	return vectors, nil
}
