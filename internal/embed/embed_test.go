package embed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLocalProviderIsDeterministic(t *testing.T) {
	p := NewLocalProvider(64)
	ctx := context.Background()

	a, err := p.Embed(ctx, "I love jazz music")
	require.NoError(t, err)
	b, err := p.Embed(ctx, "I love jazz music")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestLocalProviderNormalises(t *testing.T) {
	p := NewLocalProvider(64)

	vec, err := p.Embed(context.Background(), "some words to hash")
	require.NoError(t, err)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}

func TestLocalProviderSimilarTextsOverlap(t *testing.T) {
	p := NewLocalProvider(128)
	ctx := context.Background()

	jazz1, err := p.Embed(ctx, "i love jazz")
	require.NoError(t, err)
	jazz2, err := p.Embed(ctx, "jazz is great")
	require.NoError(t, err)
	other, err := p.Embed(ctx, "the weather in berlin")
	require.NoError(t, err)

	dot := func(a, b []float32) float64 {
		var sum float64
		for i := range a {
			sum += float64(a[i]) * float64(b[i])
		}
		return sum
	}

	assert.Greater(t, dot(jazz1, jazz2), dot(jazz1, other),
		"texts sharing a token should be closer than unrelated texts")
}

func TestLocalProviderBatchOrder(t *testing.T) {
	p := NewLocalProvider(32)
	ctx := context.Background()

	vectors, err := p.EmbedBatch(ctx, []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)

	first, err := p.Embed(ctx, "first")
	require.NoError(t, err)
	assert.Equal(t, first, vectors[0])
}

func TestHTTPProviderEmbedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)

		resp := embeddingResponse{}
		for i := range req.Input {
			resp.Data = append(resp.Data, struct {
				Index     int       `json:"index"`
				Embedding []float32 `json:"embedding"`
			}{Index: i, Embedding: []float32{float32(i), 1, 0}})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p, err := NewHTTPProvider(HTTPConfig{
		BaseURL:   server.URL,
		Model:     "test-model",
		Dimension: 3,
	}, zap.NewNop())
	require.NoError(t, err)

	vectors, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0, 1, 0}, vectors[0])
	assert.Equal(t, []float32{1, 1, 0}, vectors[1])
}

func TestHTTPProviderRejectsWrongDimension(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embeddingResponse{
			Data: []struct {
				Index     int       `json:"index"`
				Embedding []float32 `json:"embedding"`
			}{{Index: 0, Embedding: []float32{1, 2}}},
		})
	}))
	defer server.Close()

	p, err := NewHTTPProvider(HTTPConfig{
		BaseURL:   server.URL,
		Model:     "test-model",
		Dimension: 3,
	}, zap.NewNop())
	require.NoError(t, err)

	_, err = p.Embed(context.Background(), "text")
	assert.ErrorContains(t, err, "dimensions")
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	p, err := NewHTTPProvider(HTTPConfig{
		BaseURL:           server.URL,
		Model:             "test-model",
		Dimension:         3,
		RequestsPerSecond: 1000,
		Breaker: BreakerConfig{
			MaxFailures: 2,
			Timeout:     time.Minute,
		},
	}, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = p.Embed(ctx, "one")
	require.Error(t, err)
	_, err = p.Embed(ctx, "two")
	require.Error(t, err)

	// The circuit is now open; the endpoint must not be called again.
	before := calls.Load()
	_, err = p.Embed(ctx, "three")
	assert.True(t, errors.Is(err, ErrCircuitOpen))
	assert.Equal(t, before, calls.Load())
	assert.Equal(t, "open", p.BreakerState())
}
