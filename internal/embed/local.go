package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// LocalProvider produces deterministic embeddings by hashing tokens into a
// fixed-width bag-of-words vector. It has no notion of meaning beyond token
// overlap, but it is stable across runs and needs no network, which makes it
// the offline default and the test double for the HTTP provider.
type LocalProvider struct {
	dimension int
}

// Ensure *LocalProvider implements Provider at compile time.
var _ Provider = (*LocalProvider)(nil)

// NewLocalProvider creates a local provider with the given vector width.
func NewLocalProvider(dimension int) *LocalProvider {
	if dimension < 1 {
		dimension = 256
	}
	return &LocalProvider{dimension: dimension}
}

// Embed returns a normalised token-hash vector for the text.
func (p *LocalProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, p.dimension)

	for _, token := range strings.Fields(strings.ToLower(text)) {
		token = strings.Trim(token, ".,!?;:\"'")
		if token == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(token))
		sum := h.Sum32()
		// The low bits pick the bucket, the next bit picks the sign.
		idx := int(sum % uint32(p.dimension))
		if (sum>>16)&1 == 0 {
			vec[idx]++
		} else {
			vec[idx]--
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1.0 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}

	return vec, nil
}

// EmbedBatch embeds each text independently.
func (p *LocalProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Dimension reports the vector width.
func (p *LocalProvider) Dimension() int {
	return p.dimension
}
