// Package memindex implements storage.SemanticIndex in process memory with
// brute-force cosine distance. It backs local single-node deployments and
// tests; the pgvector index is the production backend.
package memindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/quiltmem/quilt/internal/storage"
	"github.com/quiltmem/quilt/pkg/types"
)

// Ensure *Index implements storage.SemanticIndex at compile time.
var _ storage.SemanticIndex = (*Index)(nil)

// Index is an in-memory semantic index.
type Index struct {
	mu      sync.RWMutex
	vectors map[string]*types.MemoryVector
}

// New creates an empty in-memory index.
func New() *Index {
	return &Index{vectors: make(map[string]*types.MemoryVector)}
}

// Upsert stores or replaces an embedded memory.
func (x *Index) Upsert(ctx context.Context, vec *types.MemoryVector) error {
	if vec == nil {
		return storage.ErrInvalidInput
	}
	if vec.ID == "" {
		return fmt.Errorf("%w: vector ID is required", storage.ErrInvalidInput)
	}
	if len(vec.Embedding) == 0 {
		return fmt.Errorf("%w: embedding is required", storage.ErrInvalidInput)
	}

	stored := *vec
	stored.Embedding = append([]float32(nil), vec.Embedding...)

	x.mu.Lock()
	x.vectors[vec.ID] = &stored
	x.mu.Unlock()

	return nil
}

// Query scans all stored vectors and returns up to K matches ordered by
// ascending cosine distance.
func (x *Index) Query(ctx context.Context, q storage.VectorQuery) ([]storage.VectorMatch, error) {
	if len(q.Embedding) == 0 {
		return nil, fmt.Errorf("%w: query embedding is required", storage.ErrInvalidInput)
	}
	if q.K < 1 {
		q.K = 10
	}

	x.mu.RLock()
	matches := make([]storage.VectorMatch, 0, len(x.vectors))
	for _, vec := range x.vectors {
		if q.UserID != "" && vec.Metadata.UserID != q.UserID {
			continue
		}
		if q.Context != "" && vec.Metadata.Context != q.Context {
			continue
		}
		if len(vec.Embedding) != len(q.Embedding) {
			continue
		}
		matches = append(matches, storage.VectorMatch{
			ID:       vec.ID,
			Text:     vec.Text,
			Metadata: vec.Metadata,
			Distance: cosineDistance(q.Embedding, vec.Embedding),
		})
	}
	x.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].ID < matches[j].ID
	})

	if len(matches) > q.K {
		matches = matches[:q.K]
	}

	return matches, nil
}

// Delete removes the given vector IDs. Missing IDs are ignored.
func (x *Index) Delete(ctx context.Context, ids []string) error {
	x.mu.Lock()
	for _, id := range ids {
		delete(x.vectors, id)
	}
	x.mu.Unlock()
	return nil
}

// GetByID retrieves a stored vector.
func (x *Index) GetByID(ctx context.Context, id string) (*types.MemoryVector, error) {
	x.mu.RLock()
	vec, ok := x.vectors[id]
	x.mu.RUnlock()

	if !ok {
		return nil, storage.ErrNotFound
	}

	out := *vec
	out.Embedding = append([]float32(nil), vec.Embedding...)
	return &out, nil
}

// Len reports the number of stored vectors.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.vectors)
}

// cosineDistance returns 1 - cosine similarity. Zero vectors are maximally
// distant rather than a division error.
func cosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1.0
	}
	return 1.0 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
