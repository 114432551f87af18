package memindex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiltmem/quilt/internal/storage"
	"github.com/quiltmem/quilt/pkg/types"
)

func vec(id, text, contextName string, embedding []float32) *types.MemoryVector {
	return &types.MemoryVector{
		ID:        id,
		Text:      text,
		Embedding: embedding,
		Metadata: types.VectorMetadata{
			Category:  types.CategoryPreference,
			Context:   contextName,
			Timestamp: time.Now().UTC(),
		},
	}
}

func TestQueryOrdersByDistance(t *testing.T) {
	idx := New()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, vec("mem_close", "likes jazz", "general", []float32{1, 0, 0})))
	require.NoError(t, idx.Upsert(ctx, vec("mem_mid", "likes rock", "general", []float32{1, 1, 0})))
	require.NoError(t, idx.Upsert(ctx, vec("mem_far", "hates mornings", "general", []float32{0, 0, 1})))

	matches, err := idx.Query(ctx, storage.VectorQuery{Embedding: []float32{1, 0, 0}, K: 3})
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, "mem_close", matches[0].ID)
	assert.InDelta(t, 0.0, matches[0].Distance, 1e-9)
	assert.Equal(t, "mem_mid", matches[1].ID)
	assert.Equal(t, "mem_far", matches[2].ID)
	assert.InDelta(t, 1.0, matches[2].Distance, 1e-9)
}

func TestQueryRespectsKAndContext(t *testing.T) {
	idx := New()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, vec("mem_a", "a", "work", []float32{1, 0})))
	require.NoError(t, idx.Upsert(ctx, vec("mem_b", "b", "work", []float32{0.9, 0.1})))
	require.NoError(t, idx.Upsert(ctx, vec("mem_c", "c", "cooking", []float32{1, 0})))

	matches, err := idx.Query(ctx, storage.VectorQuery{Embedding: []float32{1, 0}, K: 1, Context: "work"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "mem_a", matches[0].ID)
}

func TestUpsertReplaces(t *testing.T) {
	idx := New()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, vec("mem_1", "old text", "general", []float32{1, 0})))
	require.NoError(t, idx.Upsert(ctx, vec("mem_1", "new text", "general", []float32{0, 1})))

	got, err := idx.GetByID(ctx, "mem_1")
	require.NoError(t, err)
	assert.Equal(t, "new text", got.Text)
	assert.Equal(t, []float32{0, 1}, got.Embedding)
	assert.Equal(t, 1, idx.Len())
}

func TestDeleteIgnoresMissing(t *testing.T) {
	idx := New()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, vec("mem_1", "text", "general", []float32{1})))
	require.NoError(t, idx.Delete(ctx, []string{"mem_1", "mem_ghost"}))

	_, err := idx.GetByID(ctx, "mem_1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestZeroVectorIsMaximallyDistant(t *testing.T) {
	idx := New()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, vec("mem_zero", "empty", "general", []float32{0, 0})))

	matches, err := idx.Query(ctx, storage.VectorQuery{Embedding: []float32{1, 0}, K: 1})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, matches[0].Distance, 1e-9)
}
