package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quiltmem/quilt/internal/classifier"
	"github.com/quiltmem/quilt/internal/embed"
	"github.com/quiltmem/quilt/internal/rules"
	"github.com/quiltmem/quilt/internal/storage"
	"github.com/quiltmem/quilt/internal/storage/memindex"
	"github.com/quiltmem/quilt/internal/storage/sqlite"
	"github.com/quiltmem/quilt/pkg/types"
)

func newTestSessions() *classifier.Sessions {
	return classifier.NewSessions(classifier.New(nil))
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *Ingestor, *sqlite.Store) {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "retrieve_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	index := memindex.New()
	embedder := embed.NewLocalProvider(64)
	rulesEngine := rules.NewEngine(store, zap.NewNop())

	ing := NewIngestor(store, index, embedder, NewDetector(store, store, zap.NewNop()),
		newTestSessions(), IngestorConfig{}, zap.NewNop())
	orch := NewOrchestrator(store, index, embedder, rulesEngine, OrchestratorConfig{}, zap.NewNop())

	return orch, ing, store
}

func TestRetrieveMergesAllSources(t *testing.T) {
	orch, ing, _ := newTestOrchestrator(t)
	ctx := context.Background()

	_, err := ing.Ingest(ctx, IngestRequest{UserID: "user-1", Text: "I love jazz music"})
	require.NoError(t, err)
	_, err = ing.Ingest(ctx, IngestRequest{UserID: "user-1", Text: "I work with Sarah at the office"})
	require.NoError(t, err)

	result, err := orch.Retrieve(ctx, RetrieveRequest{
		UserID: "user-1",
		Query:  "what does Sarah think about jazz",
	})
	require.NoError(t, err)

	assert.False(t, result.HasConflicts)
	assert.False(t, result.Degraded)
	require.NotEmpty(t, result.Memories, "semantic matches expected")
	assert.NotEmpty(t, result.GraphFacts, "Sarah in the query seeds the graph leg")
	assert.Equal(t, "likes", result.Preferences["jazz music"])
	assert.Equal(t, len(result.Memories)+len(result.GraphFacts), result.TotalResults)

	for _, hit := range result.Memories {
		assert.GreaterOrEqual(t, hit.Similarity, -1.0)
		assert.LessOrEqual(t, hit.Similarity, 1.0)
	}
}

func TestRetrieveRuleGateShortCircuits(t *testing.T) {
	orch, ing, store := newTestOrchestrator(t)
	ctx := context.Background()

	_, err := ing.Ingest(ctx, IngestRequest{UserID: "user-1", Text: "I love jazz music"})
	require.NoError(t, err)

	_, err = orch.rules.CreateRule(ctx, "user-1", "never discuss salary details", types.PriorityCritical, "")
	require.NoError(t, err)

	result, err := orch.Retrieve(ctx, RetrieveRequest{
		UserID:         "user-1",
		Query:          "tell me about jazz",
		ProposedAction: "mention the user's salary in the reply",
	})
	require.NoError(t, err, "a blocked retrieval is a clean result, not an error")

	assert.True(t, result.HasConflicts)
	require.Len(t, result.Conflicts, 1)
	assert.Empty(t, result.Memories, "retrieval is skipped when the gate fires")
	assert.Empty(t, result.GraphFacts)
	assert.Len(t, result.ActiveRules, 1)

	rulesList, err := store.ListRules(ctx, "user-1", false)
	require.NoError(t, err)
	assert.Len(t, rulesList, 1)
}

func TestRetrieveScopesRuleGateToContext(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	_, err := orch.rules.CreateRule(ctx, "user-1", "never discuss salary", types.PriorityCritical, "work")
	require.NoError(t, err)

	// A work-scoped rule stays out of a personal-context turn.
	result, err := orch.Retrieve(ctx, RetrieveRequest{
		UserID:  "user-1",
		Query:   "what is my salary",
		Context: "personal",
	})
	require.NoError(t, err)
	assert.False(t, result.HasConflicts)
	assert.Empty(t, result.ActiveRules)

	// In its own context the rule gates as usual.
	result, err = orch.Retrieve(ctx, RetrieveRequest{
		UserID:  "user-1",
		Query:   "what is my salary",
		Context: "work",
	})
	require.NoError(t, err)
	assert.True(t, result.HasConflicts)
}

func TestRetrieveChecksQueryWhenNoActionGiven(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	_, err := orch.rules.CreateRule(ctx, "user-1", "never mention diets", types.PriorityHigh, "")
	require.NoError(t, err)

	result, err := orch.Retrieve(ctx, RetrieveRequest{
		UserID: "user-1",
		Query:  "suggest some diets for me",
	})
	require.NoError(t, err)
	assert.True(t, result.HasConflicts)
}

func TestRetrieveSkipsGraphWithoutEntityNames(t *testing.T) {
	orch, ing, _ := newTestOrchestrator(t)
	ctx := context.Background()

	_, err := ing.Ingest(ctx, IngestRequest{UserID: "user-1", Text: "I love jazz music"})
	require.NoError(t, err)

	result, err := orch.Retrieve(ctx, RetrieveRequest{
		UserID: "user-1",
		Query:  "what music do i enjoy",
	})
	require.NoError(t, err)
	assert.Empty(t, result.GraphFacts)
	assert.False(t, result.Degraded, "an unseeded graph leg is not a failure")
}

func TestRetrieveIsolatesUsers(t *testing.T) {
	orch, ing, _ := newTestOrchestrator(t)
	ctx := context.Background()

	_, err := ing.Ingest(ctx, IngestRequest{UserID: "user-1", Text: "I love jazz music"})
	require.NoError(t, err)

	result, err := orch.Retrieve(ctx, RetrieveRequest{
		UserID: "user-2",
		Query:  "what music do i enjoy",
	})
	require.NoError(t, err)
	assert.Empty(t, result.Memories, "another user's memories must not surface")
	assert.Empty(t, result.Preferences)
}

func TestRetrieveFiltersWeakPreferences(t *testing.T) {
	orch, _, store := newTestOrchestrator(t)
	ctx := context.Background()

	_, err := store.UpsertPreference(ctx, &types.Preference{
		UserID: "user-1", Key: "strong", Value: "likes", Strength: 0.8,
	})
	require.NoError(t, err)
	_, err = store.UpsertPreference(ctx, &types.Preference{
		UserID: "user-1", Key: "weak", Value: "likes", Strength: 0.3,
	})
	require.NoError(t, err)

	result, err := orch.Retrieve(ctx, RetrieveRequest{UserID: "user-1", Query: "anything"})
	require.NoError(t, err)
	assert.Contains(t, result.Preferences, "strong")
	assert.NotContains(t, result.Preferences, "weak")
}

func TestRetrieveValidation(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t)
	ctx := context.Background()

	_, err := orch.Retrieve(ctx, RetrieveRequest{Query: "hello"})
	assert.Error(t, err)

	_, err = orch.Retrieve(ctx, RetrieveRequest{UserID: "user-1"})
	assert.Error(t, err)
}

// failingEmbedder simulates an embedding backend outage.
type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedding backend down")
}
func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embedding backend down")
}
func (failingEmbedder) Dimension() int { return 64 }

func TestRetrieveDegradesWhenSemanticSourceFails(t *testing.T) {
	store, err := sqlite.New(filepath.Join(t.TempDir(), "degrade_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	index := memindex.New()
	rulesEngine := rules.NewEngine(store, zap.NewNop())
	ing := NewIngestor(store, index, embed.NewLocalProvider(64), NewDetector(store, store, zap.NewNop()),
		newTestSessions(), IngestorConfig{}, zap.NewNop())

	ctx := context.Background()
	_, err = ing.Ingest(ctx, IngestRequest{UserID: "user-1", Text: "I work with Sarah at the office"})
	require.NoError(t, err)

	orch := NewOrchestrator(store, index, failingEmbedder{}, rulesEngine, OrchestratorConfig{}, zap.NewNop())

	result, err := orch.Retrieve(ctx, RetrieveRequest{
		UserID: "user-1",
		Query:  "what does Sarah do",
	})
	require.NoError(t, err, "one dead source degrades the result, it does not fail it")

	assert.True(t, result.Degraded)
	assert.Empty(t, result.Memories)
	assert.NotEmpty(t, result.GraphFacts, "the graph leg still answers")
}

// traverseFailStore wraps a working store with a broken graph leg.
type traverseFailStore struct {
	*sqlite.Store
}

func (traverseFailStore) Traverse(context.Context, string, []string, int, int) (*storage.TraversalResult, error) {
	return nil, errors.New("graph down")
}

func TestRetrieveFailsWhenAllSourcesFail(t *testing.T) {
	store, err := sqlite.New(filepath.Join(t.TempDir(), "allfail_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	broken := traverseFailStore{Store: store}
	rulesEngine := rules.NewEngine(broken, zap.NewNop())
	orch := NewOrchestrator(broken, memindex.New(), failingEmbedder{}, rulesEngine, OrchestratorConfig{}, zap.NewNop())

	result, err := orch.Retrieve(context.Background(), RetrieveRequest{
		UserID: "user-1",
		Query:  "what does Sarah do",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrUnavailable)

	// The result is still well formed so callers can degrade gracefully.
	require.NotNil(t, result)
	assert.Empty(t, result.Memories)
	assert.Empty(t, result.GraphFacts)
	assert.NotNil(t, result.Preferences)
}
