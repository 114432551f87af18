package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quiltmem/quilt/internal/storage/sqlite"
	"github.com/quiltmem/quilt/pkg/types"
)

func fact(userID, content string) types.Fact {
	return types.Fact{
		ID:         "fact_" + uuid.NewString(),
		UserID:     userID,
		Content:    content,
		Category:   types.CategoryPreference,
		Confidence: 0.8,
		Source:     types.SourceImplicit,
	}
}

func TestFindContradictionsAntonymPairs(t *testing.T) {
	existing := []types.Fact{fact("user-1", "i like jazz")}

	found := FindContradictions("i dislike jazz these days", existing)
	require.Len(t, found, 1)
	assert.Equal(t, "dislike", found[0].NewTerm)
	assert.Equal(t, "like", found[0].OldTerm)

	// The reverse direction is detected too.
	found = FindContradictions("i like jazz", []types.Fact{fact("user-1", "i dislike jazz")})
	require.Len(t, found, 1)
	assert.Equal(t, "like", found[0].NewTerm)
	assert.Equal(t, "dislike", found[0].OldTerm)
}

func TestFindContradictionsMatchesWholeTokensOnly(t *testing.T) {
	// "dislike" contains "like" as a substring; token matching must not
	// flag a dislike statement against another dislike statement.
	existing := []types.Fact{fact("user-1", "i dislike mornings")}

	found := FindContradictions("i dislike meetings too", existing)
	assert.Empty(t, found)
}

func TestFindContradictionsSkipsDeprecated(t *testing.T) {
	old := fact("user-1", "i like jazz")
	old.Deprecated = true

	found := FindContradictions("i dislike jazz", []types.Fact{old})
	assert.Empty(t, found)
}

func TestFindContradictionsOtherPairs(t *testing.T) {
	cases := []struct {
		newText string
		oldText string
	}{
		{"i hate cilantro", "i love cilantro"},
		{"i avoid crowds", "i prefer crowds"},
		{"no, that is wrong", "yes, that is right"},
		{"that is false", "that is true"},
	}

	for _, tc := range cases {
		found := FindContradictions(tc.newText, []types.Fact{fact("user-1", tc.oldText)})
		assert.Len(t, found, 1, "expected contradiction between %q and %q", tc.newText, tc.oldText)
	}
}

func newTestDetector(t *testing.T) (*Detector, *sqlite.Store) {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "detector_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	return NewDetector(store, store, zap.NewNop()), store
}

func TestResolveNewWins(t *testing.T) {
	d, store := newTestDetector(t)
	ctx := context.Background()

	oldFact := fact("user-1", "i like jazz")
	newFact := fact("user-1", "i dislike jazz")
	require.NoError(t, store.CreateFact(ctx, &oldFact))
	require.NoError(t, store.CreateFact(ctx, &newFact))

	require.NoError(t, d.Resolve(ctx, oldFact.ID, newFact.ID, types.ResolutionNewWins))

	got, err := store.GetFact(ctx, oldFact.ID)
	require.NoError(t, err)
	assert.True(t, got.Deprecated, "old fact loses under new_wins")

	got, err = store.GetFact(ctx, newFact.ID)
	require.NoError(t, err)
	assert.False(t, got.Deprecated)

	edges, err := store.EdgesFrom(ctx, newFact.ID, types.RelContradicts)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.True(t, edges[0].Resolved)
	assert.Equal(t, types.ResolutionNewWins, edges[0].Resolution)
	assert.Equal(t, newFact.ID, edges[0].WinningID)
	assert.Equal(t, oldFact.ID, edges[0].ToID)
}

func TestResolveOldWins(t *testing.T) {
	d, store := newTestDetector(t)
	ctx := context.Background()

	oldFact := fact("user-1", "i like jazz")
	newFact := fact("user-1", "i dislike jazz")
	require.NoError(t, store.CreateFact(ctx, &oldFact))
	require.NoError(t, store.CreateFact(ctx, &newFact))

	require.NoError(t, d.Resolve(ctx, oldFact.ID, newFact.ID, types.ResolutionOldWins))

	got, err := store.GetFact(ctx, newFact.ID)
	require.NoError(t, err)
	assert.True(t, got.Deprecated, "new fact loses under old_wins")

	edges, err := store.EdgesFrom(ctx, newFact.ID, types.RelContradicts)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, oldFact.ID, edges[0].WinningID)
}

func TestResolveCoexist(t *testing.T) {
	d, store := newTestDetector(t)
	ctx := context.Background()

	oldFact := fact("user-1", "i like jazz at home")
	newFact := fact("user-1", "i dislike jazz at work")
	require.NoError(t, store.CreateFact(ctx, &oldFact))
	require.NoError(t, store.CreateFact(ctx, &newFact))

	require.NoError(t, d.Resolve(ctx, oldFact.ID, newFact.ID, types.ResolutionCoexist))

	for _, id := range []string{oldFact.ID, newFact.ID} {
		got, err := store.GetFact(ctx, id)
		require.NoError(t, err)
		assert.False(t, got.Deprecated, "coexist keeps both facts live")
	}

	edges, err := store.EdgesFrom(ctx, newFact.ID, types.RelContradicts)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.False(t, edges[0].Resolved, "coexist records a pending disagreement")
	assert.Empty(t, edges[0].Resolution)
	assert.Empty(t, edges[0].WinningID)
}

func TestResolveRejectsUnknownPolicy(t *testing.T) {
	d, _ := newTestDetector(t)

	err := d.Resolve(context.Background(), "fact_a", "fact_b", "newest")
	require.Error(t, err)

	var verr *types.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestDetectorCheck(t *testing.T) {
	d, store := newTestDetector(t)
	ctx := context.Background()

	stored := fact("user-1", "i like jazz")
	require.NoError(t, store.CreateFact(ctx, &stored))

	found, err := d.Check(ctx, "user-1", "actually i dislike jazz")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, stored.ID, found[0].Existing.ID)

	// Another user's facts are not consulted.
	found, err = d.Check(ctx, "user-2", "i dislike jazz")
	require.NoError(t, err)
	assert.Empty(t, found)
}
