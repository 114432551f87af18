package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiltmem/quilt/pkg/types"
)

func TestExtractCandidatesPreference(t *testing.T) {
	candidates := ExtractCandidates("I love jazz music")
	require.Len(t, candidates, 1)

	c := candidates[0]
	assert.Equal(t, types.CategoryPreference, c.Category)
	assert.InDelta(t, 0.8, c.Confidence, 1e-9)
	assert.Equal(t, "jazz music", c.PreferenceKey)
	assert.Equal(t, "likes", c.PreferenceValue)
}

func TestExtractCandidatesNegativePreference(t *testing.T) {
	candidates := ExtractCandidates("I really hate early meetings")
	require.Len(t, candidates, 1)

	c := candidates[0]
	assert.Equal(t, types.CategoryPreference, c.Category)
	assert.Equal(t, "early meetings", c.PreferenceKey)
	assert.Equal(t, "dislikes", c.PreferenceValue)
}

func TestExtractCandidatesKnowledge(t *testing.T) {
	for _, text := range []string{
		"I am a nurse",
		"My name is Alex",
		"I work at the hospital",
		"I live in Lisbon",
	} {
		candidates := ExtractCandidates(text)
		require.Len(t, candidates, 1, text)
		assert.Equal(t, types.CategoryKnowledge, candidates[0].Category, text)
		assert.InDelta(t, 0.9, candidates[0].Confidence, 1e-9, text)
	}
}

func TestExtractCandidatesFallbackContext(t *testing.T) {
	candidates := ExtractCandidates("The meeting ran long today")
	require.Len(t, candidates, 1)
	assert.Equal(t, types.CategoryContext, candidates[0].Category)
	assert.InDelta(t, 0.6, candidates[0].Confidence, 1e-9)
}

func TestExtractCandidatesMultipleSentences(t *testing.T) {
	candidates := ExtractCandidates("I am a nurse. I love jazz! The shift was long.")
	require.Len(t, candidates, 3)
	assert.Equal(t, types.CategoryKnowledge, candidates[0].Category)
	assert.Equal(t, types.CategoryPreference, candidates[1].Category)
	assert.Equal(t, types.CategoryContext, candidates[2].Category)
}

func TestExtractCandidatesEmpty(t *testing.T) {
	assert.Empty(t, ExtractCandidates(""))
	assert.Empty(t, ExtractCandidates("   ...  "))
}

func TestExtractEntityNames(t *testing.T) {
	names := ExtractEntityNames("Yesterday I met Sarah at Acme headquarters.")
	assert.Equal(t, []string{"Sarah", "Acme"}, names)
}

func TestExtractEntityNamesSkipsSentenceStart(t *testing.T) {
	// "Berlin" opens the sentence and is excluded even though it is a
	// proper noun; "Munich" mid-sentence is kept.
	names := ExtractEntityNames("Berlin is colder than Munich.")
	assert.Equal(t, []string{"Munich"}, names)
}

func TestExtractEntityNamesSkipsShortTokens(t *testing.T) {
	names := ExtractEntityNames("I met Al and Sarah")
	assert.Equal(t, []string{"Sarah"}, names)
}

func TestExtractEntityNamesStripsPunctuation(t *testing.T) {
	names := ExtractEntityNames("We visited Lisbon, then Porto!")
	assert.Equal(t, []string{"Lisbon", "Porto"}, names)
}

func TestExtractEntityNamesDeduplicates(t *testing.T) {
	names := ExtractEntityNames("I told Sarah that Sarah was right")
	assert.Equal(t, []string{"Sarah"}, names)
}
