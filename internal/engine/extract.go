package engine

import (
	"strings"

	"github.com/quiltmem/quilt/pkg/types"
)

// Heuristic extraction confidences. Identity statements are the most
// reliable, sentiment statements next, everything else is weak context.
const (
	knowledgeConfidence  = 0.9
	preferenceConfidence = 0.8
	contextConfidence    = 0.6
)

// preferenceVerbs mark sentiment statements. The value records the polarity
// stored in the preference table.
var preferenceVerbs = map[string]string{
	"like":    "likes",
	"likes":   "likes",
	"love":    "likes",
	"loves":   "likes",
	"prefer":  "likes",
	"prefers": "likes",
	"enjoy":   "likes",
	"enjoys":  "likes",
	"hate":    "dislikes",
	"hates":   "dislikes",
	"dislike": "dislikes",
	"avoid":   "dislikes",
	"avoids":  "dislikes",
}

// knowledgePrefixes mark statements of identity or circumstance.
var knowledgePrefixes = []string{
	"i am ", "i'm ", "my name is ", "i work ", "i live ",
}

// Candidate is a fact extracted from one sentence of an utterance.
type Candidate struct {
	Content    string
	Category   string
	Confidence float64

	// PreferenceKey and PreferenceValue are set for preference candidates;
	// the key is the sentiment's object and the value its polarity.
	PreferenceKey   string
	PreferenceValue string
}

// ExtractCandidates splits an utterance into sentences and classifies each
// one. Sentences that look like neither identity nor sentiment become weak
// context facts, so nothing the user says is silently dropped.
func ExtractCandidates(text string) []Candidate {
	var candidates []Candidate
	for _, sentence := range splitSentences(text) {
		if c, ok := classifySentence(sentence); ok {
			candidates = append(candidates, c)
		}
	}
	return candidates
}

func classifySentence(sentence string) (Candidate, bool) {
	trimmed := strings.TrimSpace(sentence)
	if trimmed == "" {
		return Candidate{}, false
	}
	lowered := strings.ToLower(trimmed)

	for _, prefix := range knowledgePrefixes {
		if strings.HasPrefix(lowered, prefix) {
			return Candidate{
				Content:    trimmed,
				Category:   types.CategoryKnowledge,
				Confidence: knowledgeConfidence,
			}, true
		}
	}

	tokens := strings.Fields(lowered)
	for i, token := range tokens {
		token = strings.Trim(token, ".,!?;:\"'")
		polarity, ok := preferenceVerbs[token]
		if !ok {
			continue
		}
		return Candidate{
			Content:         trimmed,
			Category:        types.CategoryPreference,
			Confidence:      preferenceConfidence,
			PreferenceKey:   objectPhrase(tokens[i+1:]),
			PreferenceValue: polarity,
		}, true
	}

	return Candidate{
		Content:    trimmed,
		Category:   types.CategoryContext,
		Confidence: contextConfidence,
	}, true
}

// objectPhrase joins up to three cleaned tokens following a sentiment verb.
func objectPhrase(tokens []string) string {
	var parts []string
	for _, token := range tokens {
		token = strings.Trim(strings.ToLower(token), ".,!?;:\"'")
		if token == "" {
			continue
		}
		parts = append(parts, token)
		if len(parts) == 3 {
			break
		}
	}
	return strings.Join(parts, " ")
}

// splitSentences breaks text on terminal punctuation.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	for _, r := range text {
		switch r {
		case '.', '!', '?':
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()

	return sentences
}

// ExtractEntityNames pulls probable proper nouns from text: capitalised
// tokens longer than two runes that do not open a sentence. Punctuation is
// stripped before the checks.
func ExtractEntityNames(text string) []string {
	seen := make(map[string]bool)
	var names []string

	for _, sentence := range splitSentences(text) {
		tokens := strings.Fields(sentence)
		for i, token := range tokens {
			token = strings.Trim(token, ".,!?;:")
			if i == 0 || len([]rune(token)) <= 2 {
				continue
			}
			first := []rune(token)[0]
			if first < 'A' || first > 'Z' {
				continue
			}
			if !seen[token] {
				seen[token] = true
				names = append(names, token)
			}
		}
	}

	return names
}
