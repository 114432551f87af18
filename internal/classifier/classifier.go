// Package classifier assigns conversation turns to named contexts by keyword
// scoring and tracks per-session context transitions.
package classifier

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/quiltmem/quilt/pkg/types"
)

// confidencePerHit converts a keyword hit count into a confidence score,
// capped at 1.0.
const confidencePerHit = 0.2

// Context is a named conversational context with its trigger keywords.
type Context struct {
	Name     string   `yaml:"name" json:"name"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// Classifier scores turns against a fixed, ordered context list. Declaration
// order is significant: ties go to the earlier context.
type Classifier struct {
	contexts []Context
}

// DefaultContexts returns the built-in context catalogue used when no
// configuration file is provided.
func DefaultContexts() []Context {
	return []Context{
		{Name: "work", Keywords: []string{"meeting", "deadline", "project", "boss", "office", "colleague", "email"}},
		{Name: "cooking", Keywords: []string{"recipe", "cook", "ingredient", "bake", "dinner", "meal", "kitchen"}},
		{Name: "travel", Keywords: []string{"flight", "hotel", "trip", "vacation", "airport", "itinerary", "passport"}},
		{Name: "health", Keywords: []string{"doctor", "exercise", "sleep", "workout", "medication", "appointment", "diet"}},
	}
}

// New creates a classifier over the given contexts. An empty list falls back
// to the built-in catalogue.
func New(contexts []Context) *Classifier {
	if len(contexts) == 0 {
		contexts = DefaultContexts()
	}
	return &Classifier{contexts: contexts}
}

// LoadContexts reads a context catalogue from a YAML file.
func LoadContexts(path string) ([]Context, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("classifier: read contexts file: %w", err)
	}

	var doc struct {
		Contexts []Context `yaml:"contexts"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("classifier: parse contexts file: %w", err)
	}

	for i, c := range doc.Contexts {
		if c.Name == "" {
			return nil, fmt.Errorf("classifier: context %d has no name", i)
		}
		if len(c.Keywords) == 0 {
			return nil, fmt.Errorf("classifier: context %q has no keywords", c.Name)
		}
	}

	return doc.Contexts, nil
}

// Contexts returns the catalogue in declaration order.
func (c *Classifier) Contexts() []Context {
	return c.contexts
}

// Classify scores the text against every context and returns the best
// context name with its confidence. A text hitting no keywords classifies
// as general with zero confidence.
//
// Scoring counts case-insensitive substring hits, one per keyword.
// Confidence is hits * 0.2 capped at 1.0. Ties keep the earlier context.
func (c *Classifier) Classify(text string) (string, float64) {
	lowered := strings.ToLower(text)

	bestName := types.ContextGeneral
	bestScore := 0
	for _, ctx := range c.contexts {
		score := 0
		for _, keyword := range ctx.Keywords {
			if strings.Contains(lowered, strings.ToLower(keyword)) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			bestName = ctx.Name
		}
	}

	confidence := float64(bestScore) * confidencePerHit
	if confidence > 1.0 {
		confidence = 1.0
	}

	return bestName, confidence
}
