// Package engine composes the Quilt memory pipeline: fact extraction,
// contradiction handling, background ingestion, and hybrid retrieval.
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quiltmem/quilt/internal/storage"
	"github.com/quiltmem/quilt/pkg/types"
)

// antonymPairs drive contradiction detection. A new statement containing one
// side while a stored fact contains the other flags the pair.
var antonymPairs = [][2]string{
	{"like", "dislike"},
	{"love", "hate"},
	{"prefer", "avoid"},
	{"yes", "no"},
	{"true", "false"},
}

// Contradiction pairs a new statement with a stored fact it opposes.
type Contradiction struct {
	Existing types.Fact `json:"existing"`
	NewTerm  string     `json:"new_term"`
	OldTerm  string     `json:"old_term"`
}

// FindContradictions compares a new statement against stored facts and
// returns every antonym collision. Tokens are compared whole, so "dislike"
// never matches "like". Deprecated facts are skipped.
func FindContradictions(newText string, existing []types.Fact) []Contradiction {
	newTokens := tokenSet(newText)
	if len(newTokens) == 0 {
		return nil
	}

	var found []Contradiction
	for _, fact := range existing {
		if fact.Deprecated {
			continue
		}
		oldTokens := tokenSet(fact.Content)

		for _, pair := range antonymPairs {
			a, b := pair[0], pair[1]
			switch {
			case newTokens[a] && oldTokens[b]:
				found = append(found, Contradiction{Existing: fact, NewTerm: a, OldTerm: b})
			case newTokens[b] && oldTokens[a]:
				found = append(found, Contradiction{Existing: fact, NewTerm: b, OldTerm: a})
			}
		}
	}

	return found
}

// tokenSet lowercases and tokenises text, stripping edge punctuation.
func tokenSet(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		token = strings.Trim(token, ".,!?;:\"'")
		if token != "" {
			tokens[token] = true
		}
	}
	return tokens
}

// Detector checks new statements for contradictions and records their
// resolutions as CONTRADICTS edges.
type Detector struct {
	facts  storage.FactStore
	graph  storage.GraphStore
	logger *zap.Logger
}

// NewDetector creates a contradiction detector.
func NewDetector(facts storage.FactStore, graph storage.GraphStore, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{facts: facts, graph: graph, logger: logger}
}

// Check loads the user's live facts and returns the contradictions the new
// statement raises against them.
func (d *Detector) Check(ctx context.Context, userID, newText string) ([]Contradiction, error) {
	facts, err := d.facts.ListFacts(ctx, userID, storage.FactFilter{})
	if err != nil {
		return nil, fmt.Errorf("engine: contradiction check: %w", err)
	}
	return FindContradictions(newText, facts), nil
}

// Resolve applies a resolution policy to a contradicting fact pair and
// records a CONTRADICTS edge from the new fact to the old one.
//
// Policies: new_wins deprecates the old fact, old_wins deprecates the new
// fact, coexist keeps both. The edge is marked resolved only when one side
// won; under coexist it stays unresolved, marking a pending disagreement.
// There is no default; the caller must choose.
func (d *Detector) Resolve(ctx context.Context, oldFactID, newFactID, policy string) error {
	if !types.IsValidResolution(policy) {
		return types.NewValidationError("resolution", "must be one of new_wins, old_wins, coexist")
	}

	edge := &types.Relationship{
		ID:     "rel_" + uuid.NewString(),
		FromID: newFactID,
		ToID:   oldFactID,
		Type:   types.RelContradicts,
	}

	switch policy {
	case types.ResolutionNewWins:
		if err := d.facts.DeprecateFact(ctx, oldFactID); err != nil {
			return fmt.Errorf("engine: resolve %s: %w", policy, err)
		}
		edge.Resolved = true
		edge.Resolution = policy
		edge.WinningID = newFactID
	case types.ResolutionOldWins:
		if err := d.facts.DeprecateFact(ctx, newFactID); err != nil {
			return fmt.Errorf("engine: resolve %s: %w", policy, err)
		}
		edge.Resolved = true
		edge.Resolution = policy
		edge.WinningID = oldFactID
	case types.ResolutionCoexist:
		// Both facts stay live and the edge stays unresolved.
	}
	if err := d.graph.CreateEdge(ctx, edge); err != nil {
		return fmt.Errorf("engine: record contradiction edge: %w", err)
	}

	d.logger.Info("contradiction resolved",
		zap.String("old_fact", oldFactID),
		zap.String("new_fact", newFactID),
		zap.String("resolution", policy),
	)

	return nil
}
