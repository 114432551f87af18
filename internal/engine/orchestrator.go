package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quiltmem/quilt/internal/embed"
	"github.com/quiltmem/quilt/internal/rules"
	"github.com/quiltmem/quilt/internal/storage"
	"github.com/quiltmem/quilt/pkg/types"
)

// RetrieveRequest describes one retrieval turn.
type RetrieveRequest struct {
	UserID string `json:"user_id"`

	// Query is the text to retrieve memories for.
	Query string `json:"query"`

	// ProposedAction is checked against the user's rules before retrieval.
	// When empty the query itself is checked.
	ProposedAction string `json:"proposed_action,omitempty"`

	// Context optionally scopes the turn: the rule gate considers only rules
	// for this context (plus all-context rules) and semantic matches are
	// restricted to it.
	Context string `json:"context,omitempty"`

	// K caps semantic matches. Default: 10.
	K int `json:"k,omitempty"`

	// MaxHops bounds graph traversal. Default: 2.
	MaxHops int `json:"max_hops,omitempty"`
}

// MemoryHit is one semantic match, scored as similarity (1 - distance).
type MemoryHit struct {
	ID         string               `json:"id"`
	Text       string               `json:"text"`
	Metadata   types.VectorMetadata `json:"metadata"`
	Similarity float64              `json:"similarity"`
}

// RetrievalResult is the assembled context for one turn. When HasConflicts
// is set, retrieval was skipped and only the conflict fields are populated.
type RetrievalResult struct {
	HasConflicts  bool              `json:"has_conflicts"`
	Conflicts     []rules.Conflict  `json:"conflicts,omitempty"`
	ActiveRules   []types.UserRule  `json:"active_rules"`
	Memories      []MemoryHit       `json:"memories"`
	GraphFacts    []types.Fact      `json:"graph_facts"`
	GraphEntities []types.Entity    `json:"graph_entities"`
	Preferences   map[string]string `json:"preferences"`
	TotalResults  int               `json:"total_results"`

	// Degraded marks a result assembled with one retrieval source down.
	Degraded bool `json:"degraded,omitempty"`
}

// OrchestratorConfig tunes retrieval.
type OrchestratorConfig struct {
	// SourceTimeout bounds each retrieval source. Default: 3 seconds.
	SourceTimeout time.Duration

	// PreferenceStrength is the minimum strength for surfaced preferences.
	// Default: 0.5.
	PreferenceStrength float64
}

func (c *OrchestratorConfig) normalize() {
	if c.SourceTimeout == 0 {
		c.SourceTimeout = 3 * time.Second
	}
	if c.PreferenceStrength == 0 {
		c.PreferenceStrength = 0.5
	}
}

// Orchestrator gates retrieval behind the rules engine and fans out to the
// semantic index and the relational graph concurrently.
type Orchestrator struct {
	store    storage.RelationalStore
	index    storage.SemanticIndex
	embedder embed.Provider
	rules    *rules.Engine
	logger   *zap.Logger
	config   OrchestratorConfig
}

// NewOrchestrator creates a retrieval orchestrator.
func NewOrchestrator(
	store storage.RelationalStore,
	index storage.SemanticIndex,
	embedder embed.Provider,
	rulesEngine *rules.Engine,
	config OrchestratorConfig,
	logger *zap.Logger,
) *Orchestrator {
	config.normalize()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:    store,
		index:    index,
		embedder: embedder,
		rules:    rulesEngine,
		logger:   logger,
		config:   config,
	}
}

// Retrieve runs one retrieval turn.
//
// The rule gate runs first: a proposed action colliding with an active rule
// short-circuits retrieval and returns only the conflicts. Otherwise the
// semantic index and graph traversal run concurrently with independent
// timeouts. One failing source degrades the result; both failing returns
// storage.ErrUnavailable alongside an empty but well-formed result.
func (o *Orchestrator) Retrieve(ctx context.Context, req RetrieveRequest) (*RetrievalResult, error) {
	if req.UserID == "" {
		return nil, types.NewValidationError("user_id", "must not be empty")
	}
	if req.Query == "" && req.ProposedAction == "" {
		return nil, types.NewValidationError("query", "must not be empty")
	}
	if req.K < 1 {
		req.K = 10
	}
	if req.MaxHops < 1 {
		req.MaxHops = 2
	}

	activeRules, err := o.rules.ActiveRules(ctx, req.UserID, req.Context)
	if err != nil {
		// The gate is mandatory; retrieval never proceeds unchecked.
		return nil, fmt.Errorf("engine: rule gate: %w", err)
	}

	result := &RetrievalResult{
		ActiveRules: activeRules,
		Preferences: map[string]string{},
	}

	action := req.ProposedAction
	if action == "" {
		action = req.Query
	}
	if conflicts := rules.ConflictsAgainst(activeRules, action); len(conflicts) > 0 {
		result.HasConflicts = true
		result.Conflicts = conflicts
		o.logger.Info("retrieval blocked by rule conflict",
			zap.String("user_id", req.UserID),
			zap.Int("conflicts", len(conflicts)),
		)
		return result, nil
	}

	var (
		matches   []storage.VectorMatch
		semErr    error
		traversal *storage.TraversalResult
		graphErr  error
		graphRan  bool
		prefs     map[string]string
		prefErr   error
	)

	// Source errors are captured, not returned, so one failing source
	// never cancels its sibling.
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sctx, cancel := context.WithTimeout(gctx, o.config.SourceTimeout)
		defer cancel()

		embedding, err := o.embedder.Embed(sctx, req.Query)
		if err != nil {
			semErr = err
			return nil
		}
		matches, semErr = o.index.Query(sctx, storage.VectorQuery{
			UserID:    req.UserID,
			Embedding: embedding,
			K:         req.K,
			Context:   req.Context,
		})
		return nil
	})

	g.Go(func() error {
		names := ExtractEntityNames(req.Query)
		if len(names) == 0 {
			return nil
		}
		graphRan = true

		sctx, cancel := context.WithTimeout(gctx, o.config.SourceTimeout)
		defer cancel()

		traversal, graphErr = o.store.Traverse(sctx, req.UserID, names, req.MaxHops, req.K*2)
		return nil
	})

	g.Go(func() error {
		sctx, cancel := context.WithTimeout(gctx, o.config.SourceTimeout)
		defer cancel()

		prefs, prefErr = o.store.Preferences(sctx, req.UserID, o.config.PreferenceStrength)
		return nil
	})

	_ = g.Wait()

	if semErr != nil {
		o.logger.Warn("semantic retrieval failed",
			zap.String("user_id", req.UserID), zap.Error(semErr))
	}
	if graphErr != nil {
		o.logger.Warn("graph retrieval failed",
			zap.String("user_id", req.UserID), zap.Error(graphErr))
	}
	if prefErr != nil {
		o.logger.Warn("preference lookup failed",
			zap.String("user_id", req.UserID), zap.Error(prefErr))
	}

	seen := make(map[string]bool)
	for _, m := range matches {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		result.Memories = append(result.Memories, MemoryHit{
			ID:         m.ID,
			Text:       m.Text,
			Metadata:   m.Metadata,
			Similarity: 1.0 - m.Distance,
		})
	}

	if traversal != nil {
		result.GraphFacts = traversal.Facts
		result.GraphEntities = traversal.Entities
	}
	if prefs != nil {
		result.Preferences = prefs
	}
	result.TotalResults = len(result.Memories) + len(result.GraphFacts)

	semFailed := semErr != nil
	graphFailed := graphRan && graphErr != nil
	result.Degraded = semFailed || graphFailed

	// A graph leg that never ran (no entity names in the query) does not
	// count as a failure.
	if semFailed && graphFailed {
		return result, fmt.Errorf("engine: all retrieval sources failed: %w", storage.ErrUnavailable)
	}

	return result, nil
}
