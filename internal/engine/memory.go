package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/quiltmem/quilt/internal/classifier"
	"github.com/quiltmem/quilt/internal/embed"
	"github.com/quiltmem/quilt/internal/rules"
	"github.com/quiltmem/quilt/internal/storage"
	"github.com/quiltmem/quilt/pkg/types"
)

// Config tunes the assembled memory engine.
type Config struct {
	Ingestor  IngestorConfig
	Retrieval OrchestratorConfig

	// Contexts overrides the built-in context catalogue.
	Contexts []classifier.Context
}

// Memory is the assembled engine: ingestion, retrieval, rules, and
// contradiction handling behind one facade.
type Memory struct {
	store    storage.RelationalStore
	index    storage.SemanticIndex
	embedder embed.Provider
	logger   *zap.Logger

	rules        *rules.Engine
	detector     *Detector
	sessions     *classifier.Sessions
	ingestor     *Ingestor
	orchestrator *Orchestrator
}

// New wires the engine together. Call Start before enqueueing background
// work and Shutdown on exit.
func New(
	store storage.RelationalStore,
	index storage.SemanticIndex,
	embedder embed.Provider,
	config Config,
	logger *zap.Logger,
) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}

	rulesEngine := rules.NewEngine(store, logger.Named("rules"))
	detector := NewDetector(store, store, logger.Named("contradiction"))
	sessions := classifier.NewSessions(classifier.New(config.Contexts))

	m := &Memory{
		store:    store,
		index:    index,
		embedder: embedder,
		logger:   logger,
		rules:    rulesEngine,
		detector: detector,
		sessions: sessions,
	}
	m.ingestor = NewIngestor(store, index, embedder, detector, sessions, config.Ingestor, logger.Named("ingest"))
	m.orchestrator = NewOrchestrator(store, index, embedder, rulesEngine, config.Retrieval, logger.Named("retrieve"))

	return m
}

// Start launches the background ingestion pool.
func (m *Memory) Start() {
	m.ingestor.Start()
}

// Shutdown drains background work and closes the store.
func (m *Memory) Shutdown(ctx context.Context) error {
	if err := m.ingestor.Shutdown(ctx); err != nil {
		return fmt.Errorf("engine: shutdown: %w", err)
	}
	return m.store.Close()
}

// Remember ingests one utterance synchronously.
func (m *Memory) Remember(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	return m.ingestor.Ingest(ctx, req)
}

// RememberAsync hands an utterance to the background pool. Returns false
// when the queue is full and the utterance was dropped.
func (m *Memory) RememberAsync(req IngestRequest) bool {
	return m.ingestor.Enqueue(req)
}

// Retrieve assembles context for one turn.
func (m *Memory) Retrieve(ctx context.Context, req RetrieveRequest) (*RetrievalResult, error) {
	return m.orchestrator.Retrieve(ctx, req)
}

// Rules exposes rule management.
func (m *Memory) Rules() *rules.Engine {
	return m.rules
}

// ResolveContradiction applies a resolution policy to a fact pair.
func (m *Memory) ResolveContradiction(ctx context.Context, oldFactID, newFactID, policy string) error {
	return m.detector.Resolve(ctx, oldFactID, newFactID, policy)
}

// CheckContradictions previews the contradictions a statement would raise
// without storing anything.
func (m *Memory) CheckContradictions(ctx context.Context, userID, text string) ([]Contradiction, error) {
	return m.detector.Check(ctx, userID, text)
}

// SetPreference stores an explicitly confirmed preference at full strength.
func (m *Memory) SetPreference(ctx context.Context, userID, key, value string) (*types.Preference, error) {
	return m.store.UpsertPreference(ctx, &types.Preference{
		UserID:    userID,
		Key:       key,
		Value:     value,
		Strength:  1.0,
		Confirmed: true,
	})
}

// Preferences returns every stored preference for the user.
func (m *Memory) Preferences(ctx context.Context, userID string) ([]types.Preference, error) {
	return m.store.ListPreferences(ctx, userID)
}

// Facts lists the user's facts with the given filter.
func (m *Memory) Facts(ctx context.Context, userID string, filter storage.FactFilter) ([]types.Fact, error) {
	return m.store.ListFacts(ctx, userID, filter)
}

// SessionContext reports the current context of a session.
func (m *Memory) SessionContext(userID, sessionID string) string {
	if sessionID == "" {
		sessionID = userID
	}
	return m.sessions.Get(userID + "/" + sessionID).Current()
}

// Stats summarises the user's stored footprint: relational row counts plus
// the rule-set breakdown.
type Stats struct {
	Storage *storage.UserStats `json:"storage"`
	Rules   *rules.Statistics  `json:"rules"`
}

// Stats reports the user's stored footprint.
func (m *Memory) Stats(ctx context.Context, userID string) (*Stats, error) {
	counts, err := m.store.Stats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("engine: stats: %w", err)
	}
	ruleStats, err := m.rules.Stats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("engine: stats: %w", err)
	}

	return &Stats{
		Storage: counts,
		Rules:   ruleStats,
	}, nil
}
