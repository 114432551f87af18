package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quiltmem/quilt/internal/classifier"
	"github.com/quiltmem/quilt/internal/embed"
	"github.com/quiltmem/quilt/internal/storage"
	"github.com/quiltmem/quilt/pkg/types"
)

// IngestRequest is one conversation turn to fold into memory.
type IngestRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`

	// Text is the user's message. Extraction reads only this side of the
	// turn.
	Text string `json:"text"`

	// AssistantResponse is the assistant's side of the turn. It is accepted
	// for contract completeness and ignored by the extraction heuristics.
	AssistantResponse string `json:"assistant_response,omitempty"`

	// Context, when set, overrides the session classifier's context for
	// this turn.
	Context string `json:"context,omitempty"`
}

// IngestResult reports what one utterance produced.
type IngestResult struct {
	FactIDs        []string `json:"fact_ids"`
	MemoryIDs      []string `json:"memory_ids,omitempty"`
	Entities       []string `json:"entities,omitempty"`
	Context        string   `json:"context"`
	Contradictions int      `json:"contradictions"`
	Preferences    int      `json:"preferences"`
}

// IngestorConfig tunes the background ingestion pool.
type IngestorConfig struct {
	// QueueSize is the Enqueue buffer. Default: 256.
	QueueSize int

	// Workers is the number of background workers. Default: 2.
	Workers int

	// Resolution is the policy applied when a new statement contradicts a
	// stored fact. Default: new_wins.
	Resolution string

	// JobTimeout bounds one background ingest. Default: 10 seconds.
	JobTimeout time.Duration
}

func (c *IngestorConfig) normalize() {
	if c.QueueSize < 1 {
		c.QueueSize = 256
	}
	if c.Workers < 1 {
		c.Workers = 2
	}
	if c.Resolution == "" {
		c.Resolution = types.ResolutionNewWins
	}
	if c.JobTimeout == 0 {
		c.JobTimeout = 10 * time.Second
	}
}

// Ingestor extracts facts, preferences, and entities from utterances and
// embeds them into the semantic index. Enqueue hands work to a bounded
// worker pool; Ingest runs the same pipeline synchronously.
type Ingestor struct {
	store    storage.RelationalStore
	index    storage.SemanticIndex
	embedder embed.Provider
	detector *Detector
	sessions *classifier.Sessions
	logger   *zap.Logger
	config   IngestorConfig

	queue chan IngestRequest
	wg    sync.WaitGroup

	// stateMu guards closed. Enqueue sends under the read lock and Shutdown
	// closes the queue under the write lock, so a send can never race the
	// close.
	stateMu sync.RWMutex
	closed  bool

	startOnce sync.Once
	stopOnce  sync.Once

	// onComplete, when set, observes every background job. Used by tests
	// and the engine's completion hooks.
	onComplete func(IngestRequest, *IngestResult, error)

	// Writes for one user are serialised so contradiction checks see a
	// consistent fact set.
	locksMu   sync.Mutex
	userLocks map[string]*sync.Mutex
}

// NewIngestor creates an ingestor. Start must be called before Enqueue.
func NewIngestor(
	store storage.RelationalStore,
	index storage.SemanticIndex,
	embedder embed.Provider,
	detector *Detector,
	sessions *classifier.Sessions,
	config IngestorConfig,
	logger *zap.Logger,
) *Ingestor {
	config.normalize()
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Ingestor{
		store:     store,
		index:     index,
		embedder:  embedder,
		detector:  detector,
		sessions:  sessions,
		logger:    logger,
		config:    config,
		queue:     make(chan IngestRequest, config.QueueSize),
		userLocks: make(map[string]*sync.Mutex),
	}
}

// SetOnComplete installs a callback invoked after every background job.
// Must be called before Start.
func (n *Ingestor) SetOnComplete(fn func(IngestRequest, *IngestResult, error)) {
	n.onComplete = fn
}

// Start launches the worker pool.
func (n *Ingestor) Start() {
	n.startOnce.Do(func() {
		for i := 0; i < n.config.Workers; i++ {
			n.wg.Add(1)
			go n.worker()
		}
	})
}

// Enqueue submits an utterance for background ingestion. It never blocks:
// when the queue is full, or the ingestor has shut down, the request is
// dropped and false is returned.
func (n *Ingestor) Enqueue(req IngestRequest) bool {
	n.stateMu.RLock()
	defer n.stateMu.RUnlock()

	if n.closed {
		n.logger.Warn("ingestor shut down, dropping request",
			zap.String("user_id", req.UserID),
		)
		return false
	}

	select {
	case n.queue <- req:
		return true
	default:
		n.logger.Warn("ingest queue full, dropping request",
			zap.String("user_id", req.UserID),
		)
		return false
	}
}

// Shutdown stops accepting work and drains the queue. It returns the
// context's error if draining outlives the deadline.
func (n *Ingestor) Shutdown(ctx context.Context) error {
	n.stopOnce.Do(func() {
		n.stateMu.Lock()
		n.closed = true
		close(n.queue)
		n.stateMu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *Ingestor) worker() {
	defer n.wg.Done()

	for req := range n.queue {
		ctx, cancel := context.WithTimeout(context.Background(), n.config.JobTimeout)
		result, err := n.Ingest(ctx, req)
		cancel()

		if err != nil {
			n.logger.Error("background ingest failed",
				zap.String("user_id", req.UserID),
				zap.Error(err),
			)
		}
		if n.onComplete != nil {
			n.onComplete(req, result, err)
		}
	}
}

// Ingest runs the full pipeline for one utterance: context classification,
// fact extraction, contradiction resolution, preference and entity upserts,
// and semantic indexing. A failing embedding step degrades the result
// rather than failing the ingest.
func (n *Ingestor) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if req.UserID == "" {
		return nil, types.NewValidationError("user_id", "must not be empty")
	}
	if req.Text == "" {
		return nil, types.NewValidationError("text", "must not be empty")
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = req.UserID
	}

	session := n.sessions.Get(req.UserID + "/" + sessionID)
	contextName, _, _ := session.Observe(req.Text)
	if req.Context != "" {
		contextName = req.Context
	}

	unlock := n.lockUser(req.UserID)
	defer unlock()

	result := &IngestResult{Context: contextName}

	existing, err := n.store.ListFacts(ctx, req.UserID, storage.FactFilter{})
	if err != nil {
		return nil, fmt.Errorf("engine: ingest: list facts: %w", err)
	}

	candidates := ExtractCandidates(req.Text)
	for _, candidate := range candidates {
		contradictions := FindContradictions(candidate.Content, existing)

		fact := &types.Fact{
			ID:         "fact_" + uuid.NewString(),
			UserID:     req.UserID,
			Content:    candidate.Content,
			Category:   candidate.Category,
			Confidence: candidate.Confidence,
			Source:     types.SourceImplicit,
			ContextRef: contextName,
		}
		if err := n.store.CreateFact(ctx, fact); err != nil {
			return result, fmt.Errorf("engine: ingest: create fact: %w", err)
		}
		result.FactIDs = append(result.FactIDs, fact.ID)

		for _, contradiction := range contradictions {
			if err := n.detector.Resolve(ctx, contradiction.Existing.ID, fact.ID, n.config.Resolution); err != nil {
				return result, fmt.Errorf("engine: ingest: %w", err)
			}
			result.Contradictions++
		}

		if candidate.Category == types.CategoryPreference && candidate.PreferenceKey != "" {
			_, err := n.store.UpsertPreference(ctx, &types.Preference{
				UserID:   req.UserID,
				Key:      candidate.PreferenceKey,
				Value:    candidate.PreferenceValue,
				Strength: candidate.Confidence,
			})
			if err != nil {
				return result, fmt.Errorf("engine: ingest: upsert preference: %w", err)
			}
			result.Preferences++
		}
	}

	if err := n.linkEntities(ctx, req.UserID, req.Text, contextName, result); err != nil {
		return result, err
	}

	n.indexCandidates(ctx, req.UserID, candidates, contextName, result)

	n.logger.Debug("utterance ingested",
		zap.String("user_id", req.UserID),
		zap.String("context", contextName),
		zap.Int("facts", len(result.FactIDs)),
		zap.Int("contradictions", result.Contradictions),
	)

	return result, nil
}

// linkEntities upserts the utterance's entities and connects them to the
// new facts. Facts also get an OCCURRED_IN edge to the session context when
// one is active.
func (n *Ingestor) linkEntities(ctx context.Context, userID, text, contextName string, result *IngestResult) error {
	names := ExtractEntityNames(text)
	entityIDs := make([]string, 0, len(names))
	for _, name := range names {
		entity, err := n.store.UpsertEntity(ctx, userID, name, "unknown")
		if err != nil {
			return fmt.Errorf("engine: ingest: upsert entity %q: %w", name, err)
		}
		entityIDs = append(entityIDs, entity.ID)
		result.Entities = append(result.Entities, name)
	}

	var contextEntityID string
	if contextName != types.ContextGeneral {
		entity, err := n.store.UpsertEntity(ctx, userID, contextName, "context")
		if err != nil {
			return fmt.Errorf("engine: ingest: upsert context entity: %w", err)
		}
		contextEntityID = entity.ID
	}

	for _, factID := range result.FactIDs {
		for _, entityID := range entityIDs {
			edge := &types.Relationship{
				ID:     "rel_" + uuid.NewString(),
				FromID: factID,
				ToID:   entityID,
				Type:   types.RelRelatesTo,
			}
			if err := n.store.CreateEdge(ctx, edge); err != nil {
				return fmt.Errorf("engine: ingest: link entity: %w", err)
			}
		}
		if contextEntityID != "" {
			edge := &types.Relationship{
				ID:     "rel_" + uuid.NewString(),
				FromID: factID,
				ToID:   contextEntityID,
				Type:   types.RelOccurredIn,
			}
			if err := n.store.CreateEdge(ctx, edge); err != nil {
				return fmt.Errorf("engine: ingest: link context: %w", err)
			}
		}
	}

	return nil
}

// indexCandidates embeds each extracted candidate in one batch and stores
// the vectors in the semantic index. Failures are logged and absorbed; the
// relational side of the ingest already succeeded.
func (n *Ingestor) indexCandidates(ctx context.Context, userID string, candidates []Candidate, contextName string, result *IngestResult) {
	if len(candidates) == 0 {
		return
	}

	texts := make([]string, len(candidates))
	for i, candidate := range candidates {
		texts[i] = candidate.Content
	}

	embeddings, err := n.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		n.logger.Warn("embedding failed, memories not indexed",
			zap.String("user_id", userID),
			zap.Int("batch_size", len(texts)),
			zap.Error(err),
		)
		return
	}

	now := time.Now().UTC()
	for i, candidate := range candidates {
		vec := &types.MemoryVector{
			ID:        "mem_" + uuid.NewString(),
			Text:      candidate.Content,
			Embedding: embeddings[i],
			Metadata: types.VectorMetadata{
				UserID:    userID,
				Category:  candidate.Category,
				Context:   contextName,
				Timestamp: now,
			},
		}
		if err := n.index.Upsert(ctx, vec); err != nil {
			n.logger.Warn("semantic index upsert failed",
				zap.String("user_id", userID),
				zap.Error(err),
			)
			continue
		}
		result.MemoryIDs = append(result.MemoryIDs, vec.ID)
	}
}

func (n *Ingestor) lockUser(userID string) func() {
	n.locksMu.Lock()
	lock, ok := n.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		n.userLocks[userID] = lock
	}
	n.locksMu.Unlock()

	lock.Lock()
	return lock.Unlock
}
