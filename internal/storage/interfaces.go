// Package storage defines the collaborator interfaces the Quilt engine
// consumes: a relational fact/entity store and a semantic vector index.
//
// The interfaces are small and focused so that backends can be implemented
// independently and composed as needed. The engine never talks to a concrete
// database type directly.
package storage

import (
	"context"

	"github.com/quiltmem/quilt/pkg/types"
)

// FactStore provides fact persistence. Facts are never physically deleted;
// DeprecateFact is the only destructive mutation and is monotonic.
type FactStore interface {
	// CreateFact persists a new fact. The fact must pass Validate.
	CreateFact(ctx context.Context, fact *types.Fact) error

	// GetFact retrieves a fact by ID. Returns ErrNotFound if absent.
	GetFact(ctx context.Context, id string) (*types.Fact, error)

	// ListFacts retrieves a user's facts, newest first, applying the filter.
	ListFacts(ctx context.Context, userID string, filter FactFilter) ([]types.Fact, error)

	// DeprecateFact flips a fact's deprecated flag to true.
	// The transition is one-way; deprecating an already-deprecated fact is a no-op.
	// Returns ErrNotFound if the fact doesn't exist.
	DeprecateFact(ctx context.Context, id string) error
}

// EntityStore provides entity upserts keyed on (user, name).
type EntityStore interface {
	// UpsertEntity creates the entity on first mention and increments
	// mention_count (updating last_seen) on every subsequent mention.
	// The returned entity reflects the stored row, keeping the original ID.
	UpsertEntity(ctx context.Context, userID, name, entityType string) (*types.Entity, error)

	// GetEntityByName retrieves an entity by its per-user unique name.
	// Returns ErrNotFound if absent.
	GetEntityByName(ctx context.Context, userID, name string) (*types.Entity, error)

	// ListEntities retrieves all of a user's entities.
	ListEntities(ctx context.Context, userID string) ([]types.Entity, error)
}

// PreferenceStore provides preference upserts keyed on (user, key).
type PreferenceStore interface {
	// UpsertPreference creates or overwrites the preference for its key.
	// The returned preference reflects the stored row.
	UpsertPreference(ctx context.Context, pref *types.Preference) (*types.Preference, error)

	// Preferences returns a key-to-value map of preferences at or above the
	// given strength threshold.
	Preferences(ctx context.Context, userID string, minStrength float64) (map[string]string, error)

	// ListPreferences retrieves all of a user's preferences, for export.
	ListPreferences(ctx context.Context, userID string) ([]types.Preference, error)
}

// RuleStore provides persistence for user-defined behavioral rules.
// Rules are soft-deleted by flipping active=false, never removed.
type RuleStore interface {
	// CreateRule persists a new rule. The rule must pass Validate.
	CreateRule(ctx context.Context, rule *types.UserRule) error

	// GetRule retrieves a rule by ID. Returns ErrNotFound if absent.
	GetRule(ctx context.Context, ruleID string) (*types.UserRule, error)

	// ListRules retrieves a user's rules in creation order.
	// When includeInactive is false, soft-deleted rules are excluded.
	ListRules(ctx context.Context, userID string, includeInactive bool) ([]types.UserRule, error)

	// UpdateRule overwrites the mutable fields of an existing rule.
	// Returns ErrNotFound if the rule doesn't exist.
	UpdateRule(ctx context.Context, rule *types.UserRule) error
}

// GraphStore provides typed-edge creation and bounded relational traversal.
type GraphStore interface {
	// CreateEdge persists a directed, typed edge. The edge type must be in
	// the closed ValidRelationshipTypes set.
	CreateEdge(ctx context.Context, rel *types.Relationship) error

	// EdgesFrom returns the outgoing edges of a node, optionally filtered
	// by type (empty string means all types).
	EdgesFrom(ctx context.Context, fromID, relType string) ([]types.Relationship, error)

	// Traverse performs a bounded-depth breadth-first traversal starting
	// from the named entities and returns the facts and entities reachable
	// within maxHops. Deprecated facts are excluded. Unknown entity names
	// are skipped, not errors; an empty result is not an error.
	Traverse(ctx context.Context, userID string, entityNames []string, maxHops, limit int) (*TraversalResult, error)
}

// RelationalStore composes the relational sub-interfaces implemented by a
// single backend (e.g. the SQLite store).
type RelationalStore interface {
	FactStore
	EntityStore
	PreferenceStore
	RuleStore
	GraphStore

	// Stats returns per-user row counts across the store.
	Stats(ctx context.Context, userID string) (*UserStats, error)

	// Close releases any resources held by the store.
	Close() error
}

// SemanticIndex is the narrow interface over the external vector index.
// The ANN algorithm and persistence format belong to the backend; the engine
// only upserts, queries, and deletes.
type SemanticIndex interface {
	// Upsert stores or replaces an embedded memory.
	Upsert(ctx context.Context, vec *types.MemoryVector) error

	// Query returns up to K nearest matches ordered by ascending distance.
	Query(ctx context.Context, q VectorQuery) ([]VectorMatch, error)

	// Delete removes the given vector IDs. Missing IDs are ignored.
	Delete(ctx context.Context, ids []string) error

	// GetByID retrieves a stored vector. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id string) (*types.MemoryVector, error)
}
