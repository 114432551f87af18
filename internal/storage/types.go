package storage

import (
	"errors"

	"github.com/quiltmem/quilt/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	// Read paths translate this into an explicit empty/false result rather
	// than surfacing it to callers.
	ErrNotFound = errors.New("resource not found")

	// ErrUnavailable indicates that a backing store is unreachable.
	// Retrieval recovers from it locally unless every sub-source fails.
	ErrUnavailable = errors.New("store unavailable")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// FactFilter narrows ListFacts results.
type FactFilter struct {
	// Category filters by fact category. Empty string means no filter.
	Category string

	// MinConfidence filters to facts with confidence >= this value.
	MinConfidence float64

	// IncludeDeprecated includes deprecated facts in results.
	// By default deprecated facts are excluded from all queries.
	IncludeDeprecated bool

	// Limit caps the number of returned facts (default: 200).
	Limit int
}

// Normalize applies defaults to the FactFilter.
func (f *FactFilter) Normalize() {
	if f.Limit < 1 {
		f.Limit = 200
	}
	if f.MinConfidence < 0 {
		f.MinConfidence = 0
	}
}

// TraversalResult holds the nodes discovered by a bounded graph traversal.
// Facts and entities are unordered sets deduplicated by ID; insertion order
// carries no meaning.
type TraversalResult struct {
	// Facts are the non-deprecated facts reachable from the seed entities.
	Facts []types.Fact

	// Entities are the entities visited during traversal, seeds included.
	Entities []types.Entity
}

// VectorQuery describes a semantic similarity lookup.
type VectorQuery struct {
	// UserID restricts matches to one user's memories.
	UserID string

	// Embedding is the query vector.
	Embedding []float32

	// K is the maximum number of matches to return.
	K int

	// Context optionally restricts matches to a single context.
	Context string
}

// VectorMatch is a single semantic index hit. Distance is the raw index
// distance; callers convert it to similarity as 1 - distance.
type VectorMatch struct {
	ID       string
	Text     string
	Metadata types.VectorMetadata
	Distance float64
}

// UserStats summarises a user's stored footprint.
type UserStats struct {
	Facts           int `json:"facts"`
	DeprecatedFacts int `json:"deprecated_facts"`
	Entities        int `json:"entities"`
	Preferences     int `json:"preferences"`
	ActiveRules     int `json:"active_rules"`
	Edges           int `json:"edges"`
}
