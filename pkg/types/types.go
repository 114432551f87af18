// Package types defines the core data structures for the Quilt memory system.
// These types represent facts, entities, relationships, preferences, and
// user-defined behavioral rules, together with the closed enumerations and
// validation helpers the engine relies on.
package types

import "fmt"

// Fact category constants - classify the nature of a stored fact
const (
	CategoryPreference = "preference" // User likes/dislikes/preferences
	CategoryKnowledge  = "knowledge"  // Factual statements about the user
	CategoryContext    = "context"    // General conversational context
	CategoryOpinion    = "opinion"    // Subjective positions held by the user
)

// ValidFactCategories is a slice of all valid fact categories for validation
var ValidFactCategories = []string{
	CategoryPreference,
	CategoryKnowledge,
	CategoryContext,
	CategoryOpinion,
}

// Fact source constants - record how a fact entered the system
const (
	SourceExplicit = "explicit" // Directly stated by the user
	SourceImplicit = "implicit" // Derived from a conversation turn
	SourceInferred = "inferred" // Produced by downstream reasoning
)

// ValidFactSources is a slice of all valid fact sources for validation
var ValidFactSources = []string{
	SourceExplicit,
	SourceImplicit,
	SourceInferred,
}

// Rule priority constants - strict ordering for rule retrieval and evaluation
const (
	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityNormal   = "normal"
	PriorityLow      = "low"
)

// ValidPriorities is a slice of all valid rule priorities for validation
var ValidPriorities = []string{
	PriorityCritical,
	PriorityHigh,
	PriorityNormal,
	PriorityLow,
}

// Relationship type constants - the closed set of typed edges in the graph.
// Edge creation validates against this set; arbitrary edge types are rejected
// so relationship labels can never be interpolated into queries unchecked.
const (
	RelRelatesTo   = "RELATES_TO"   // Fact references an entity
	RelContradicts = "CONTRADICTS"  // Fact contradicts another fact
	RelOccurredIn  = "OCCURRED_IN"  // Fact occurred within a named context
)

// ValidRelationshipTypes is a slice of all valid relationship types for validation
var ValidRelationshipTypes = []string{
	RelRelatesTo,
	RelContradicts,
	RelOccurredIn,
}

// Contradiction resolution policies. There is no implicit default: callers
// must choose one, and resolution never happens automatically.
const (
	ResolutionNewWins = "new_wins" // Deprecate the old fact
	ResolutionOldWins = "old_wins" // Deprecate the new fact
	ResolutionCoexist = "coexist"  // Keep both, record the pending conflict
)

// ValidResolutions is a slice of all valid resolution policies for validation
var ValidResolutions = []string{
	ResolutionNewWins,
	ResolutionOldWins,
	ResolutionCoexist,
}

// Context sentinels used by rules and the classifier.
const (
	// ContextAll marks a rule as applicable in every context.
	ContextAll = "all"

	// ContextGeneral is the classifier's initial state when no context matched.
	ContextGeneral = "general"
)

// PriorityRank maps a priority to its numeric rank for sorting.
// critical > high > normal > low; unknown priorities rank lowest.
func PriorityRank(priority string) int {
	switch priority {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// IsValidFactCategory checks if the given category is valid
func IsValidFactCategory(category string) bool {
	return containsString(ValidFactCategories, category)
}

// IsValidFactSource checks if the given source is valid
func IsValidFactSource(source string) bool {
	return containsString(ValidFactSources, source)
}

// IsValidPriority checks if the given rule priority is valid
func IsValidPriority(priority string) bool {
	return containsString(ValidPriorities, priority)
}

// IsValidRelationshipType checks if the given relationship type is valid
func IsValidRelationshipType(relType string) bool {
	return containsString(ValidRelationshipTypes, relType)
}

// IsValidResolution checks if the given resolution policy is valid
func IsValidResolution(resolution string) bool {
	return containsString(ValidResolutions, resolution)
}

func containsString(valid []string, candidate string) bool {
	for _, v := range valid {
		if v == candidate {
			return true
		}
	}
	return false
}

// ValidationError describes a rejected input: a bad enum value, an empty
// required field, or an unknown field in an allow-listed update. It is
// returned before any I/O is attempted.
type ValidationError struct {
	// Field is the name of the offending field.
	Field string

	// Reason explains why the value was rejected.
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %q: %s", e.Field, e.Reason)
}

// NewValidationError constructs a ValidationError for the given field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
