package types

import "time"

// Fact represents a provenance-tagged statement about the user.
// Facts are owned by a single user, created by the memory ingestor, and never
// physically deleted: deprecation is the only destructive mutation, which
// preserves provenance for audit and conflict history.
type Fact struct {
	// Core identification fields
	ID      string `json:"id"`      // Unique identifier (format: fact_<uuid>)
	UserID  string `json:"user_id"` // Owning user
	Content string `json:"content"` // Raw fact content

	// Classification and provenance
	Category   string  `json:"category"`   // preference, knowledge, context, opinion
	Confidence float64 `json:"confidence"` // Confidence score (0.0-1.0)
	Source     string  `json:"source"`     // explicit, implicit, inferred

	// Deprecated is monotonic: it transitions false to true at most once during
	// contradiction resolution and is never reversed.
	Deprecated bool `json:"deprecated"`

	// ContextRef optionally names the context the fact occurred in.
	ContextRef string `json:"context_ref,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the fact's enum fields and numeric ranges.
// It returns a *ValidationError describing the first rejected field.
func (f *Fact) Validate() error {
	if f.Content == "" {
		return NewValidationError("content", "must not be empty")
	}
	if f.UserID == "" {
		return NewValidationError("user_id", "must not be empty")
	}
	if !IsValidFactCategory(f.Category) {
		return NewValidationError("category", "must be one of preference, knowledge, context, opinion")
	}
	if !IsValidFactSource(f.Source) {
		return NewValidationError("source", "must be one of explicit, implicit, inferred")
	}
	if f.Confidence < 0.0 || f.Confidence > 1.0 {
		return NewValidationError("confidence", "must be within [0, 1]")
	}
	return nil
}
