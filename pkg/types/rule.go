package types

import "time"

// UserRule represents a user-authored behavioral constraint. Rules are
// soft-deleted by flipping Active to false and are never hard-deleted, so
// the full audit history of what the user has asked for is preserved.
type UserRule struct {
	RuleID string `json:"rule_id"` // Unique identifier (format: rule_<uuid>)
	UserID string `json:"user_id"` // Owning user
	Text   string `json:"text"`    // Plain-text description of the rule

	// Priority strictly orders rule retrieval and evaluation:
	// critical > high > normal > low, ties broken by most recent CreatedAt.
	Priority string `json:"priority"`

	// Context scopes the rule ("all" applies everywhere).
	Context string `json:"context"`

	Active      bool `json:"active"`       // False once soft-deleted
	UserDefined bool `json:"user_defined"` // True for rules authored by the user

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks required fields and the priority enum.
func (r *UserRule) Validate() error {
	if r.UserID == "" {
		return NewValidationError("user_id", "must not be empty")
	}
	if r.Text == "" {
		return NewValidationError("text", "must not be empty")
	}
	if !IsValidPriority(r.Priority) {
		return NewValidationError("priority", "must be one of critical, high, normal, low")
	}
	if r.Context == "" {
		return NewValidationError("context", "must not be empty")
	}
	return nil
}
