package types

import "time"

// Relationship represents a directed, typed edge between two facts or
// entities. The type is drawn from the closed ValidRelationshipTypes set.
//
// CONTRADICTS edges additionally carry resolution state: a resolved edge
// records which fact won, while an unresolved edge (coexist policy) marks a
// pending conflict that any surface displaying both facts must show.
type Relationship struct {
	ID     string `json:"id"`      // Unique identifier (format: rel_<uuid>)
	FromID string `json:"from_id"` // Source node ID
	ToID   string `json:"to_id"`   // Target node ID
	Type   string `json:"type"`    // RELATES_TO, CONTRADICTS, OCCURRED_IN

	CreatedAt time.Time `json:"created_at"`

	// Resolution state, meaningful only for CONTRADICTS edges.
	Resolved   bool   `json:"resolved,omitempty"`
	Resolution string `json:"resolution,omitempty"` // new_wins, old_wins, coexist
	WinningID  string `json:"winning_id,omitempty"` // ID of the surviving fact
}

// Validate checks that the relationship type is in the closed set and that
// both endpoints are present.
func (r *Relationship) Validate() error {
	if r.FromID == "" {
		return NewValidationError("from_id", "must not be empty")
	}
	if r.ToID == "" {
		return NewValidationError("to_id", "must not be empty")
	}
	if !IsValidRelationshipType(r.Type) {
		return NewValidationError("type", "must be one of RELATES_TO, CONTRADICTS, OCCURRED_IN")
	}
	return nil
}
