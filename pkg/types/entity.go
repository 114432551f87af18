package types

import "time"

// Entity represents a named thing, person, or concept referenced by facts.
// Entity names are unique per user: the first mention creates the entity and
// every subsequent mention increments MentionCount through an upsert keyed
// on (user, name).
type Entity struct {
	ID     string `json:"id"`      // Unique identifier (format: ent_<uuid>)
	UserID string `json:"user_id"` // Owning user
	Name   string `json:"name"`    // Display name, unique per user
	Type   string `json:"type"`    // Free-form type label (person, place, concept, ...)

	// Statistics
	MentionCount int       `json:"mention_count"` // Number of times the entity was mentioned
	FirstSeen    time.Time `json:"first_seen"`    // First mention timestamp
	LastSeen     time.Time `json:"last_seen"`     // Most recent mention timestamp
}
