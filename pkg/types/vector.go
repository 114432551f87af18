package types

import "time"

// VectorMetadata carries the filterable attributes stored alongside an
// embedded memory in the semantic index.
type VectorMetadata struct {
	UserID    string    `json:"user_id"`   // Owning user
	Category  string    `json:"category"`  // Fact category the memory came from
	Context   string    `json:"context"`   // Context the turn occurred in
	Timestamp time.Time `json:"timestamp"` // When the memory was recorded
}

// MemoryVector represents an embedded utterance in the semantic index.
// Vectors are append-only except for explicit update and delete calls.
type MemoryVector struct {
	ID        string         `json:"id"`   // Unique identifier (format: mem_<uuid>)
	Text      string         `json:"text"` // Original utterance text
	Embedding []float32      `json:"embedding,omitempty"`
	Metadata  VectorMetadata `json:"metadata"`
}
