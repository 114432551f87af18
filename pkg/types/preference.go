package types

// Preference represents a keyed user preference. Keys are unique per user
// and upserted: a repeated observation overwrites the stored value and
// strength rather than creating a duplicate.
type Preference struct {
	ID     string `json:"id"`      // Unique identifier (format: pref_<uuid>)
	UserID string `json:"user_id"` // Owning user
	Key    string `json:"key"`     // Preference key, unique per user
	Value  string `json:"value"`   // Preference value

	// Strength expresses how firmly the preference is held (0.0-1.0).
	Strength float64 `json:"strength"`

	// Confirmed is true once the user has explicitly confirmed the preference.
	Confirmed bool `json:"confirmed"`
}

// Validate checks required fields and the strength range.
func (p *Preference) Validate() error {
	if p.UserID == "" {
		return NewValidationError("user_id", "must not be empty")
	}
	if p.Key == "" {
		return NewValidationError("key", "must not be empty")
	}
	if p.Strength < 0.0 || p.Strength > 1.0 {
		return NewValidationError("strength", "must be within [0, 1]")
	}
	return nil
}
