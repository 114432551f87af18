package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quiltmem/quilt/internal/storage"
	"github.com/quiltmem/quilt/pkg/types"
)

// UpsertPreference creates or overwrites the preference for its (user, key)
// pair. On conflict the value, strength, and confirmed flag are replaced but
// the original row ID is kept.
func (s *Store) UpsertPreference(ctx context.Context, pref *types.Preference) (*types.Preference, error) {
	if pref == nil {
		return nil, storage.ErrInvalidInput
	}
	if err := pref.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	now := time.Now().UTC()
	if pref.ID == "" {
		pref.ID = "pref_" + uuid.NewString()
	}

	query := `
		INSERT INTO preferences (id, user_id, key, value, strength, confirmed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, key) DO UPDATE SET
			value = excluded.value,
			strength = excluded.strength,
			confirmed = excluded.confirmed,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		pref.ID, pref.UserID, pref.Key, pref.Value,
		pref.Strength, boolToInt(pref.Confirmed), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to upsert preference: %w", err)
	}

	return s.getPreference(ctx, pref.UserID, pref.Key)
}

// Preferences returns a key-to-value map of preferences at or above the
// given strength threshold.
func (s *Store) Preferences(ctx context.Context, userID string, minStrength float64) (map[string]string, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value FROM preferences WHERE user_id = ? AND strength >= ?",
		userID, minStrength,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query preferences: %w", err)
	}
	defer rows.Close()

	prefs := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan preference: %w", err)
		}
		prefs[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: error iterating preferences: %w", err)
	}

	return prefs, nil
}

// ListPreferences retrieves all of a user's preferences in key order.
func (s *Store) ListPreferences(ctx context.Context, userID string) ([]types.Preference, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}

	query := `
		SELECT id, user_id, key, value, strength, confirmed
		FROM preferences
		WHERE user_id = ?
		ORDER BY key
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list preferences: %w", err)
	}
	defer rows.Close()

	var prefs []types.Preference
	for rows.Next() {
		var p types.Preference
		var confirmed int
		if err := rows.Scan(&p.ID, &p.UserID, &p.Key, &p.Value, &p.Strength, &confirmed); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan preference: %w", err)
		}
		p.Confirmed = confirmed != 0
		prefs = append(prefs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: error iterating preferences: %w", err)
	}

	return prefs, nil
}

func (s *Store) getPreference(ctx context.Context, userID, key string) (*types.Preference, error) {
	var p types.Preference
	var confirmed int

	err := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, key, value, strength, confirmed FROM preferences WHERE user_id = ? AND key = ?",
		userID, key,
	).Scan(&p.ID, &p.UserID, &p.Key, &p.Value, &p.Strength, &confirmed)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get preference: %w", err)
	}

	p.Confirmed = confirmed != 0
	return &p, nil
}
