package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quiltmem/quilt/internal/storage"
	"github.com/quiltmem/quilt/pkg/types"
)

// UpsertEntity creates the entity on first mention and increments its
// mention count on every subsequent mention. The stored ID never changes
// once assigned, so repeated mentions are idempotent on identity.
func (s *Store) UpsertEntity(ctx context.Context, userID, name, entityType string) (*types.Entity, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: entity name is required", storage.ErrInvalidInput)
	}
	if entityType == "" {
		entityType = "unknown"
	}

	now := time.Now().UTC()
	id := "ent_" + uuid.NewString()

	query := `
		INSERT INTO entities (id, user_id, name, type, mention_count, first_seen, last_seen)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(user_id, name) DO UPDATE SET
			mention_count = mention_count + 1,
			last_seen = excluded.last_seen
	`

	if _, err := s.db.ExecContext(ctx, query, id, userID, name, entityType, now, now); err != nil {
		return nil, fmt.Errorf("sqlite: failed to upsert entity: %w", err)
	}

	return s.GetEntityByName(ctx, userID, name)
}

// GetEntityByName retrieves an entity by its per-user unique name.
func (s *Store) GetEntityByName(ctx context.Context, userID, name string) (*types.Entity, error) {
	if userID == "" || name == "" {
		return nil, fmt.Errorf("%w: user ID and entity name are required", storage.ErrInvalidInput)
	}

	query := `
		SELECT id, user_id, name, type, mention_count, first_seen, last_seen
		FROM entities
		WHERE user_id = ? AND name = ?
	`

	var e types.Entity
	err := s.db.QueryRowContext(ctx, query, userID, name).Scan(
		&e.ID, &e.UserID, &e.Name, &e.Type, &e.MentionCount, &e.FirstSeen, &e.LastSeen,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get entity: %w", err)
	}

	return &e, nil
}

// ListEntities retrieves all of a user's entities, most mentioned first.
func (s *Store) ListEntities(ctx context.Context, userID string) ([]types.Entity, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}

	query := `
		SELECT id, user_id, name, type, mention_count, first_seen, last_seen
		FROM entities
		WHERE user_id = ?
		ORDER BY mention_count DESC, name
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list entities: %w", err)
	}
	defer rows.Close()

	var entities []types.Entity
	for rows.Next() {
		var e types.Entity
		if err := rows.Scan(&e.ID, &e.UserID, &e.Name, &e.Type, &e.MentionCount, &e.FirstSeen, &e.LastSeen); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan entity: %w", err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: error iterating entities: %w", err)
	}

	return entities, nil
}
