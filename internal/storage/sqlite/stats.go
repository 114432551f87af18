package sqlite

import (
	"context"
	"fmt"

	"github.com/quiltmem/quilt/internal/storage"
)

// Stats returns per-user row counts across all tables. Edge counts include
// every edge whose source belongs to one of the user's facts or entities.
func (s *Store) Stats(ctx context.Context, userID string) (*storage.UserStats, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}

	stats := &storage.UserStats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM facts WHERE user_id = ? AND deprecated = 0", &stats.Facts},
		{"SELECT COUNT(*) FROM facts WHERE user_id = ? AND deprecated = 1", &stats.DeprecatedFacts},
		{"SELECT COUNT(*) FROM entities WHERE user_id = ?", &stats.Entities},
		{"SELECT COUNT(*) FROM preferences WHERE user_id = ?", &stats.Preferences},
		{"SELECT COUNT(*) FROM user_rules WHERE user_id = ? AND active = 1", &stats.ActiveRules},
	}

	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.sql, userID).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("sqlite: failed to collect stats: %w", err)
		}
	}

	edgeQuery := `
		SELECT COUNT(*) FROM edges
		WHERE from_id IN (SELECT id FROM facts WHERE user_id = ?)
		   OR from_id IN (SELECT id FROM entities WHERE user_id = ?)
	`
	if err := s.db.QueryRowContext(ctx, edgeQuery, userID, userID).Scan(&stats.Edges); err != nil {
		return nil, fmt.Errorf("sqlite: failed to collect edge stats: %w", err)
	}

	return stats, nil
}
