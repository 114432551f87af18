package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/quiltmem/quilt/internal/storage"
	"github.com/quiltmem/quilt/pkg/types"
)

// CreateFact persists a new fact.
func (s *Store) CreateFact(ctx context.Context, fact *types.Fact) error {
	if fact == nil {
		return storage.ErrInvalidInput
	}
	if fact.ID == "" {
		return fmt.Errorf("%w: fact ID is required", storage.ErrInvalidInput)
	}
	if err := fact.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	now := time.Now().UTC()
	if fact.CreatedAt.IsZero() {
		fact.CreatedAt = now
	}
	if fact.UpdatedAt.IsZero() {
		fact.UpdatedAt = now
	}

	query := `
		INSERT INTO facts (
			id, user_id, content, category, confidence, source,
			deprecated, context_ref, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		fact.ID,
		fact.UserID,
		fact.Content,
		fact.Category,
		fact.Confidence,
		fact.Source,
		boolToInt(fact.Deprecated),
		nullableString(fact.ContextRef),
		fact.CreatedAt,
		fact.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to create fact: %w", err)
	}

	return nil
}

// GetFact retrieves a fact by ID.
func (s *Store) GetFact(ctx context.Context, id string) (*types.Fact, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: fact ID is required", storage.ErrInvalidInput)
	}

	query := `
		SELECT id, user_id, content, category, confidence, source,
		       deprecated, context_ref, created_at, updated_at
		FROM facts
		WHERE id = ?
	`

	fact, err := scanFact(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get fact: %w", err)
	}

	return fact, nil
}

// ListFacts retrieves a user's facts, newest first.
func (s *Store) ListFacts(ctx context.Context, userID string, filter storage.FactFilter) ([]types.Fact, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}
	filter.Normalize()

	query := `
		SELECT id, user_id, content, category, confidence, source,
		       deprecated, context_ref, created_at, updated_at
		FROM facts
		WHERE user_id = ? AND confidence >= ?
	`
	args := []interface{}{userID, filter.MinConfidence}

	if !filter.IncludeDeprecated {
		query += " AND deprecated = 0"
	}
	if filter.Category != "" {
		query += " AND category = ?"
		args = append(args, filter.Category)
	}

	query += " ORDER BY created_at DESC, id LIMIT ?"
	args = append(args, filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list facts: %w", err)
	}
	defer rows.Close()

	var facts []types.Fact
	for rows.Next() {
		fact, err := scanFact(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan fact: %w", err)
		}
		facts = append(facts, *fact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: error iterating facts: %w", err)
	}

	return facts, nil
}

// DeprecateFact flips a fact's deprecated flag to true. The transition is
// one-way; deprecating an already-deprecated fact succeeds without change.
func (s *Store) DeprecateFact(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: fact ID is required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE facts SET deprecated = 1, updated_at = ? WHERE id = ?",
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to deprecate fact: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanFact(row scanner) (*types.Fact, error) {
	var fact types.Fact
	var deprecated int
	var contextRef sql.NullString

	err := row.Scan(
		&fact.ID,
		&fact.UserID,
		&fact.Content,
		&fact.Category,
		&fact.Confidence,
		&fact.Source,
		&deprecated,
		&contextRef,
		&fact.CreatedAt,
		&fact.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	fact.Deprecated = deprecated != 0
	if contextRef.Valid {
		fact.ContextRef = contextRef.String
	}

	return &fact, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
