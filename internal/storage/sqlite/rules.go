package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/quiltmem/quilt/internal/storage"
	"github.com/quiltmem/quilt/pkg/types"
)

// CreateRule persists a new behavioral rule.
func (s *Store) CreateRule(ctx context.Context, rule *types.UserRule) error {
	if rule == nil {
		return storage.ErrInvalidInput
	}
	if rule.RuleID == "" {
		return fmt.Errorf("%w: rule ID is required", storage.ErrInvalidInput)
	}
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	if rule.UpdatedAt.IsZero() {
		rule.UpdatedAt = now
	}

	query := `
		INSERT INTO user_rules (
			rule_id, user_id, text, priority, context,
			active, user_defined, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		rule.RuleID,
		rule.UserID,
		rule.Text,
		rule.Priority,
		rule.Context,
		boolToInt(rule.Active),
		boolToInt(rule.UserDefined),
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to create rule: %w", err)
	}

	return nil
}

// GetRule retrieves a rule by ID.
func (s *Store) GetRule(ctx context.Context, ruleID string) (*types.UserRule, error) {
	if ruleID == "" {
		return nil, fmt.Errorf("%w: rule ID is required", storage.ErrInvalidInput)
	}

	query := `
		SELECT rule_id, user_id, text, priority, context,
		       active, user_defined, created_at, updated_at
		FROM user_rules
		WHERE rule_id = ?
	`

	rule, err := scanRule(s.db.QueryRowContext(ctx, query, ruleID))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get rule: %w", err)
	}

	return rule, nil
}

// ListRules retrieves a user's rules in creation order. Priority ordering is
// applied by the rules engine, not here.
func (s *Store) ListRules(ctx context.Context, userID string, includeInactive bool) ([]types.UserRule, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}

	query := `
		SELECT rule_id, user_id, text, priority, context,
		       active, user_defined, created_at, updated_at
		FROM user_rules
		WHERE user_id = ?
	`
	if !includeInactive {
		query += " AND active = 1"
	}
	query += " ORDER BY created_at, rule_id"

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []types.UserRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: error iterating rules: %w", err)
	}

	return rules, nil
}

// UpdateRule overwrites the mutable fields of an existing rule.
func (s *Store) UpdateRule(ctx context.Context, rule *types.UserRule) error {
	if rule == nil {
		return storage.ErrInvalidInput
	}
	if rule.RuleID == "" {
		return fmt.Errorf("%w: rule ID is required", storage.ErrInvalidInput)
	}
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	query := `
		UPDATE user_rules
		SET text = ?, priority = ?, context = ?, active = ?, updated_at = ?
		WHERE rule_id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		rule.Text,
		rule.Priority,
		rule.Context,
		boolToInt(rule.Active),
		time.Now().UTC(),
		rule.RuleID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update rule: %w", err)
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

func scanRule(row scanner) (*types.UserRule, error) {
	var rule types.UserRule
	var active, userDefined int

	err := row.Scan(
		&rule.RuleID,
		&rule.UserID,
		&rule.Text,
		&rule.Priority,
		&rule.Context,
		&active,
		&userDefined,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.Active = active != 0
	rule.UserDefined = userDefined != 0

	return &rule, nil
}
