package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quiltmem/quilt/pkg/types"
)

// ExportedRule is the portable form of a rule. IDs are regenerated on
// import, so only behavioral fields travel.
type ExportedRule struct {
	Text        string    `json:"text"`
	Priority    string    `json:"priority"`
	Context     string    `json:"context"`
	Active      bool      `json:"active"`
	UserDefined bool      `json:"user_defined"`
	CreatedAt   time.Time `json:"created_at"`
}

// Export returns all of a user's rules, inactive ones included, in a form
// suitable for backup or transfer.
func (e *Engine) Export(ctx context.Context, userID string) ([]ExportedRule, error) {
	rules, err := e.store.ListRules(ctx, userID, true)
	if err != nil {
		return nil, fmt.Errorf("rules: export: %w", err)
	}

	exported := make([]ExportedRule, 0, len(rules))
	for _, r := range rules {
		exported = append(exported, ExportedRule{
			Text:        r.Text,
			Priority:    r.Priority,
			Context:     r.Context,
			Active:      r.Active,
			UserDefined: r.UserDefined,
			CreatedAt:   r.CreatedAt,
		})
	}
	return exported, nil
}

// Import creates rules for the user from an export. Each imported rule gets
// a fresh ID. Returns the number of rules created; the first invalid rule
// aborts the import.
func (e *Engine) Import(ctx context.Context, userID string, exported []ExportedRule) (int, error) {
	created := 0
	for _, x := range exported {
		rule := &types.UserRule{
			RuleID:      "rule_" + uuid.NewString(),
			UserID:      userID,
			Text:        x.Text,
			Priority:    x.Priority,
			Context:     x.Context,
			Active:      x.Active,
			UserDefined: x.UserDefined,
			CreatedAt:   x.CreatedAt,
		}
		if err := rule.Validate(); err != nil {
			return created, fmt.Errorf("rules: import entry %d: %w", created, err)
		}
		if err := e.store.CreateRule(ctx, rule); err != nil {
			return created, fmt.Errorf("rules: import entry %d: %w", created, err)
		}
		created++
	}
	return created, nil
}

// Statistics summarises a user's rule set.
type Statistics struct {
	Total      int            `json:"total"`
	Active     int            `json:"active"`
	Inactive   int            `json:"inactive"`
	ByPriority map[string]int `json:"by_priority"`
	ByContext  map[string]int `json:"by_context"`
}

// Stats computes counts over all of a user's rules.
func (e *Engine) Stats(ctx context.Context, userID string) (*Statistics, error) {
	rules, err := e.store.ListRules(ctx, userID, true)
	if err != nil {
		return nil, fmt.Errorf("rules: stats: %w", err)
	}

	stats := &Statistics{
		ByPriority: make(map[string]int),
		ByContext:  make(map[string]int),
	}
	for _, r := range rules {
		stats.Total++
		if r.Active {
			stats.Active++
		} else {
			stats.Inactive++
		}
		stats.ByPriority[r.Priority]++
		stats.ByContext[r.Context]++
	}
	return stats, nil
}
