package rules

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/quiltmem/quilt/pkg/types"
)

// starterRules are seeded for new users so the conflict gate has sensible
// behavior before the user authors anything. They are marked system-owned
// and can be deactivated like any other rule.
var starterRules = []struct {
	text     string
	priority string
	context  string
}{
	{"never share personal information with third parties", types.PriorityCritical, types.ContextAll},
	{"never repeat the user's credentials back", types.PriorityCritical, types.ContextAll},
	{"always confirm before deleting stored memories", types.PriorityHigh, types.ContextAll},
}

// SeedDefaults creates the starter rule set for a user. It is idempotent at
// the caller level: seed only when the user has no rules yet.
func (e *Engine) SeedDefaults(ctx context.Context, userID string) (int, error) {
	existing, err := e.store.ListRules(ctx, userID, true)
	if err != nil {
		return 0, fmt.Errorf("rules: seed: %w", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}

	created := 0
	for _, seed := range starterRules {
		rule := &types.UserRule{
			RuleID:      "rule_" + uuid.NewString(),
			UserID:      userID,
			Text:        seed.text,
			Priority:    seed.priority,
			Context:     seed.context,
			Active:      true,
			UserDefined: false,
		}
		if err := e.store.CreateRule(ctx, rule); err != nil {
			return created, fmt.Errorf("rules: seed: %w", err)
		}
		created++
	}
	return created, nil
}
