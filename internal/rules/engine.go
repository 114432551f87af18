// Package rules manages user-authored behavioral rules and checks proposed
// actions against them before memory retrieval proceeds.
package rules

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quiltmem/quilt/internal/storage"
	"github.com/quiltmem/quilt/pkg/types"
)

// directiveKeywordWindow is how many tokens after a directive are scanned
// for conflict keywords.
const directiveKeywordWindow = 5

// stopWords are skipped when collecting keywords after a directive.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "in": true,
	"on": true, "at": true, "to": true, "for": true,
}

// Conflict reports a proposed action colliding with an active rule.
type Conflict struct {
	Rule      types.UserRule `json:"rule"`
	Directive string         `json:"directive"`
	Keyword   string         `json:"keyword"`
	Reason    string         `json:"reason"`
}

// Engine provides rule CRUD and conflict checking on top of a RuleStore.
type Engine struct {
	store  storage.RuleStore
	logger *zap.Logger
}

// NewEngine creates a rules engine.
func NewEngine(store storage.RuleStore, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, logger: logger}
}

// CreateRule persists a new active rule. Priority defaults to normal and
// context to all when left empty.
func (e *Engine) CreateRule(ctx context.Context, userID, text, priority, ruleContext string) (*types.UserRule, error) {
	if priority == "" {
		priority = types.PriorityNormal
	}
	if ruleContext == "" {
		ruleContext = types.ContextAll
	}

	rule := &types.UserRule{
		RuleID:      "rule_" + uuid.NewString(),
		UserID:      userID,
		Text:        text,
		Priority:    priority,
		Context:     ruleContext,
		Active:      true,
		UserDefined: true,
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	if err := e.store.CreateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("rules: create: %w", err)
	}

	e.logger.Info("rule created",
		zap.String("rule_id", rule.RuleID),
		zap.String("user_id", userID),
		zap.String("priority", rule.Priority),
	)

	return rule, nil
}

// ActiveRules returns the user's active rules ordered by priority, highest
// first, with ties broken by most recent creation. A non-empty ruleContext
// keeps only rules scoped to that context or to all contexts; an empty one
// returns every active rule.
func (e *Engine) ActiveRules(ctx context.Context, userID, ruleContext string) ([]types.UserRule, error) {
	rules, err := e.store.ListRules(ctx, userID, false)
	if err != nil {
		return nil, fmt.Errorf("rules: list: %w", err)
	}

	if ruleContext != "" {
		scoped := rules[:0]
		for _, rule := range rules {
			if rule.Context == ruleContext || rule.Context == types.ContextAll {
				scoped = append(scoped, rule)
			}
		}
		rules = scoped
	}

	sort.SliceStable(rules, func(i, j int) bool {
		ri, rj := types.PriorityRank(rules[i].Priority), types.PriorityRank(rules[j].Priority)
		if ri != rj {
			return ri > rj
		}
		return rules[i].CreatedAt.After(rules[j].CreatedAt)
	})

	return rules, nil
}

// CheckConflicts loads the user's active rules in the given context and
// matches the proposed action against them.
func (e *Engine) CheckConflicts(ctx context.Context, userID, proposedAction, ruleContext string) ([]Conflict, error) {
	rules, err := e.ActiveRules(ctx, userID, ruleContext)
	if err != nil {
		return nil, err
	}
	return ConflictsAgainst(rules, proposedAction), nil
}

// ConflictsAgainst matches a proposed action against the given rules.
//
// For each rule, the text is scanned for "never" and "always" directives.
// The tokens following a directive (up to directiveKeywordWindow, stop-words
// excluded) become conflict keywords; any keyword appearing as a substring
// of the action marks a conflict. Matching is case-insensitive.
func ConflictsAgainst(rules []types.UserRule, proposedAction string) []Conflict {
	action := strings.ToLower(proposedAction)
	if strings.TrimSpace(action) == "" {
		return nil
	}

	var conflicts []Conflict
	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		tokens := strings.Fields(strings.ToLower(rule.Text))
		for i, token := range tokens {
			if token != "never" && token != "always" {
				continue
			}
			for _, keyword := range keywordsAfter(tokens, i) {
				if strings.Contains(action, keyword) {
					conflicts = append(conflicts, Conflict{
						Rule:      rule,
						Directive: token,
						Keyword:   keyword,
						Reason: fmt.Sprintf("action mentions %q, which rule %q restricts with %q",
							keyword, rule.Text, token),
					})
					break // one conflict per directive is enough
				}
			}
		}
	}

	return conflicts
}

// keywordsAfter collects up to directiveKeywordWindow non-stop-word tokens
// following position i.
func keywordsAfter(tokens []string, i int) []string {
	var keywords []string
	end := i + 1 + directiveKeywordWindow
	if end > len(tokens) {
		end = len(tokens)
	}
	for _, token := range tokens[i+1 : end] {
		token = strings.Trim(token, ".,!?;:\"'")
		if token == "" || stopWords[token] {
			continue
		}
		keywords = append(keywords, token)
	}
	return keywords
}

// mutableRuleFields is the allow-list for UpdateRule.
var mutableRuleFields = map[string]bool{
	"text":     true,
	"priority": true,
	"context":  true,
	"active":   true,
}

// UpdateRule applies a partial update to a rule. Only text, priority,
// context, and active may change; any other key is rejected.
func (e *Engine) UpdateRule(ctx context.Context, ruleID string, updates map[string]interface{}) (*types.UserRule, error) {
	if len(updates) == 0 {
		return nil, types.NewValidationError("updates", "must not be empty")
	}
	for key := range updates {
		if !mutableRuleFields[key] {
			return nil, types.NewValidationError(key, "is not an updatable field")
		}
	}

	rule, err := e.store.GetRule(ctx, ruleID)
	if err != nil {
		return nil, fmt.Errorf("rules: get: %w", err)
	}

	if v, ok := updates["text"]; ok {
		text, ok := v.(string)
		if !ok {
			return nil, types.NewValidationError("text", "must be a string")
		}
		rule.Text = text
	}
	if v, ok := updates["priority"]; ok {
		priority, ok := v.(string)
		if !ok {
			return nil, types.NewValidationError("priority", "must be a string")
		}
		rule.Priority = priority
	}
	if v, ok := updates["context"]; ok {
		ruleContext, ok := v.(string)
		if !ok {
			return nil, types.NewValidationError("context", "must be a string")
		}
		rule.Context = ruleContext
	}
	if v, ok := updates["active"]; ok {
		active, ok := v.(bool)
		if !ok {
			return nil, types.NewValidationError("active", "must be a boolean")
		}
		rule.Active = active
	}

	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if err := e.store.UpdateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("rules: update: %w", err)
	}

	return rule, nil
}

// DeleteRule soft-deletes a rule by flipping it inactive. The row remains
// for audit history.
func (e *Engine) DeleteRule(ctx context.Context, ruleID string) error {
	rule, err := e.store.GetRule(ctx, ruleID)
	if err != nil {
		return fmt.Errorf("rules: get: %w", err)
	}

	if !rule.Active {
		return nil
	}

	rule.Active = false
	if err := e.store.UpdateRule(ctx, rule); err != nil {
		return fmt.Errorf("rules: deactivate: %w", err)
	}

	e.logger.Info("rule deactivated", zap.String("rule_id", ruleID))
	return nil
}
