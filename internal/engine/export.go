package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/quiltmem/quilt/internal/rules"
	"github.com/quiltmem/quilt/internal/storage"
	"github.com/quiltmem/quilt/pkg/types"
)

// Snapshot is a full portable dump of one user's memory. Vector embeddings
// are not exported; re-importing re-embeds each fact's content.
type Snapshot struct {
	Facts       []types.Fact         `json:"facts"`
	Preferences []types.Preference   `json:"preferences"`
	Rules       []rules.ExportedRule `json:"rules"`
}

// Export dumps everything stored for the user, deprecated facts included,
// so the snapshot preserves contradiction history.
func (m *Memory) Export(ctx context.Context, userID string) (*Snapshot, error) {
	facts, err := m.store.ListFacts(ctx, userID, storage.FactFilter{IncludeDeprecated: true})
	if err != nil {
		return nil, fmt.Errorf("engine: export facts: %w", err)
	}
	prefs, err := m.store.ListPreferences(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("engine: export preferences: %w", err)
	}
	exportedRules, err := m.rules.Export(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("engine: export rules: %w", err)
	}

	return &Snapshot{
		Facts:       facts,
		Preferences: prefs,
		Rules:       exportedRules,
	}, nil
}

// ImportReport counts what an import created.
type ImportReport struct {
	Facts       int `json:"facts"`
	Preferences int `json:"preferences"`
	Rules       int `json:"rules"`
	Indexed     int `json:"indexed"`
}

// Import loads a snapshot into the given user's memory. Facts get fresh IDs
// and are re-embedded; embedding failures leave the fact stored but
// unindexed, matching live ingestion.
func (m *Memory) Import(ctx context.Context, userID string, snapshot *Snapshot) (*ImportReport, error) {
	if snapshot == nil {
		return nil, types.NewValidationError("snapshot", "must not be nil")
	}

	report := &ImportReport{}

	for i := range snapshot.Facts {
		fact := snapshot.Facts[i]
		fact.ID = "fact_" + uuid.NewString()
		fact.UserID = userID
		if err := m.store.CreateFact(ctx, &fact); err != nil {
			return report, fmt.Errorf("engine: import fact %d: %w", i, err)
		}
		report.Facts++

		if fact.Deprecated {
			continue
		}
		if embedding, err := m.embedder.Embed(ctx, fact.Content); err == nil {
			vec := &types.MemoryVector{
				ID:        "mem_" + uuid.NewString(),
				Text:      fact.Content,
				Embedding: embedding,
				Metadata: types.VectorMetadata{
					UserID:    userID,
					Category:  fact.Category,
					Context:   fact.ContextRef,
					Timestamp: fact.CreatedAt,
				},
			}
			if err := m.index.Upsert(ctx, vec); err == nil {
				report.Indexed++
			}
		}
	}

	for i := range snapshot.Preferences {
		pref := snapshot.Preferences[i]
		pref.ID = ""
		pref.UserID = userID
		if _, err := m.store.UpsertPreference(ctx, &pref); err != nil {
			return report, fmt.Errorf("engine: import preference %d: %w", i, err)
		}
		report.Preferences++
	}

	created, err := m.rules.Import(ctx, userID, snapshot.Rules)
	report.Rules = created
	if err != nil {
		return report, fmt.Errorf("engine: import rules: %w", err)
	}

	return report, nil
}
