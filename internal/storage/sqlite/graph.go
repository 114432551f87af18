package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/quiltmem/quilt/internal/storage"
	"github.com/quiltmem/quilt/pkg/types"
)

// CreateEdge persists a directed, typed edge. Re-creating an identical
// (from, to, type) edge is a no-op.
func (s *Store) CreateEdge(ctx context.Context, rel *types.Relationship) error {
	if rel == nil {
		return storage.ErrInvalidInput
	}
	if rel.ID == "" {
		return fmt.Errorf("%w: edge ID is required", storage.ErrInvalidInput)
	}
	if err := rel.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO edges (id, from_id, to_id, type, created_at, resolved, resolution, winning_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(from_id, to_id, type) DO UPDATE SET
			resolved = excluded.resolved,
			resolution = excluded.resolution,
			winning_id = excluded.winning_id
	`

	_, err := s.db.ExecContext(ctx, query,
		rel.ID,
		rel.FromID,
		rel.ToID,
		rel.Type,
		rel.CreatedAt,
		boolToInt(rel.Resolved),
		nullableString(rel.Resolution),
		nullableString(rel.WinningID),
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to create edge: %w", err)
	}

	return nil
}

// EdgesFrom returns the outgoing edges of a node, optionally filtered by type.
func (s *Store) EdgesFrom(ctx context.Context, fromID, relType string) ([]types.Relationship, error) {
	if fromID == "" {
		return nil, fmt.Errorf("%w: from ID is required", storage.ErrInvalidInput)
	}

	query := `
		SELECT id, from_id, to_id, type, created_at, resolved, resolution, winning_id
		FROM edges
		WHERE from_id = ?
	`
	args := []interface{}{fromID}

	if relType != "" {
		query += " AND type = ?"
		args = append(args, relType)
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query edges: %w", err)
	}
	defer rows.Close()

	var edges []types.Relationship
	for rows.Next() {
		rel, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan edge: %w", err)
		}
		edges = append(edges, *rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: error iterating edges: %w", err)
	}

	return edges, nil
}

// Traverse performs a bounded breadth-first walk over the edge set starting
// from the named entities.
//
// Algorithm:
//  1. Resolve entity names to stored entities. Unknown names are skipped;
//     no resolvable seed means an empty result, not an error.
//  2. BFS loop (hop = 1..maxHops): collect every edge touching the current
//     frontier in either direction, classify neighbours by ID prefix
//     (fact_ vs ent_), and advance the frontier to the unvisited neighbours.
//  3. Load the discovered facts (deprecated rows excluded) and entities.
//
// Visited sets provide cycle detection; limit caps the fact count.
func (s *Store) Traverse(ctx context.Context, userID string, entityNames []string, maxHops, limit int) (*storage.TraversalResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}
	if maxHops < 1 {
		maxHops = 2
	}
	if limit < 1 {
		limit = 20
	}

	// --- Step 1: resolve seed entities ---
	seeds := make([]types.Entity, 0, len(entityNames))
	visited := make(map[string]bool)
	for _, name := range entityNames {
		e, err := s.GetEntityByName(ctx, userID, name)
		if err == storage.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("sqlite: Traverse: resolve seed %q: %w", name, err)
		}
		if !visited[e.ID] {
			visited[e.ID] = true
			seeds = append(seeds, *e)
		}
	}
	if len(seeds) == 0 {
		return &storage.TraversalResult{}, nil
	}

	factIDs := make(map[string]bool)
	entityIDs := make([]string, 0, len(seeds))
	frontier := make([]string, 0, len(seeds))
	for _, e := range seeds {
		entityIDs = append(entityIDs, e.ID)
		frontier = append(frontier, e.ID)
	}

	// --- Step 2: BFS ---
	for hop := 1; hop <= maxHops && len(frontier) > 0; hop++ {
		neighbours, err := s.neighbourIDs(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("sqlite: Traverse hop %d: %w", hop, err)
		}

		next := make([]string, 0, len(neighbours))
		for _, id := range neighbours {
			if visited[id] {
				continue
			}
			visited[id] = true
			next = append(next, id)

			if strings.HasPrefix(id, "fact_") {
				if len(factIDs) < limit {
					factIDs[id] = true
				}
			} else {
				entityIDs = append(entityIDs, id)
			}
		}
		frontier = next
	}

	// --- Step 3: load discovered nodes ---
	result := &storage.TraversalResult{}

	ids := make([]string, 0, len(factIDs))
	for id := range factIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		fact, err := s.GetFact(ctx, id)
		if err == storage.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("sqlite: Traverse: fetch fact %s: %w", id, err)
		}
		if fact.Deprecated || fact.UserID != userID {
			continue
		}
		result.Facts = append(result.Facts, *fact)
	}

	for _, id := range entityIDs {
		e, err := s.getEntityByID(ctx, id)
		if err == storage.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("sqlite: Traverse: fetch entity %s: %w", id, err)
		}
		if e.UserID != userID {
			continue
		}
		result.Entities = append(result.Entities, *e)
	}

	return result, nil
}

// neighbourIDs returns the IDs connected to the given frontier by any edge,
// in either direction.
func (s *Store) neighbourIDs(ctx context.Context, frontier []string) ([]string, error) {
	if len(frontier) == 0 {
		return nil, nil
	}

	inClause := buildInClause(len(frontier))
	args := make([]interface{}, 0, len(frontier)*2)
	for _, id := range frontier {
		args = append(args, id)
	}
	for _, id := range frontier {
		args = append(args, id)
	}

	query := fmt.Sprintf(
		"SELECT from_id, to_id FROM edges WHERE from_id IN (%s) OR to_id IN (%s)",
		inClause, inClause,
	)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	frontierSet := make(map[string]bool, len(frontier))
	for _, id := range frontier {
		frontierSet[id] = true
	}

	seen := make(map[string]bool)
	var neighbours []string
	for rows.Next() {
		var fromID, toID string
		if err := rows.Scan(&fromID, &toID); err != nil {
			return nil, err
		}
		if frontierSet[fromID] && !seen[toID] {
			seen[toID] = true
			neighbours = append(neighbours, toID)
		}
		if frontierSet[toID] && !seen[fromID] {
			seen[fromID] = true
			neighbours = append(neighbours, fromID)
		}
	}
	return neighbours, rows.Err()
}

func (s *Store) getEntityByID(ctx context.Context, id string) (*types.Entity, error) {
	var e types.Entity
	err := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, name, type, mention_count, first_seen, last_seen FROM entities WHERE id = ?",
		id,
	).Scan(&e.ID, &e.UserID, &e.Name, &e.Type, &e.MentionCount, &e.FirstSeen, &e.LastSeen)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func scanEdge(row scanner) (*types.Relationship, error) {
	var rel types.Relationship
	var resolved int
	var resolution, winningID sql.NullString

	err := row.Scan(
		&rel.ID,
		&rel.FromID,
		&rel.ToID,
		&rel.Type,
		&rel.CreatedAt,
		&resolved,
		&resolution,
		&winningID,
	)
	if err != nil {
		return nil, err
	}

	rel.Resolved = resolved != 0
	if resolution.Valid {
		rel.Resolution = resolution.String
	}
	if winningID.Valid {
		rel.WinningID = winningID.String
	}

	return &rel, nil
}

// buildInClause returns a comma-separated string of n "?" placeholders.
func buildInClause(n int) string {
	if n == 0 {
		return ""
	}
	clause := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			clause = append(clause, ',')
		}
		clause = append(clause, '?')
	}
	return string(clause)
}
