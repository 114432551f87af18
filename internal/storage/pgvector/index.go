// Package pgvector implements storage.SemanticIndex on PostgreSQL with the
// pgvector extension. Similarity uses cosine distance and is accelerated by
// an ivfflat index once the table is non-empty.
package pgvector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	pgvec "github.com/pgvector/pgvector-go"

	"github.com/quiltmem/quilt/internal/storage"
	"github.com/quiltmem/quilt/pkg/types"
)

// Ensure *Index implements storage.SemanticIndex at compile time.
var _ storage.SemanticIndex = (*Index)(nil)

// Index is a pgvector-backed semantic index.
type Index struct {
	db        *sql.DB
	dimension int
}

// New connects to PostgreSQL, ensures the vector extension and schema exist,
// and returns the index. The dimension must match the embedding provider.
func New(dsn string, dimension int) (*Index, error) {
	if dimension < 1 {
		return nil, fmt.Errorf("pgvector: dimension must be positive, got %d", dimension)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvector: failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pgvector: %w: %v", storage.ErrUnavailable, err)
	}

	if _, err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pgvector: failed to create extension: %w", err)
	}

	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS memory_vectors (
			id        TEXT PRIMARY KEY,
			user_id   TEXT NOT NULL DEFAULT '',
			text      TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			category  TEXT NOT NULL DEFAULT '',
			context   TEXT NOT NULL DEFAULT '',
			ts        TIMESTAMPTZ NOT NULL
		)
	`, dimension)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("pgvector: failed to create schema: %w", err)
	}

	// ivfflat requires data to build useful lists; creating it up front is
	// still safe because Postgres falls back to a sequential scan when empty.
	const indexSQL = `
		CREATE INDEX IF NOT EXISTS idx_memory_vectors_cosine
		ON memory_vectors USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)
	`
	if _, err := db.Exec(indexSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("pgvector: failed to create ivfflat index: %w", err)
	}

	return &Index{db: db, dimension: dimension}, nil
}

// Upsert stores or replaces an embedded memory.
func (x *Index) Upsert(ctx context.Context, vec *types.MemoryVector) error {
	if vec == nil {
		return storage.ErrInvalidInput
	}
	if vec.ID == "" {
		return fmt.Errorf("%w: vector ID is required", storage.ErrInvalidInput)
	}
	if len(vec.Embedding) != x.dimension {
		return fmt.Errorf("%w: embedding has %d dimensions, index expects %d",
			storage.ErrInvalidInput, len(vec.Embedding), x.dimension)
	}

	ts := vec.Metadata.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	const query = `
		INSERT INTO memory_vectors (id, user_id, text, embedding, category, context, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			user_id = excluded.user_id,
			text = excluded.text,
			embedding = excluded.embedding,
			category = excluded.category,
			context = excluded.context,
			ts = excluded.ts
	`

	_, err := x.db.ExecContext(ctx, query,
		vec.ID,
		vec.Metadata.UserID,
		vec.Text,
		pgvec.NewVector(vec.Embedding),
		vec.Metadata.Category,
		vec.Metadata.Context,
		ts,
	)
	if err != nil {
		return fmt.Errorf("pgvector: failed to upsert vector: %w", err)
	}

	return nil
}

// Query returns up to K nearest matches ordered by ascending cosine distance.
func (x *Index) Query(ctx context.Context, q storage.VectorQuery) ([]storage.VectorMatch, error) {
	if len(q.Embedding) != x.dimension {
		return nil, fmt.Errorf("%w: query embedding has %d dimensions, index expects %d",
			storage.ErrInvalidInput, len(q.Embedding), x.dimension)
	}
	if q.K < 1 {
		q.K = 10
	}

	const querySQL = `
		SELECT id, user_id, text, category, context, ts, embedding <=> $1 AS distance
		FROM memory_vectors
		WHERE ($2 = '' OR user_id = $2) AND ($3 = '' OR context = $3)
		ORDER BY embedding <=> $1
		LIMIT $4
	`

	rows, err := x.db.QueryContext(ctx, querySQL, pgvec.NewVector(q.Embedding), q.UserID, q.Context, q.K)
	if err != nil {
		return nil, fmt.Errorf("pgvector: query failed: %w", err)
	}
	defer rows.Close()

	var matches []storage.VectorMatch
	for rows.Next() {
		var m storage.VectorMatch
		if err := rows.Scan(&m.ID, &m.Metadata.UserID, &m.Text, &m.Metadata.Category, &m.Metadata.Context, &m.Metadata.Timestamp, &m.Distance); err != nil {
			return nil, fmt.Errorf("pgvector: failed to scan match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: error iterating matches: %w", err)
	}

	return matches, nil
}

// Delete removes the given vector IDs. Missing IDs are ignored.
func (x *Index) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := x.db.ExecContext(ctx, "DELETE FROM memory_vectors WHERE id = ANY($1)", pq.Array(ids))
	if err != nil {
		return fmt.Errorf("pgvector: failed to delete vectors: %w", err)
	}

	return nil
}

// GetByID retrieves a stored vector.
func (x *Index) GetByID(ctx context.Context, id string) (*types.MemoryVector, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: vector ID is required", storage.ErrInvalidInput)
	}

	const query = `
		SELECT id, user_id, text, embedding, category, context, ts
		FROM memory_vectors
		WHERE id = $1
	`

	var vec types.MemoryVector
	var embedding pgvec.Vector
	err := x.db.QueryRowContext(ctx, query, id).Scan(
		&vec.ID,
		&vec.Metadata.UserID,
		&vec.Text,
		&embedding,
		&vec.Metadata.Category,
		&vec.Metadata.Context,
		&vec.Metadata.Timestamp,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pgvector: failed to get vector: %w", err)
	}

	vec.Embedding = embedding.Slice()
	return &vec, nil
}

// Close releases the database connection pool.
func (x *Index) Close() error {
	return x.db.Close()
}
