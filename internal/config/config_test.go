package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "./quilt.db", cfg.Storage.DataPath)
	assert.Equal(t, "memory", cfg.Storage.VectorBackend)
	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.Equal(t, 256, cfg.Embedding.Dimension)
	assert.Equal(t, 256, cfg.Ingest.QueueSize)
	assert.Equal(t, 2, cfg.Ingest.Workers)
	assert.Equal(t, "new_wins", cfg.Ingest.Resolution)
	assert.Equal(t, 3*time.Second, cfg.Retrieval.SourceTimeout)
	assert.InDelta(t, 0.5, cfg.Retrieval.PreferenceStrength, 1e-9)
	assert.Equal(t, 10, cfg.Backup.Keep)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("QUILT_DATA_PATH", "/var/lib/quilt/quilt.db")
	t.Setenv("QUILT_VECTOR_BACKEND", "pgvector")
	t.Setenv("QUILT_POSTGRES_DSN", "postgres://localhost/quilt")
	t.Setenv("QUILT_EMBED_PROVIDER", "http")
	t.Setenv("QUILT_EMBED_DIMENSION", "768")
	t.Setenv("QUILT_INGEST_WORKERS", "4")
	t.Setenv("QUILT_INGEST_JOB_TIMEOUT", "30s")
	t.Setenv("QUILT_RETRIEVAL_PREF_STRENGTH", "0.7")

	cfg := Load()

	assert.Equal(t, "/var/lib/quilt/quilt.db", cfg.Storage.DataPath)
	assert.Equal(t, "pgvector", cfg.Storage.VectorBackend)
	assert.Equal(t, "postgres://localhost/quilt", cfg.Storage.PostgresDSN)
	assert.Equal(t, "http", cfg.Embedding.Provider)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
	assert.Equal(t, 4, cfg.Ingest.Workers)
	assert.Equal(t, 30*time.Second, cfg.Ingest.JobTimeout)
	assert.InDelta(t, 0.7, cfg.Retrieval.PreferenceStrength, 1e-9)
}

func TestLoadIgnoresUnparseableValues(t *testing.T) {
	t.Setenv("QUILT_EMBED_DIMENSION", "not-a-number")
	t.Setenv("QUILT_INGEST_JOB_TIMEOUT", "soon")
	t.Setenv("QUILT_EMBED_RPS", "fast")

	cfg := Load()

	assert.Equal(t, 256, cfg.Embedding.Dimension)
	assert.Equal(t, 10*time.Second, cfg.Ingest.JobTimeout)
	assert.InDelta(t, 10.0, cfg.Embedding.RequestsPerSecond, 1e-9)
}
