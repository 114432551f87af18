// Package config loads Quilt's configuration from environment variables with
// the QUILT_ prefix, falling back to defaults that run fully offline: a local
// SQLite file, an in-process vector index, and the deterministic local
// embedder.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all settings for the quiltd process.
type Config struct {
	Storage   StorageConfig
	Embedding EmbeddingConfig
	Ingest    IngestConfig
	Retrieval RetrievalConfig
	Backup    BackupConfig
	Log       LogConfig
}

// StorageConfig selects the relational database and the semantic index.
type StorageConfig struct {
	// DataPath is the SQLite database file. Default: ./quilt.db
	DataPath string

	// VectorBackend selects the semantic index: memory or pgvector.
	// Default: memory
	VectorBackend string

	// PostgresDSN is required when VectorBackend is pgvector.
	PostgresDSN string
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	// Provider selects the embedder: local or http. Default: local
	Provider string

	// BaseURL is the OpenAI-compatible API root for the http provider.
	BaseURL string

	// APIKey authenticates http provider requests. Optional.
	APIKey string

	// Model is the embedding model name for the http provider.
	Model string

	// Dimension is the vector width. Default: 256
	Dimension int

	// RequestsPerSecond rate-limits the http provider. Default: 10
	RequestsPerSecond float64
}

// IngestConfig tunes the background ingestion pool.
type IngestConfig struct {
	QueueSize  int           // Enqueue buffer (default: 256)
	Workers    int           // background workers (default: 2)
	Resolution string        // contradiction policy (default: new_wins)
	JobTimeout time.Duration // per-job bound (default: 10s)
}

// RetrievalConfig tunes the retrieval orchestrator.
type RetrievalConfig struct {
	SourceTimeout      time.Duration // per-source bound (default: 3s)
	PreferenceStrength float64       // minimum surfaced strength (default: 0.5)

	// ContextsPath optionally points at a YAML context catalogue for the
	// classifier. Empty uses the built-in contexts.
	ContextsPath string
}

// BackupConfig tunes database snapshots.
type BackupConfig struct {
	// Path is the snapshot directory. Default: ./backups
	Path string

	// Keep is how many snapshots to retain. Default: 10
	Keep int
}

// LogConfig tunes logging.
type LogConfig struct {
	// Level is the zap level name: debug, info, warn, error. Default: info
	Level string
}

// Load reads configuration from the environment. Unset or unparseable
// variables fall back to their defaults.
func Load() *Config {
	return &Config{
		Storage: StorageConfig{
			DataPath:      getEnv("QUILT_DATA_PATH", "./quilt.db"),
			VectorBackend: getEnv("QUILT_VECTOR_BACKEND", "memory"),
			PostgresDSN:   getEnv("QUILT_POSTGRES_DSN", ""),
		},
		Embedding: EmbeddingConfig{
			Provider:          getEnv("QUILT_EMBED_PROVIDER", "local"),
			BaseURL:           getEnv("QUILT_EMBED_BASE_URL", "http://localhost:11434/v1"),
			APIKey:            getEnv("QUILT_EMBED_API_KEY", ""),
			Model:             getEnv("QUILT_EMBED_MODEL", "nomic-embed-text"),
			Dimension:         getEnvInt("QUILT_EMBED_DIMENSION", 256),
			RequestsPerSecond: getEnvFloat("QUILT_EMBED_RPS", 10),
		},
		Ingest: IngestConfig{
			QueueSize:  getEnvInt("QUILT_INGEST_QUEUE_SIZE", 256),
			Workers:    getEnvInt("QUILT_INGEST_WORKERS", 2),
			Resolution: getEnv("QUILT_INGEST_RESOLUTION", "new_wins"),
			JobTimeout: getEnvDuration("QUILT_INGEST_JOB_TIMEOUT", 10*time.Second),
		},
		Retrieval: RetrievalConfig{
			SourceTimeout:      getEnvDuration("QUILT_RETRIEVAL_SOURCE_TIMEOUT", 3*time.Second),
			PreferenceStrength: getEnvFloat("QUILT_RETRIEVAL_PREF_STRENGTH", 0.5),
			ContextsPath:       getEnv("QUILT_CONTEXTS_PATH", ""),
		},
		Backup: BackupConfig{
			Path: getEnv("QUILT_BACKUP_PATH", "./backups"),
			Keep: getEnvInt("QUILT_BACKUP_KEEP", 10),
		},
		Log: LogConfig{
			Level: getEnv("QUILT_LOG_LEVEL", "info"),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable. Unparseable values
// fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable. Unparseable values
// fall back to the default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable in Go duration
// syntax ("30s", "2m"). Unparseable values fall back to the default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
