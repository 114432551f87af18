// Package backup snapshots the Quilt SQLite database. Snapshots use VACUUM
// INTO, which produces a consistent point-in-time copy even in WAL mode, and
// every snapshot is integrity-checked before it counts as created.
package backup

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// Snapshot describes one backup file on disk.
type Snapshot struct {
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
	Size      int64     `json:"size"`
}

// Manager creates and prunes snapshots of one database file.
type Manager struct {
	dbPath string
	dir    string
	keep   int
	logger *zap.Logger
}

// NewManager creates a snapshot manager. keep bounds how many snapshots
// Prune retains; values below 1 default to 10.
func NewManager(dbPath, dir string, keep int, logger *zap.Logger) *Manager {
	if keep < 1 {
		keep = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{dbPath: dbPath, dir: dir, keep: keep, logger: logger}
}

// Create writes a new timestamped snapshot and verifies it. The snapshot
// path is returned.
func (m *Manager) Create() (string, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", fmt.Errorf("backup: create directory: %w", err)
	}

	name := fmt.Sprintf("quilt-%s.db", time.Now().UTC().Format("20060102T150405Z"))
	dest := filepath.Join(m.dir, name)

	source, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", m.dbPath))
	if err != nil {
		return "", fmt.Errorf("backup: open source: %w", err)
	}
	defer func() { _ = source.Close() }()

	if err := source.Ping(); err != nil {
		return "", fmt.Errorf("backup: ping source: %w", err)
	}
	if _, err := source.Exec(fmt.Sprintf("VACUUM INTO '%s'", dest)); err != nil {
		return "", fmt.Errorf("backup: vacuum into: %w", err)
	}

	if err := verify(dest); err != nil {
		_ = os.Remove(dest)
		return "", err
	}

	m.logger.Info("snapshot created", zap.String("path", dest))
	return dest, nil
}

// Restore replaces the managed database file with a verified snapshot. The
// database must not be open while restoring.
func (m *Manager) Restore(snapshotPath string) error {
	if err := verify(snapshotPath); err != nil {
		return err
	}

	src, err := os.Open(snapshotPath)
	if err != nil {
		return fmt.Errorf("backup: open snapshot: %w", err)
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(m.dbPath)
	if err != nil {
		return fmt.Errorf("backup: create target: %w", err)
	}
	defer func() { _ = dst.Close() }()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("backup: copy snapshot: %w", err)
	}
	if err := dst.Sync(); err != nil {
		return fmt.Errorf("backup: sync target: %w", err)
	}

	if err := verify(m.dbPath); err != nil {
		return fmt.Errorf("backup: restored database: %w", err)
	}

	m.logger.Info("snapshot restored", zap.String("path", snapshotPath))
	return nil
}

// List returns the snapshots on disk, newest first.
func (m *Manager) List() ([]Snapshot, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("backup: read directory: %w", err)
	}

	var snapshots []Snapshot
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".db") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		snapshots = append(snapshots, Snapshot{
			Path:      filepath.Join(m.dir, entry.Name()),
			CreatedAt: info.ModTime(),
			Size:      info.Size(),
		})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].CreatedAt.After(snapshots[j].CreatedAt)
	})
	return snapshots, nil
}

// Prune deletes all but the newest keep snapshots and reports how many were
// removed. A failed removal does not stop the remaining ones.
func (m *Manager) Prune() (int, error) {
	snapshots, err := m.List()
	if err != nil {
		return 0, err
	}
	if len(snapshots) <= m.keep {
		return 0, nil
	}

	removed := 0
	var lastErr error
	for _, snapshot := range snapshots[m.keep:] {
		if err := os.Remove(snapshot.Path); err != nil {
			lastErr = err
			continue
		}
		removed++
	}

	if lastErr != nil {
		return removed, fmt.Errorf("backup: prune: %w", lastErr)
	}

	m.logger.Info("snapshots pruned", zap.Int("removed", removed), zap.Int("kept", m.keep))
	return removed, nil
}

// verify opens a snapshot read-only and runs SQLite's integrity check.
func verify(path string) error {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return fmt.Errorf("backup: open snapshot: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("backup: integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("backup: integrity check failed: %s", result)
	}
	return nil
}
