package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quiltmem/quilt/internal/storage/sqlite"
	"github.com/quiltmem/quilt/pkg/types"
)

func newTestDatabase(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "quilt.db")
	store, err := sqlite.New(path)
	require.NoError(t, err)

	fact := types.Fact{
		ID:         "fact_backup_test",
		UserID:     "user-1",
		Content:    "i like jazz",
		Category:   types.CategoryPreference,
		Confidence: 0.8,
		Source:     types.SourceImplicit,
	}
	require.NoError(t, store.CreateFact(context.Background(), &fact))
	require.NoError(t, store.Close())

	return path
}

func TestCreateAndRestore(t *testing.T) {
	dbPath := newTestDatabase(t)
	m := NewManager(dbPath, filepath.Join(t.TempDir(), "backups"), 10, zap.NewNop())

	snapshotPath, err := m.Create()
	require.NoError(t, err)
	require.FileExists(t, snapshotPath)

	// Wreck the live database, then restore the snapshot over it.
	require.NoError(t, os.WriteFile(dbPath, []byte("not a database"), 0o644))
	require.NoError(t, m.Restore(snapshotPath))

	store, err := sqlite.New(dbPath)
	require.NoError(t, err)
	defer func() { require.NoError(t, store.Close()) }()

	fact, err := store.GetFact(context.Background(), "fact_backup_test")
	require.NoError(t, err)
	assert.Equal(t, "i like jazz", fact.Content)
}

func TestRestoreRejectsCorruptSnapshot(t *testing.T) {
	dbPath := newTestDatabase(t)
	dir := t.TempDir()
	m := NewManager(dbPath, dir, 10, zap.NewNop())

	corrupt := filepath.Join(dir, "bad.db")
	require.NoError(t, os.WriteFile(corrupt, []byte("garbage"), 0o644))

	assert.Error(t, m.Restore(corrupt))
}

func TestListNewestFirst(t *testing.T) {
	dbPath := newTestDatabase(t)
	dir := filepath.Join(t.TempDir(), "backups")
	m := NewManager(dbPath, dir, 10, zap.NewNop())

	first, err := m.Create()
	require.NoError(t, err)
	// Snapshot names carry second resolution; space them out.
	require.NoError(t, os.Chtimes(first, time.Now().Add(-time.Hour), time.Now().Add(-time.Hour)))
	second, err := m.Create()
	require.NoError(t, err)

	snapshots, err := m.List()
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	assert.Equal(t, second, snapshots[0].Path)
	assert.Equal(t, first, snapshots[1].Path)
}

func TestListEmptyDirectory(t *testing.T) {
	m := NewManager("unused.db", filepath.Join(t.TempDir(), "missing"), 10, zap.NewNop())

	snapshots, err := m.List()
	require.NoError(t, err)
	assert.Empty(t, snapshots)
}

func TestPruneKeepsNewest(t *testing.T) {
	dbPath := newTestDatabase(t)
	dir := filepath.Join(t.TempDir(), "backups")
	m := NewManager(dbPath, dir, 2, zap.NewNop())

	var paths []string
	for i := 0; i < 4; i++ {
		p, err := m.Create()
		require.NoError(t, err)
		age := time.Duration(4-i) * time.Hour
		require.NoError(t, os.Chtimes(p, time.Now().Add(-age), time.Now().Add(-age)))
		// Names collide within one second; rename to keep them distinct.
		distinct := filepath.Join(dir, filepath.Base(p)+"-"+string(rune('a'+i))+".db")
		require.NoError(t, os.Rename(p, distinct))
		paths = append(paths, distinct)
	}

	removed, err := m.Prune()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	snapshots, err := m.List()
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	assert.Equal(t, paths[3], snapshots[0].Path)
	assert.Equal(t, paths[2], snapshots[1].Path)
}
