package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clavora/clavora/internal/model"
)

// fakeCatalog is an in-memory Catalog for reconciler tests.
type fakeCatalog struct {
	rows      map[string]*model.Backup
	createErr error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{rows: map[string]*model.Backup{}}
}

func (f *fakeCatalog) ExistsByName(_ context.Context, name string) (bool, error) {
	_, ok := f.rows[name]
	return ok, nil
}

func (f *fakeCatalog) Create(_ context.Context, b *model.Backup) error {
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.rows[b.Name]; ok {
		return nil
	}
	f.rows[b.Name] = b
	return nil
}

func writeArchive(t *testing.T, root, dirName, archiveName string) string {
	t.Helper()
	dir := filepath.Join(root, dirName)
	require.NoError(t, os.MkdirAll(dir, 0750))
	path := filepath.Join(dir, archiveName)
	require.NoError(t, os.WriteFile(path, []byte("not really gzip"), 0640))
	return path
}

func TestReconciler_RegistersBackupFromDisk(t *testing.T) {
	root := t.TempDir()
	archive := writeArchive(t, root, "backup_20250101_120000", "backup_20250101_120000.tar.gz")

	cat := newFakeCatalog()
	rec := NewReconciler(zerolog.Nop(), cat)

	res, err := rec.Reconcile(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Registered)
	assert.Zero(t, res.Skipped)
	assert.Zero(t, res.Failed)

	b := cat.rows["backup_20250101_120000"]
	require.NotNil(t, b)
	assert.Equal(t, model.BackupStatusCompleted, b.Status)
	assert.Equal(t, model.OriginManual, b.Origin)
	assert.Equal(t, archive, b.Path)
	assert.Equal(t, time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC), b.CreatedAt)
	assert.True(t, b.Includes.Database)
	assert.True(t, b.Includes.Storage)
	assert.False(t, b.Includes.Config)
}

func TestReconciler_ScheduledPrefixSetsOrigin(t *testing.T) {
	root := t.TempDir()
	writeArchive(t, root, "scheduled_20250301_030000", "scheduled_20250301_030000.tar.gz")

	cat := newFakeCatalog()
	rec := NewReconciler(zerolog.Nop(), cat)

	_, err := rec.Reconcile(context.Background(), root)
	require.NoError(t, err)
	require.NotNil(t, cat.rows["scheduled_20250301_030000"])
	assert.Equal(t, model.OriginScheduled, cat.rows["scheduled_20250301_030000"].Origin)
}

func TestReconciler_ExistingRowSkipped(t *testing.T) {
	root := t.TempDir()
	writeArchive(t, root, "backup_20250101_120000", "backup_20250101_120000.tar.gz")

	cat := newFakeCatalog()
	cat.rows["backup_20250101_120000"] = &model.Backup{Name: "backup_20250101_120000"}
	rec := NewReconciler(zerolog.Nop(), cat)

	res, err := rec.Reconcile(context.Background(), root)
	require.NoError(t, err)
	assert.Zero(t, res.Registered)
	assert.Equal(t, 1, res.Skipped)
}

func TestReconciler_Idempotent(t *testing.T) {
	root := t.TempDir()
	writeArchive(t, root, "backup_20250101_120000", "backup_20250101_120000.tar.gz")

	cat := newFakeCatalog()
	rec := NewReconciler(zerolog.Nop(), cat)

	first, err := rec.Reconcile(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Registered)

	second, err := rec.Reconcile(context.Background(), root)
	require.NoError(t, err)
	assert.Zero(t, second.Registered)
	assert.Equal(t, 1, second.Skipped)
	assert.Len(t, cat.rows, 1)
}

func TestReconciler_AmbiguousDirectorySkipped(t *testing.T) {
	root := t.TempDir()
	writeArchive(t, root, "messy", "one.tar.gz")
	writeArchive(t, root, "messy", "two.tar.gz")

	cat := newFakeCatalog()
	rec := NewReconciler(zerolog.Nop(), cat)

	res, err := rec.Reconcile(context.Background(), root)
	require.NoError(t, err)
	assert.Zero(t, res.Registered)
	assert.Equal(t, 1, res.Skipped)
	assert.Empty(t, cat.rows)
}

func TestReconciler_UnparsableNameFallsBackToModTime(t *testing.T) {
	root := t.TempDir()
	writeArchive(t, root, "legacy", "legacy.tar.gz")

	cat := newFakeCatalog()
	rec := NewReconciler(zerolog.Nop(), cat)

	res, err := rec.Reconcile(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Registered)

	b := cat.rows["legacy"]
	require.NotNil(t, b)
	assert.WithinDuration(t, time.Now().UTC(), b.CreatedAt, time.Minute)
}

func TestReconciler_CreateFailureCountedAndContinues(t *testing.T) {
	root := t.TempDir()
	writeArchive(t, root, "backup_20250101_120000", "backup_20250101_120000.tar.gz")
	writeArchive(t, root, "backup_20250102_120000", "backup_20250102_120000.tar.gz")

	cat := newFakeCatalog()
	cat.createErr = errors.New("insert failed")
	rec := NewReconciler(zerolog.Nop(), cat)

	res, err := rec.Reconcile(context.Background(), root)
	require.NoError(t, err)
	assert.Zero(t, res.Registered)
	assert.Equal(t, 2, res.Failed)
}

func TestReconciler_MissingRootFails(t *testing.T) {
	rec := NewReconciler(zerolog.Nop(), newFakeCatalog())

	_, err := rec.Reconcile(context.Background(), "/nonexistent/archive/root")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read archive root")
}

func TestParseArchiveTimestamp(t *testing.T) {
	ts, ok := parseArchiveTimestamp("backup_20250101_120000.tar.gz")
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC), ts)

	_, ok = parseArchiveTimestamp("backup.tar.gz")
	assert.False(t, ok)

	_, ok = parseArchiveTimestamp("backup_20251301_990000.tar.gz")
	assert.False(t, ok)
}
