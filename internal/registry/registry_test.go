package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/clavora/clavora/internal/model"
)

func existsRow(exists bool) *mockRow {
	return &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*bool)) = exists
		return nil
	}}
}

// ---------- Create ----------

func TestRegistry_Create_Success(t *testing.T) {
	db := &mockDB{}
	reg := New(db)
	ctx := context.Background()

	now := time.Now().UTC()
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(existsRow(false))
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.CommandTag{}, nil)

	err := reg.Create(ctx, &model.Backup{
		Name:      "backup_20250101_120000",
		Origin:    model.OriginManual,
		Status:    model.BackupStatusRunning,
		Includes:  model.Includes{Database: true},
		StartedAt: &now,
		CreatedAt: now,
	})
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestRegistry_Create_DuplicateIsNoop(t *testing.T) {
	db := &mockDB{}
	reg := New(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(existsRow(true))

	err := reg.Create(ctx, &model.Backup{Name: "backup_20250101_120000"})
	require.NoError(t, err)
	db.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything)
}

func TestRegistry_Create_InsertError(t *testing.T) {
	db := &mockDB{}
	reg := New(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(existsRow(false))
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.CommandTag{}, errors.New("db error"))

	err := reg.Create(ctx, &model.Backup{Name: "backup_20250101_120000"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert backup")
}

// ---------- Get ----------

func TestRegistry_Get_Success(t *testing.T) {
	db := &mockDB{}
	reg := New(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)

	row := &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*string)) = "backup_20250101_120000"
		*(dest[1].(*string)) = model.OriginManual
		*(dest[2].(*string)) = model.BackupStatusCompleted
		*(dest[3].(*string)) = "/var/backups/clavora/backup_20250101_120000/backup_20250101_120000.tar.gz"
		*(dest[4].(*int64)) = 4096
		*(dest[5].(*bool)) = true  // includes_database
		*(dest[6].(*bool)) = true  // includes_storage
		*(dest[7].(*bool)) = false // includes_config
		*(dest[8].(**string)) = nil
		*(dest[9].(**time.Time)) = &now
		*(dest[10].(**time.Time)) = &now
		*(dest[11].(*time.Time)) = now
		return nil
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(row)

	b, err := reg.Get(ctx, "backup_20250101_120000")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "backup_20250101_120000", b.Name)
	assert.Equal(t, int64(4096), b.SizeBytes)
	assert.True(t, b.Restorable())
	db.AssertExpectations(t)
}

func TestRegistry_Get_NotFound(t *testing.T) {
	db := &mockDB{}
	reg := New(db)
	ctx := context.Background()

	row := &mockRow{scanFunc: func(dest ...any) error {
		return pgx.ErrNoRows
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(row)

	b, err := reg.Get(ctx, "nonexistent")
	require.Error(t, err)
	assert.Nil(t, b)
	assert.ErrorIs(t, err, ErrNotFound)
}

// ---------- List ----------

func TestRegistry_List_Success(t *testing.T) {
	db := &mockDB{}
	reg := New(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)

	countRow := &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*int)) = 1
		return nil
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(countRow)

	rows := newMockRows(func(dest ...any) error {
		*(dest[0].(*string)) = "scheduled_20250101_030000"
		*(dest[1].(*string)) = model.OriginScheduled
		*(dest[2].(*string)) = model.BackupStatusCompleted
		*(dest[3].(*string)) = "/var/backups/clavora/scheduled_20250101_030000/scheduled_20250101_030000.tar.gz"
		*(dest[4].(*int64)) = 1024
		*(dest[5].(*bool)) = true
		*(dest[6].(*bool)) = true
		*(dest[7].(*bool)) = true
		*(dest[8].(**string)) = nil
		*(dest[9].(**time.Time)) = &now
		*(dest[10].(**time.Time)) = &now
		*(dest[11].(*time.Time)) = now
		return nil
	})
	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	backups, total, err := reg.List(ctx, 50, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, backups, 1)
	assert.Equal(t, model.OriginScheduled, backups[0].Origin)
	db.AssertExpectations(t)
}

func TestRegistry_List_Empty(t *testing.T) {
	db := &mockDB{}
	reg := New(db)
	ctx := context.Background()

	countRow := &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*int)) = 0
		return nil
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(countRow)
	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(newEmptyMockRows(), nil)

	backups, total, err := reg.List(ctx, 50, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, backups)
}

// ---------- UpdateStatus / MarkCompleted ----------

func TestRegistry_UpdateStatus_Success(t *testing.T) {
	db := &mockDB{}
	reg := New(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	msg := "export database: pg_dump exited 1"
	err := reg.UpdateStatus(ctx, "backup_20250101_120000", model.BackupStatusFailed, &msg)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestRegistry_UpdateStatus_NotFound(t *testing.T) {
	db := &mockDB{}
	reg := New(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := reg.UpdateStatus(ctx, "nonexistent", model.BackupStatusFailed, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_MarkCompleted_Success(t *testing.T) {
	db := &mockDB{}
	reg := New(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := reg.MarkCompleted(ctx, "backup_20250101_120000", "/tmp/a.tar.gz", 2048, time.Now().UTC(), nil)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

// ---------- FailInterrupted ----------

func TestRegistry_FailInterrupted(t *testing.T) {
	db := &mockDB{}
	reg := New(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 2"), nil)

	n, err := reg.FailInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	db.AssertExpectations(t)
}

// ---------- DeleteCompletedOlderThan ----------

func TestRegistry_DeleteCompletedOlderThan(t *testing.T) {
	db := &mockDB{}
	reg := New(db)
	ctx := context.Background()

	old := time.Now().UTC().AddDate(0, 0, -60).Truncate(time.Microsecond)

	rows := newMockRows(func(dest ...any) error {
		*(dest[0].(*string)) = "scheduled_20250101_030000"
		*(dest[1].(*string)) = model.OriginScheduled
		*(dest[2].(*string)) = model.BackupStatusCompleted
		*(dest[3].(*string)) = "/var/backups/clavora/scheduled_20250101_030000/scheduled_20250101_030000.tar.gz"
		*(dest[4].(*int64)) = 1024
		*(dest[5].(*bool)) = true
		*(dest[6].(*bool)) = true
		*(dest[7].(*bool)) = false
		*(dest[8].(**string)) = nil
		*(dest[9].(**time.Time)) = &old
		*(dest[10].(**time.Time)) = &old
		*(dest[11].(*time.Time)) = old
		return nil
	})
	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	deleted, err := reg.DeleteCompletedOlderThan(ctx, time.Now().UTC().AddDate(0, 0, -30), "")
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, "scheduled_20250101_030000", deleted[0].Name)
	db.AssertExpectations(t)
}

func TestRegistry_DeleteCompletedOlderThan_QueryError(t *testing.T) {
	db := &mockDB{}
	reg := New(db)
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(nil, errors.New("connection lost"))

	deleted, err := reg.DeleteCompletedOlderThan(ctx, time.Now().UTC(), "")
	require.Error(t, err)
	assert.Nil(t, deleted)
	assert.Contains(t, err.Error(), "delete old backups")
}
