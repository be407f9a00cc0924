package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clavora/clavora/internal/model"
)

// ErrNotFound is returned when no backup or schedule row matches the name.
var ErrNotFound = errors.New("not found")

// DB defines the database operations used by the registry.
// *pgxpool.Pool satisfies this interface.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Registry is the persisted catalog of backups and schedules. It is the
// single source of truth for which backups exist.
type Registry struct {
	db DB
}

func New(db DB) *Registry {
	return &Registry{db: db}
}

const backupColumns = `name, origin, status, path, size_bytes, includes_database, includes_storage, includes_config, error_message, started_at, completed_at, created_at`

// Create inserts a backup row. A duplicate name is a no-op rather than an
// error so that reconciliation stays safely repeatable.
func (r *Registry) Create(ctx context.Context, b *model.Backup) error {
	exists, err := r.ExistsByName(ctx, b.Name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO backups (`+backupColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		b.Name, b.Origin, b.Status, b.Path, b.SizeBytes,
		b.Includes.Database, b.Includes.Storage, b.Includes.Config,
		b.ErrorMessage, b.StartedAt, b.CompletedAt, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert backup: %w", err)
	}
	return nil
}

func scanBackup(row pgx.Row) (*model.Backup, error) {
	var b model.Backup
	err := row.Scan(&b.Name, &b.Origin, &b.Status, &b.Path, &b.SizeBytes,
		&b.Includes.Database, &b.Includes.Storage, &b.Includes.Config,
		&b.ErrorMessage, &b.StartedAt, &b.CompletedAt, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Registry) Get(ctx context.Context, name string) (*model.Backup, error) {
	b, err := scanBackup(r.db.QueryRow(ctx,
		`SELECT `+backupColumns+` FROM backups WHERE name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("backup %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get backup %s: %w", name, err)
	}
	return b, nil
}

// List returns backups ordered newest first, plus the total row count for
// operator pagination.
func (r *Registry) List(ctx context.Context, limit, offset int) ([]model.Backup, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM backups`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count backups: %w", err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+backupColumns+` FROM backups ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list backups: %w", err)
	}
	defer rows.Close()

	var backups []model.Backup
	for rows.Next() {
		var b model.Backup
		if err := rows.Scan(&b.Name, &b.Origin, &b.Status, &b.Path, &b.SizeBytes,
			&b.Includes.Database, &b.Includes.Storage, &b.Includes.Config,
			&b.ErrorMessage, &b.StartedAt, &b.CompletedAt, &b.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan backup: %w", err)
		}
		backups = append(backups, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate backups: %w", err)
	}

	return backups, total, nil
}

// UpdateStatus moves a backup to a new status. Transitions are monotonic;
// callers only ever move pending→running→completed/failed.
func (r *Registry) UpdateStatus(ctx context.Context, name, status string, errMsg *string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE backups SET status = $1, error_message = $2 WHERE name = $3`,
		status, errMsg, name)
	if err != nil {
		return fmt.Errorf("update backup %s status: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("backup %s: %w", name, ErrNotFound)
	}
	return nil
}

// MarkCompleted finalizes a successful backup with its archive location and
// size. warning carries accumulated soft-failure text, or nil.
func (r *Registry) MarkCompleted(ctx context.Context, name, path string, sizeBytes int64, completedAt time.Time, warning *string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE backups SET status = $1, path = $2, size_bytes = $3, completed_at = $4, error_message = $5
		 WHERE name = $6`,
		model.BackupStatusCompleted, path, sizeBytes, completedAt, warning, name)
	if err != nil {
		return fmt.Errorf("mark backup %s completed: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("backup %s: %w", name, ErrNotFound)
	}
	return nil
}

func (r *Registry) Delete(ctx context.Context, name string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM backups WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete backup %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("backup %s: %w", name, ErrNotFound)
	}
	return nil
}

func (r *Registry) ExistsByName(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM backups WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check backup %s exists: %w", name, err)
	}
	return exists, nil
}

// FailInterrupted marks rows stuck in pending/running as failed. Run at
// startup: a process crash mid-backup leaves no one to finalize the row.
func (r *Registry) FailInterrupted(ctx context.Context) (int64, error) {
	msg := "interrupted by process restart"
	tag, err := r.db.Exec(ctx,
		`UPDATE backups SET status = $1, error_message = $2 WHERE status IN ($3, $4)`,
		model.BackupStatusFailed, msg, model.BackupStatusPending, model.BackupStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("fail interrupted backups: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteCompletedOlderThan removes completed backups created before cutoff
// and returns the deleted rows so callers can remove archives from disk.
// exclude shields the target of an in-flight restore.
func (r *Registry) DeleteCompletedOlderThan(ctx context.Context, cutoff time.Time, exclude string) ([]model.Backup, error) {
	rows, err := r.db.Query(ctx,
		`DELETE FROM backups
		 WHERE status = $1 AND created_at < $2 AND name <> $3
		 RETURNING `+backupColumns,
		model.BackupStatusCompleted, cutoff, exclude)
	if err != nil {
		return nil, fmt.Errorf("delete old backups: %w", err)
	}
	defer rows.Close()

	var deleted []model.Backup
	for rows.Next() {
		var b model.Backup
		if err := rows.Scan(&b.Name, &b.Origin, &b.Status, &b.Path, &b.SizeBytes,
			&b.Includes.Database, &b.Includes.Storage, &b.Includes.Config,
			&b.ErrorMessage, &b.StartedAt, &b.CompletedAt, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan deleted backup: %w", err)
		}
		deleted = append(deleted, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deleted backups: %w", err)
	}

	return deleted, nil
}
