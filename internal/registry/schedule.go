package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/clavora/clavora/internal/model"
)

const scheduleColumns = `name, enabled, cron_expression, includes_database, includes_storage, includes_config, retention_days, created_by, last_run_at, created_at, updated_at`

func (r *Registry) CreateSchedule(ctx context.Context, s *model.BackupSchedule) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO backup_schedules (`+scheduleColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		s.Name, s.Enabled, s.CronExpression,
		s.Includes.Database, s.Includes.Storage, s.Includes.Config,
		s.RetentionDays, s.CreatedBy, s.LastRunAt, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

func (r *Registry) GetSchedule(ctx context.Context, name string) (*model.BackupSchedule, error) {
	var s model.BackupSchedule
	err := r.db.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM backup_schedules WHERE name = $1`, name,
	).Scan(&s.Name, &s.Enabled, &s.CronExpression,
		&s.Includes.Database, &s.Includes.Storage, &s.Includes.Config,
		&s.RetentionDays, &s.CreatedBy, &s.LastRunAt, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("schedule %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule %s: %w", name, err)
	}
	return &s, nil
}

func (r *Registry) UpdateSchedule(ctx context.Context, s *model.BackupSchedule) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE backup_schedules
		 SET enabled = $1, cron_expression = $2, includes_database = $3, includes_storage = $4,
		     includes_config = $5, retention_days = $6, updated_at = now()
		 WHERE name = $7`,
		s.Enabled, s.CronExpression,
		s.Includes.Database, s.Includes.Storage, s.Includes.Config,
		s.RetentionDays, s.Name)
	if err != nil {
		return fmt.Errorf("update schedule %s: %w", s.Name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("schedule %s: %w", s.Name, ErrNotFound)
	}
	return nil
}

func (r *Registry) DeleteSchedule(ctx context.Context, name string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM backup_schedules WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete schedule %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("schedule %s: %w", name, ErrNotFound)
	}
	return nil
}

func (r *Registry) ListSchedules(ctx context.Context) ([]model.BackupSchedule, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+scheduleColumns+` FROM backup_schedules ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []model.BackupSchedule
	for rows.Next() {
		var s model.BackupSchedule
		if err := rows.Scan(&s.Name, &s.Enabled, &s.CronExpression,
			&s.Includes.Database, &s.Includes.Storage, &s.Includes.Config,
			&s.RetentionDays, &s.CreatedBy, &s.LastRunAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedules: %w", err)
	}

	return schedules, nil
}

// TouchLastRun records when a schedule last triggered a backup.
func (r *Registry) TouchLastRun(ctx context.Context, name string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE backup_schedules SET last_run_at = $1, updated_at = now() WHERE name = $2`,
		at, name)
	if err != nil {
		return fmt.Errorf("touch schedule %s last run: %w", name, err)
	}
	return nil
}
