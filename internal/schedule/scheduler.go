package schedule

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/clavora/clavora/internal/backup"
	"github.com/clavora/clavora/internal/metrics"
	"github.com/clavora/clavora/internal/model"
)

// Clock abstracts time so due-ness and retention math are testable.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Catalog is the slice of the registry the scheduler needs.
type Catalog interface {
	ListSchedules(ctx context.Context) ([]model.BackupSchedule, error)
	TouchLastRun(ctx context.Context, name string, at time.Time) error
	DeleteCompletedOlderThan(ctx context.Context, cutoff time.Time, exclude string) ([]model.Backup, error)
}

// BackupCreator runs the actual backup when a schedule fires.
type BackupCreator interface {
	CreateBackup(ctx context.Context, opts backup.Options, origin string) (*model.Backup, error)
}

// Scheduler polls the schedule table and fires due backups. Polling rather
// than per-schedule timers keeps schedule edits effective without any
// re-registration step.
type Scheduler struct {
	logger     zerolog.Logger
	catalog    Catalog
	backups    BackupCreator
	gate       *backup.Gate
	clock      Clock
	interval   time.Duration
	archiveDir string
	parser     cron.Parser

	stop chan struct{}
	done chan struct{}
}

func NewScheduler(logger zerolog.Logger, catalog Catalog, backups BackupCreator, gate *backup.Gate, archiveDir string) *Scheduler {
	return &Scheduler{
		logger:     logger.With().Str("component", "scheduler").Logger(),
		catalog:    catalog,
		backups:    backups,
		gate:       gate,
		clock:      SystemClock{},
		interval:   30 * time.Second,
		archiveDir: archiveDir,
		parser:     cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// ValidateCronExpression reports whether expr is a valid five-field cron
// spec. Used by the API before persisting a schedule.
func (s *Scheduler) ValidateCronExpression(expr string) error {
	if _, err := s.parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// Start launches the polling loop.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info().Dur("interval", s.interval).Msg("scheduler started")
		for {
			select {
			case <-ticker.C:
				s.Evaluate(ctx)
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the polling loop and waits for it to exit. A backup already in
// flight finishes on its own.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
	s.logger.Info().Msg("scheduler stopped")
}

// Evaluate runs one polling pass: fire due schedules, then apply retention.
func (s *Scheduler) Evaluate(ctx context.Context) {
	schedules, err := s.catalog.ListSchedules(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("list schedules")
		return
	}

	for _, sched := range schedules {
		if !sched.Enabled {
			continue
		}
		due, err := s.isDue(&sched)
		if err != nil {
			s.logger.Error().Err(err).Str("schedule", sched.Name).Msg("evaluate schedule")
			continue
		}
		if !due {
			continue
		}
		s.fire(ctx, &sched)
	}

	for _, sched := range schedules {
		if !sched.Enabled || sched.RetentionDays <= 0 {
			continue
		}
		if _, err := s.Cleanup(ctx, sched.RetentionDays); err != nil {
			s.logger.Error().Err(err).Str("schedule", sched.Name).Msg("retention cleanup")
		}
	}
}

// isDue reports whether the schedule's next firing time, computed from its
// last run (or creation, for never-run schedules), has passed.
func (s *Scheduler) isDue(sched *model.BackupSchedule) (bool, error) {
	spec, err := s.parser.Parse(sched.CronExpression)
	if err != nil {
		return false, fmt.Errorf("parse cron %q: %w", sched.CronExpression, err)
	}

	base := sched.CreatedAt
	if sched.LastRunAt != nil {
		base = *sched.LastRunAt
	}
	return !spec.Next(base).After(s.clock.Now()), nil
}

func (s *Scheduler) fire(ctx context.Context, sched *model.BackupSchedule) {
	if target, active := s.gate.ActiveTarget(); active {
		s.logger.Warn().
			Str("schedule", sched.Name).
			Str("restore_target", target).
			Msg("skipping scheduled backup: restore in progress")
		return
	}

	now := s.clock.Now().UTC()
	s.logger.Info().Str("schedule", sched.Name).Msg("firing scheduled backup")

	_, err := s.backups.CreateBackup(ctx, backup.Options{Includes: sched.Includes}, model.OriginScheduled)
	if err != nil {
		s.logger.Error().Err(err).Str("schedule", sched.Name).Msg("scheduled backup failed")
	}

	// Advance last_run_at even on failure so a broken backup does not
	// re-fire on every polling pass.
	if err := s.catalog.TouchLastRun(ctx, sched.Name, now); err != nil {
		s.logger.Error().Err(err).Str("schedule", sched.Name).Msg("record schedule run")
	}
}

// Cleanup deletes completed backups older than retentionDays, both their
// registry rows and their bundle directories. The target of an in-flight
// restore is never deleted, whatever its age.
func (s *Scheduler) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}

	cutoff := s.clock.Now().UTC().AddDate(0, 0, -retentionDays)
	exclude, _ := s.gate.ActiveTarget()

	deleted, err := s.catalog.DeleteCompletedOlderThan(ctx, cutoff, exclude)
	if err != nil {
		return 0, err
	}

	for _, b := range deleted {
		dir := filepath.Join(s.archiveDir, b.Name)
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn().Err(err).Str("backup", b.Name).Msg("remove expired bundle dir")
			continue
		}
		s.logger.Info().Str("backup", b.Name).Time("created_at", b.CreatedAt).Msg("expired backup removed")
	}

	if len(deleted) > 0 {
		metrics.RetentionDeleted.Add(float64(len(deleted)))
	}
	return len(deleted), nil
}
