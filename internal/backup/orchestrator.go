package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/clavora/clavora/internal/metrics"
	"github.com/clavora/clavora/internal/model"
)

// validBackupNameRe keeps backup names safe to use as directory names.
var validBackupNameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Options selects what a backup covers and, optionally, its name.
type Options struct {
	Name     string
	Includes model.Includes
}

// Catalog is the slice of the registry the orchestrator writes through.
type Catalog interface {
	Create(ctx context.Context, b *model.Backup) error
	ExistsByName(ctx context.Context, name string) (bool, error)
	UpdateStatus(ctx context.Context, name, status string, errMsg *string) error
	MarkCompleted(ctx context.Context, name, path string, sizeBytes int64, completedAt time.Time, warning *string) error
}

// Orchestrator produces backup bundles. Components are processed strictly
// one at a time so failure attribution stays unambiguous; required database
// exports abort the whole backup, everything else degrades to warnings.
type Orchestrator struct {
	logger     zerolog.Logger
	catalog    Catalog
	gate       *Gate
	archiveDir string
	components []Component
	now        func() time.Time
}

func NewOrchestrator(logger zerolog.Logger, catalog Catalog, gate *Gate, archiveDir string, components ...Component) *Orchestrator {
	return &Orchestrator{
		logger:     logger.With().Str("component", "backup-orchestrator").Logger(),
		catalog:    catalog,
		gate:       gate,
		archiveDir: archiveDir,
		components: components,
		now:        time.Now,
	}
}

// CreateBackup runs one full backup and returns the finalized record.
func (o *Orchestrator) CreateBackup(ctx context.Context, opts Options, origin string) (*model.Backup, error) {
	if !opts.Includes.Any() {
		return nil, fmt.Errorf("validate options: at least one component must be included")
	}

	// Pre-restore backups are the one kind allowed through while a restore
	// holds the gate: the restore itself requests them.
	if origin != model.OriginPreRestore {
		if _, active := o.gate.ActiveTarget(); active {
			return nil, ErrRestoreInProgress
		}
	}

	started := o.now().UTC()
	name := opts.Name
	if name == "" {
		name = deriveName(origin, started)
	}
	if !validBackupNameRe.MatchString(name) {
		return nil, fmt.Errorf("invalid backup name %q: only alphanumeric, underscore and dash allowed", name)
	}

	exists, err := o.catalog.ExistsByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("backup %s already exists", name)
	}

	rec := &model.Backup{
		Name:      name,
		Origin:    origin,
		Status:    model.BackupStatusRunning,
		Includes:  opts.Includes,
		StartedAt: &started,
		CreatedAt: started,
	}
	if err := o.catalog.Create(ctx, rec); err != nil {
		return nil, err
	}

	o.logger.Info().Str("backup", name).Str("origin", origin).Msg("backup started")

	bundleDir := filepath.Join(o.archiveDir, name)
	staging := filepath.Join(bundleDir, "staging")
	if err := os.MkdirAll(staging, 0750); err != nil {
		return nil, o.fail(ctx, rec, origin, fmt.Errorf("create staging dir: %w", err))
	}

	var warnings []string
	var exported []string
	for _, c := range o.components {
		if !includesComponent(opts.Includes, c.Name()) {
			continue
		}

		w, err := c.Export(ctx, staging)
		warnings = append(warnings, w...)
		if err != nil {
			if c.Fatal() {
				return nil, o.fail(ctx, rec, origin, &ExportError{Component: c.Name(), Err: err})
			}
			warnings = append(warnings, fmt.Sprintf("%s: %v", c.Name(), err))
			continue
		}
		exported = append(exported, c.Name())
	}

	manifest := &Manifest{Name: name, CreatedAt: started, Components: exported, Warnings: warnings}
	if err := WriteManifest(staging, manifest); err != nil {
		return nil, o.fail(ctx, rec, origin, err)
	}

	archivePath := filepath.Join(bundleDir, name+".tar.gz")
	if err := Pack(staging, archivePath); err != nil {
		return nil, o.fail(ctx, rec, origin, fmt.Errorf("package bundle: %w", err))
	}
	os.RemoveAll(staging)

	// A second copy beside the archive lets the API report bundle contents
	// without unpacking anything.
	if err := WriteManifest(bundleDir, manifest); err != nil {
		warnings = append(warnings, fmt.Sprintf("write bundle manifest: %v", err))
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, o.fail(ctx, rec, origin, fmt.Errorf("stat archive: %w", err))
	}

	completed := o.now().UTC()
	var warning *string
	if len(warnings) > 0 {
		joined := strings.Join(warnings, "; ")
		warning = &joined
	}
	if err := o.catalog.MarkCompleted(ctx, name, archivePath, info.Size(), completed, warning); err != nil {
		return nil, err
	}

	metrics.BackupsTotal.WithLabelValues(origin, model.BackupStatusCompleted).Inc()
	metrics.BackupDuration.Observe(completed.Sub(started).Seconds())
	o.logger.Info().
		Str("backup", name).
		Int64("size_bytes", info.Size()).
		Int("warnings", len(warnings)).
		Msg("backup completed")

	rec.Status = model.BackupStatusCompleted
	rec.Path = archivePath
	rec.SizeBytes = info.Size()
	rec.CompletedAt = &completed
	rec.ErrorMessage = warning
	return rec, nil
}

// fail finalizes the registry row, removes the partial bundle and returns
// the original error for the caller.
func (o *Orchestrator) fail(ctx context.Context, rec *model.Backup, origin string, cause error) error {
	o.logger.Error().Err(cause).Str("backup", rec.Name).Msg("backup failed")

	msg := cause.Error()
	if err := o.catalog.UpdateStatus(ctx, rec.Name, model.BackupStatusFailed, &msg); err != nil {
		o.logger.Error().Err(err).Str("backup", rec.Name).Msg("mark backup failed")
	}
	if err := os.RemoveAll(filepath.Join(o.archiveDir, rec.Name)); err != nil {
		o.logger.Warn().Err(err).Str("backup", rec.Name).Msg("remove partial bundle")
	}

	metrics.BackupsTotal.WithLabelValues(origin, model.BackupStatusFailed).Inc()
	return cause
}

// deriveName builds the conventional {prefix}_{YYYYMMDD}_{HHMMSS} name.
func deriveName(origin string, now time.Time) string {
	prefix := "backup"
	switch origin {
	case model.OriginScheduled:
		prefix = "scheduled"
	case model.OriginPreRestore:
		prefix = "pre_restore"
	}
	return prefix + "_" + now.UTC().Format("20060102_150405")
}
