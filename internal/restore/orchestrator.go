package restore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/clavora/clavora/internal/backup"
	"github.com/clavora/clavora/internal/metrics"
	"github.com/clavora/clavora/internal/model"
	"github.com/clavora/clavora/internal/platform"
	"github.com/clavora/clavora/internal/registry"
)

// FatalError aborts the remaining restore phases. The pre-restore safety
// backup stays available for manual recovery.
type FatalError struct {
	Phase string
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("restore failed in %s: %v", e.Phase, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Catalog is the slice of the registry the restore orchestrator reads.
type Catalog interface {
	Get(ctx context.Context, name string) (*model.Backup, error)
}

// Rescanner rebuilds the registry from the archive tree after the restore
// has replaced the database the registry lives in.
type Rescanner interface {
	Reconcile(ctx context.Context, root string) (registry.RescanResult, error)
}

// BackupCreator produces the pre-restore safety backup.
type BackupCreator interface {
	CreateBackup(ctx context.Context, opts backup.Options, origin string) (*model.Backup, error)
}

// Orchestrator drives a restore through its phases. The initial call
// validates and acknowledges; the destructive phases run on a detached
// goroutine because they drop the very database the caller's request is
// being served from.
type Orchestrator struct {
	logger     zerolog.Logger
	catalog    Catalog
	backups    BackupCreator
	rescan     Rescanner
	gate       *backup.Gate
	archiveDir string
	scratchDir string

	primaryDB backup.Component
	authDB    backup.Component
	storage   backup.Component
	files     backup.Component
	config    backup.Component

	// restartFn signals the host supervisor that the process must restart.
	restartFn func()
}

type Components struct {
	PrimaryDB backup.Component
	AuthDB    backup.Component
	Storage   backup.Component
	Files     backup.Component
	Config    backup.Component
}

func NewOrchestrator(
	logger zerolog.Logger,
	catalog Catalog,
	backups BackupCreator,
	rescan Rescanner,
	gate *backup.Gate,
	archiveDir, scratchDir string,
	components Components,
	restartFn func(),
) *Orchestrator {
	return &Orchestrator{
		logger:     logger.With().Str("component", "restore-orchestrator").Logger(),
		catalog:    catalog,
		backups:    backups,
		rescan:     rescan,
		gate:       gate,
		archiveDir: archiveDir,
		scratchDir: scratchDir,
		primaryDB:  components.PrimaryDB,
		authDB:     components.AuthDB,
		storage:    components.Storage,
		files:      components.Files,
		config:     components.Config,
		restartFn:  restartFn,
	}
}

// Start validates the request, claims the restore gate and kicks off the
// background run. The returned Operation is already acknowledged; progress
// is observable via logs and, after reconciliation, registry state.
func (o *Orchestrator) Start(ctx context.Context, backupName string, opts Options, operatorID string) (*Operation, error) {
	rec, err := o.catalog.Get(ctx, backupName)
	if err != nil {
		return nil, err
	}
	if !rec.Restorable() {
		return nil, fmt.Errorf("backup %s is not restorable (status: %s)", backupName, rec.Status)
	}

	info, err := os.Stat(rec.Path)
	if err != nil {
		return nil, fmt.Errorf("archive for backup %s: %w", backupName, err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("archive for backup %s is empty", backupName)
	}

	if err := o.gate.Acquire(backupName); err != nil {
		return nil, err
	}

	op := newOperation(platform.NewID(), backupName, opts, operatorID, time.Now().UTC())
	o.logger.Info().
		Str("backup", backupName).
		Str("operation", op.ID).
		Str("operator", operatorID).
		Msg("restore accepted")

	// The caller's context dies with its HTTP request; the destructive
	// phases must not.
	go o.run(context.Background(), op, rec)

	return op, nil
}

func (o *Orchestrator) run(ctx context.Context, op *Operation, rec *model.Backup) {
	// Deferred LIFO: the gate is released before done is closed, so anyone
	// woken by Done observes the gate free.
	defer close(op.done)
	defer o.gate.Release()

	scratch := filepath.Join(o.scratchDir, platform.NewName("restore_"))
	defer os.RemoveAll(scratch)

	if err := o.extract(op, rec, scratch); err != nil {
		o.fail(op, err)
		return
	}

	if err := o.preBackup(ctx, op); err != nil {
		o.fail(op, err)
		return
	}

	if err := o.restoreDatabases(ctx, op, scratch); err != nil {
		o.fail(op, err)
		return
	}

	o.restoreStorage(ctx, op, scratch)
	o.restoreLegacyFiles(ctx, op, scratch)

	if err := o.reconcile(ctx, op); err != nil {
		o.fail(op, err)
		return
	}

	op.setPhase(PhaseComplete)
	metrics.RestoresTotal.WithLabelValues("completed").Inc()
	o.logger.Info().
		Str("backup", op.TargetBackupName).
		Str("operation", op.ID).
		Int("warnings", len(op.Warnings())).
		Msg("restore completed; signaling restart")

	if o.restartFn != nil {
		o.restartFn()
	}
}

// extract proves the bundle readable before anything is destroyed.
func (o *Orchestrator) extract(op *Operation, rec *model.Backup, scratch string) error {
	op.setPhase(PhaseExtracting)

	if err := os.MkdirAll(scratch, 0750); err != nil {
		return &FatalError{Phase: PhaseExtracting, Err: err}
	}
	if err := backup.Extract(rec.Path, scratch); err != nil {
		return &FatalError{Phase: PhaseExtracting, Err: err}
	}

	if m, err := backup.ReadManifest(scratch); err != nil {
		// Bundles from older backup versions have no manifest.
		op.addWarnings(fmt.Sprintf("bundle has no readable manifest: %v", err))
	} else {
		o.logger.Info().Strs("components", m.Components).Msg("bundle manifest read")
	}

	return nil
}

func (o *Orchestrator) preBackup(ctx context.Context, op *Operation) error {
	if op.Options.SkipPreBackup {
		o.logger.Warn().Str("operation", op.ID).Msg("pre-restore safety backup skipped by request")
		return nil
	}

	op.setPhase(PhasePreBackup)

	pre, err := o.backups.CreateBackup(ctx, backup.Options{
		Includes: model.Includes{Database: true, Storage: true, Config: true},
	}, model.OriginPreRestore)
	if err != nil {
		return &FatalError{Phase: PhasePreBackup, Err: err}
	}

	op.setSafetyBackup(pre.Name)
	o.logger.Info().Str("safety_backup", pre.Name).Msg("pre-restore safety backup completed")
	return nil
}

func (o *Orchestrator) restoreDatabases(ctx context.Context, op *Operation, scratch string) error {
	if op.Options.Database {
		op.setPhase(PhaseRestoringPrimaryDB)
		warnings, err := o.primaryDB.Restore(ctx, scratch)
		op.addWarnings(warnings...)
		if err != nil {
			return &FatalError{Phase: PhaseRestoringPrimaryDB, Err: err}
		}
	}

	if op.Options.AuthDatabase && o.authDB != nil {
		op.setPhase(PhaseRestoringAuxDB)
		warnings, err := o.authDB.Restore(ctx, scratch)
		op.addWarnings(warnings...)
		if errors.Is(err, backup.ErrDumpNotFound) {
			// Bundles from older backup versions carry no auxiliary dump.
			op.addWarnings("auxiliary database dump not present in bundle; skipping")
			o.logger.Warn().Msg("auxiliary database dump not present in bundle; skipping")
		} else if err != nil {
			return &FatalError{Phase: PhaseRestoringAuxDB, Err: err}
		}
	}

	return nil
}

func (o *Orchestrator) restoreStorage(ctx context.Context, op *Operation, scratch string) {
	if !op.Options.Storage || o.storage == nil {
		return
	}
	op.setPhase(PhaseRestoringStorage)

	warnings, err := o.storage.Restore(ctx, scratch)
	op.addWarnings(warnings...)
	if err != nil {
		// Storage is recoverable by other means; never fatal.
		op.addWarnings(fmt.Sprintf("storage restore: %v", err))
		o.logger.Warn().Err(err).Msg("storage restore reported an error")
	}
}

func (o *Orchestrator) restoreLegacyFiles(ctx context.Context, op *Operation, scratch string) {
	runFiles := op.Options.Storage && o.files != nil
	runConfig := op.Options.Config && o.config != nil
	if !runFiles && !runConfig {
		return
	}
	op.setPhase(PhaseRestoringLegacyFile)

	if runFiles {
		warnings, err := o.files.Restore(ctx, scratch)
		op.addWarnings(warnings...)
		if err != nil {
			op.addWarnings(fmt.Sprintf("legacy file restore: %v", err))
			o.logger.Warn().Err(err).Msg("legacy file restore reported an error")
		}
	}

	if runConfig {
		warnings, err := o.config.Restore(ctx, scratch)
		op.addWarnings(warnings...)
		if err != nil {
			op.addWarnings(fmt.Sprintf("config restore: %v", err))
			o.logger.Warn().Err(err).Msg("config restore reported an error")
		}
	}
}

// reconcile rebuilds the registry, which the primary database restore just
// overwrote, from the archive tree on disk.
func (o *Orchestrator) reconcile(ctx context.Context, op *Operation) error {
	op.setPhase(PhaseReconcilingRegistry)

	res, err := o.rescan.Reconcile(ctx, o.archiveDir)
	if err != nil {
		return &FatalError{Phase: PhaseReconcilingRegistry, Err: err}
	}

	o.logger.Info().
		Int("registered", res.Registered).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("registry reconciled after restore")
	return nil
}

func (o *Orchestrator) fail(op *Operation, err error) {
	op.failWith(err)
	metrics.RestoresTotal.WithLabelValues("failed").Inc()

	evt := o.logger.Error().Err(err).
		Str("backup", op.TargetBackupName).
		Str("operation", op.ID)
	if name := op.SafetyBackupName(); name != "" {
		evt = evt.Str("safety_backup", name)
	}
	evt.Msg("restore failed; pre-restore backup remains available for manual recovery")
}
