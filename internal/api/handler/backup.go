package handler

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clavora/clavora/internal/api/request"
	"github.com/clavora/clavora/internal/api/response"
	"github.com/clavora/clavora/internal/backup"
	"github.com/clavora/clavora/internal/model"
	"github.com/clavora/clavora/internal/registry"
	"github.com/clavora/clavora/internal/restore"
)

// BackupCatalog is the registry surface the backup handler reads and writes.
type BackupCatalog interface {
	Get(ctx context.Context, name string) (*model.Backup, error)
	List(ctx context.Context, limit, offset int) ([]model.Backup, int, error)
	Delete(ctx context.Context, name string) error
}

// BackupRunner creates backups synchronously.
type BackupRunner interface {
	CreateBackup(ctx context.Context, opts backup.Options, origin string) (*model.Backup, error)
}

// RestoreStarter validates and launches a restore, returning once the
// operation is acknowledged.
type RestoreStarter interface {
	Start(ctx context.Context, backupName string, opts restore.Options, operatorID string) (*restore.Operation, error)
}

// Rescanner rebuilds the registry from the archive tree on disk.
type Rescanner interface {
	Reconcile(ctx context.Context, root string) (registry.RescanResult, error)
}

// Cleaner applies a retention policy to completed backups.
type Cleaner interface {
	Cleanup(ctx context.Context, retentionDays int) (int, error)
}

type Backup struct {
	catalog    BackupCatalog
	runner     BackupRunner
	restorer   RestoreStarter
	rescanner  Rescanner
	cleaner    Cleaner
	gate       *backup.Gate
	archiveDir string
}

func NewBackup(catalog BackupCatalog, runner BackupRunner, restorer RestoreStarter, rescanner Rescanner, cleaner Cleaner, gate *backup.Gate, archiveDir string) *Backup {
	return &Backup{
		catalog:    catalog,
		runner:     runner,
		restorer:   restorer,
		rescanner:  rescanner,
		cleaner:    cleaner,
		gate:       gate,
		archiveDir: archiveDir,
	}
}

func (h *Backup) List(w http.ResponseWriter, r *http.Request) {
	pg := request.ParsePagination(r)

	backups, total, err := h.catalog.List(r.Context(), pg.Limit, pg.Offset)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response.WriteList(w, http.StatusOK, backups, total)
}

func (h *Backup) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateBackup
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := backup.Options{
		Name: req.Name,
		Includes: model.Includes{
			Database: req.IncludeDatabase,
			Storage:  req.IncludeStorage,
			Config:   req.IncludeConfig,
		},
	}
	if !opts.Includes.Any() {
		response.WriteError(w, http.StatusBadRequest, "at least one component must be included")
		return
	}

	rec, err := h.runner.CreateBackup(r.Context(), opts, model.OriginManual)
	if err != nil {
		writeBackupError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusCreated, rec)
}

// backupDetail augments a registry row with the bundle manifest, when the
// bundle directory still carries one.
type backupDetail struct {
	*model.Backup
	Components       []string `json:"components,omitempty"`
	ManifestWarnings []string `json:"manifest_warnings,omitempty"`
}

func (h *Backup) Get(w http.ResponseWriter, r *http.Request) {
	name, err := request.RequireName(chi.URLParam(r, "name"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.catalog.Get(r.Context(), name)
	if err != nil {
		writeBackupError(w, err)
		return
	}

	detail := backupDetail{Backup: rec}
	if m, err := backup.ReadManifest(filepath.Join(h.archiveDir, name)); err == nil {
		detail.Components = m.Components
		detail.ManifestWarnings = m.Warnings
	}

	response.WriteJSON(w, http.StatusOK, detail)
}

func (h *Backup) Delete(w http.ResponseWriter, r *http.Request) {
	name, err := request.RequireName(chi.URLParam(r, "name"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if target, active := h.gate.ActiveTarget(); active && target == name {
		response.WriteError(w, http.StatusConflict, "backup is the target of an in-flight restore")
		return
	}

	if err := h.catalog.Delete(r.Context(), name); err != nil {
		writeBackupError(w, err)
		return
	}
	if err := os.RemoveAll(filepath.Join(h.archiveDir, name)); err != nil {
		// The row is gone; a leftover directory is reclaimed by the next
		// retention pass or rescan.
		response.WriteError(w, http.StatusInternalServerError, "backup deleted but bundle removal failed: "+err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Backup) Restore(w http.ResponseWriter, r *http.Request) {
	name, err := request.RequireName(chi.URLParam(r, "name"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.RestoreBackup
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := restore.Options{
		Database:      req.RestoreDatabase,
		AuthDatabase:  req.RestoreAuthDatabase,
		Storage:       req.RestoreStorage,
		Config:        req.RestoreConfig,
		SkipPreBackup: req.SkipPreBackup,
	}

	op, err := h.restorer.Start(r.Context(), name, opts, req.InitiatedBy)
	if err != nil {
		writeBackupError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusAccepted, map[string]any{
		"operation_id": op.ID,
		"backup":       op.TargetBackupName,
		"phase":        op.Phase(),
		"started_at":   op.StartedAt.Format(time.RFC3339),
	})
}

func (h *Backup) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req request.Cleanup
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	deleted, err := h.cleaner.Cleanup(r.Context(), req.RetentionDays)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (h *Backup) Rescan(w http.ResponseWriter, r *http.Request) {
	res, err := h.rescanner.Reconcile(r.Context(), h.archiveDir)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusOK, res)
}

// writeBackupError maps service errors onto HTTP statuses.
func writeBackupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		response.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, backup.ErrRestoreInProgress):
		response.WriteError(w, http.StatusConflict, err.Error())
	default:
		response.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
