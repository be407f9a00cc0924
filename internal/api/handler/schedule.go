package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clavora/clavora/internal/api/request"
	"github.com/clavora/clavora/internal/api/response"
	"github.com/clavora/clavora/internal/model"
)

// ScheduleCatalog is the registry surface the schedule handler uses.
type ScheduleCatalog interface {
	CreateSchedule(ctx context.Context, s *model.BackupSchedule) error
	GetSchedule(ctx context.Context, name string) (*model.BackupSchedule, error)
	UpdateSchedule(ctx context.Context, s *model.BackupSchedule) error
	DeleteSchedule(ctx context.Context, name string) error
	ListSchedules(ctx context.Context) ([]model.BackupSchedule, error)
}

// CronValidator rejects cron expressions the scheduler cannot parse.
type CronValidator interface {
	ValidateCronExpression(expr string) error
}

type Schedule struct {
	catalog ScheduleCatalog
	cron    CronValidator
}

func NewSchedule(catalog ScheduleCatalog, cron CronValidator) *Schedule {
	return &Schedule{catalog: catalog, cron: cron}
}

func (h *Schedule) List(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.catalog.ListSchedules(r.Context())
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response.WriteList(w, http.StatusOK, schedules, len(schedules))
}

func (h *Schedule) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateSchedule
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.cron.ValidateCronExpression(req.CronExpression); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().UTC()
	sched := &model.BackupSchedule{
		Name:           req.Name,
		Enabled:        req.Enabled,
		CronExpression: req.CronExpression,
		Includes: model.Includes{
			Database: req.IncludeDatabase,
			Storage:  req.IncludeStorage,
			Config:   req.IncludeConfig,
		},
		RetentionDays: req.RetentionDays,
		CreatedBy:     req.CreatedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if !sched.Includes.Any() {
		response.WriteError(w, http.StatusBadRequest, "at least one component must be included")
		return
	}

	if err := h.catalog.CreateSchedule(r.Context(), sched); err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusCreated, sched)
}

func (h *Schedule) Get(w http.ResponseWriter, r *http.Request) {
	name, err := request.RequireName(chi.URLParam(r, "name"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	sched, err := h.catalog.GetSchedule(r.Context(), name)
	if err != nil {
		writeBackupError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, sched)
}

func (h *Schedule) Update(w http.ResponseWriter, r *http.Request) {
	name, err := request.RequireName(chi.URLParam(r, "name"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.UpdateSchedule
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.cron.ValidateCronExpression(req.CronExpression); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	sched, err := h.catalog.GetSchedule(r.Context(), name)
	if err != nil {
		writeBackupError(w, err)
		return
	}

	sched.Enabled = req.Enabled
	sched.CronExpression = req.CronExpression
	sched.Includes = model.Includes{
		Database: req.IncludeDatabase,
		Storage:  req.IncludeStorage,
		Config:   req.IncludeConfig,
	}
	sched.RetentionDays = req.RetentionDays
	if !sched.Includes.Any() {
		response.WriteError(w, http.StatusBadRequest, "at least one component must be included")
		return
	}

	if err := h.catalog.UpdateSchedule(r.Context(), sched); err != nil {
		writeBackupError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, sched)
}

func (h *Schedule) Delete(w http.ResponseWriter, r *http.Request) {
	name, err := request.RequireName(chi.URLParam(r, "name"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.catalog.DeleteSchedule(r.Context(), name); err != nil {
		writeBackupError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
