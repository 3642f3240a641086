package api

import (
	"context"
	"net/http"

	"github.com/okian/smmbot/internal/adapters/repository"
	"github.com/okian/smmbot/internal/config"
	"github.com/okian/smmbot/internal/domain/model"
	"github.com/okian/smmbot/internal/domain/platform"
	"github.com/okian/smmbot/internal/domain/safety"
	"github.com/okian/smmbot/internal/domain/schedule"
	"github.com/okian/smmbot/pkg/logger"
)

// SystemDependencies exposes safety, platforms, scheduling and maintenance.
type SystemDependencies interface {
	Safety() *safety.Monitor
	Settings() *config.Settings
	Schedule() schedule.State
	SafetyEvents(ctx context.Context, limit int) ([]safety.Event, error)
	SystemLogs(ctx context.Context, limit int) ([]repository.SystemLog, error)
	LogStats(kind string) (logger.Stats, error)
	ExportLogs(kind, format string) (string, error)
	PlatformHealth(ctx context.Context, p model.Platform) (platform.Health, error)
	PlatformLimits(p model.Platform) (platform.RateLimits, error)
	Backup(ctx context.Context) (string, error)
	ExportTable(ctx context.Context, table string) (string, error)
}

// SystemHandler handles safety, platform and maintenance requests.
type SystemHandler struct {
	deps SystemDependencies
}

// NewSystemHandler creates a new system handler.
func NewSystemHandler(deps SystemDependencies) *SystemHandler {
	return &SystemHandler{deps: deps}
}

type restoreRequest struct {
	Name   string `json:"name"`
	Backup string `json:"backup"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// HandleSafetyReport handles GET /safety/report.
func (h *SystemHandler) HandleSafetyReport(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Safety().Report())
}

// HandleSafetyReset handles POST /safety/reset.
func (h *SystemHandler) HandleSafetyReset(w http.ResponseWriter, r *http.Request) {
	h.deps.Safety().Reset(r.Context())
	writeJSON(w, http.StatusOK, statusResponse{Status: "reset"})
}

// HandleSafetyEvents handles GET /safety/events?limit=.
func (h *SystemHandler) HandleSafetyEvents(w http.ResponseWriter, r *http.Request) {
	const op = "api.safety_events"
	limit, err := limitParam(r, op)
	if err != nil {
		writeFailure(w, err)
		return
	}
	events, err := h.deps.SafetyEvents(r.Context(), limit)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// HandlePlatformHealth handles GET /platforms/{platform}/health.
func (h *SystemHandler) HandlePlatformHealth(w http.ResponseWriter, r *http.Request) {
	const op = "api.platform_health"
	p, err := platformParam(r, op)
	if err != nil {
		writeFailure(w, err)
		return
	}
	res, err := h.deps.PlatformHealth(r.Context(), p)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandlePlatformLimits handles GET /platforms/{platform}/limits.
func (h *SystemHandler) HandlePlatformLimits(w http.ResponseWriter, r *http.Request) {
	const op = "api.platform_limits"
	p, err := platformParam(r, op)
	if err != nil {
		writeFailure(w, err)
		return
	}
	res, err := h.deps.PlatformLimits(p)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleSchedule handles GET /schedule.
func (h *SystemHandler) HandleSchedule(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Schedule())
}

// HandleBackup handles POST /backup.
func (h *SystemHandler) HandleBackup(w http.ResponseWriter, r *http.Request) {
	path, err := h.deps.Backup(r.Context())
	if err != nil {
		writeFailure(w, Wrap("api.backup", err))
		return
	}
	writeJSON(w, http.StatusCreated, pathResponse{Path: path})
}

// HandleExportTable handles POST /export/{table}.
func (h *SystemHandler) HandleExportTable(w http.ResponseWriter, r *http.Request) {
	path, err := h.deps.ExportTable(r.Context(), r.PathValue("table"))
	if err != nil {
		writeFailure(w, Wrap("api.export_table", err))
		return
	}
	writeJSON(w, http.StatusCreated, pathResponse{Path: path})
}

// HandleLogs handles GET /logs?limit=.
func (h *SystemHandler) HandleLogs(w http.ResponseWriter, r *http.Request) {
	const op = "api.system_logs"
	limit, err := limitParam(r, op)
	if err != nil {
		writeFailure(w, err)
		return
	}
	logs, err := h.deps.SystemLogs(r.Context(), limit)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// HandleLogStats handles GET /logs/{kind}/stats.
func (h *SystemHandler) HandleLogStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.deps.LogStats(r.PathValue("kind"))
	if err != nil {
		writeFailure(w, Wrap("api.log_stats", err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleLogExport handles POST /logs/{kind}/export?format=json|text.
func (h *SystemHandler) HandleLogExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	path, err := h.deps.ExportLogs(r.PathValue("kind"), format)
	if err != nil {
		writeFailure(w, Wrap("api.log_export", err))
		return
	}
	writeJSON(w, http.StatusCreated, pathResponse{Path: path})
}

// HandleSettingsBackups handles GET /settings/backups?name=.
func (h *SystemHandler) HandleSettingsBackups(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		name = h.deps.Settings().Main()
	}
	backups, err := h.deps.Settings().ListBackups(name)
	if err != nil {
		writeFailure(w, Wrap("api.settings_backups", err))
		return
	}
	writeJSON(w, http.StatusOK, backups)
}

// HandleSettingsRestore handles POST /settings/restore.
func (h *SystemHandler) HandleSettingsRestore(w http.ResponseWriter, r *http.Request) {
	const op = "api.settings_restore"
	req := restoreRequest{Name: h.deps.Settings().Main()}
	if err := decode(r, op, &req); err != nil {
		writeFailure(w, err)
		return
	}
	if req.Backup == "" {
		writeFailure(w, NewKind(op, ErrBadRequest))
		return
	}
	if err := h.deps.Settings().Restore(req.Name, req.Backup); err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "restored"})
}

// HandleUpdateSchedule handles PATCH /settings/schedule.
func (h *SystemHandler) HandleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	h.updateSection(w, r, "api.update_schedule", h.deps.Settings().UpdateSchedule)
}

// HandleUpdateSafety handles PATCH /settings/safety.
func (h *SystemHandler) HandleUpdateSafety(w http.ResponseWriter, r *http.Request) {
	h.updateSection(w, r, "api.update_safety", h.deps.Settings().UpdateSafetyRules)
}

func (h *SystemHandler) updateSection(w http.ResponseWriter, r *http.Request, op string, update func(map[string]any) error) {
	var partial map[string]any
	if err := decode(r, op, &partial); err != nil {
		writeFailure(w, err)
		return
	}
	if len(partial) == 0 {
		writeFailure(w, NewKind(op, ErrBadRequest))
		return
	}
	if err := update(partial); err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "updated"})
}
