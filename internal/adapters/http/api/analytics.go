package api

import (
	"net/http"
	"time"

	"github.com/okian/smmbot/internal/domain/analytics"
)

const dateLayout = "2006-01-02"

// AnalyticsDependencies exposes the reporting component.
type AnalyticsDependencies interface {
	Analytics() *analytics.Analytics
}

// AnalyticsHandler handles reporting requests.
type AnalyticsHandler struct {
	deps AnalyticsDependencies
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(deps AnalyticsDependencies) *AnalyticsHandler {
	return &AnalyticsHandler{deps: deps}
}

type exportRequest struct {
	Report string `json:"report"`
	Format string `json:"format"`
}

type pathResponse struct {
	Path string `json:"path"`
}

// HandleDaily handles GET /analytics/daily?date=YYYY-MM-DD. The date
// defaults to today.
func (h *AnalyticsHandler) HandleDaily(w http.ResponseWriter, r *http.Request) {
	const op = "api.daily_stats"
	day := time.Now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := time.ParseInLocation(dateLayout, raw, time.Local)
		if err != nil {
			writeFailure(w, WrapKind(op, ErrBadRequest, err))
			return
		}
		day = d
	}
	st, err := h.deps.Analytics().Daily(r.Context(), day)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleWeekly handles GET /analytics/weekly.
func (h *AnalyticsHandler) HandleWeekly(w http.ResponseWriter, r *http.Request) {
	rep, err := h.deps.Analytics().Weekly(r.Context())
	if err != nil {
		writeFailure(w, Wrap("api.weekly_report", err))
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// HandleExport handles POST /analytics/export.
func (h *AnalyticsHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	const op = "api.export_report"
	req := exportRequest{Report: analytics.ReportDaily, Format: analytics.FormatJSON}
	if err := decode(r, op, &req); err != nil {
		writeFailure(w, err)
		return
	}
	path, err := h.deps.Analytics().Export(r.Context(), req.Report, req.Format)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, pathResponse{Path: path})
}

// HandleDashboard handles GET /dashboard and refreshes the saved snapshot.
func (h *AnalyticsHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.deps.Analytics().SaveDashboard(r.Context())
	if err != nil {
		writeFailure(w, Wrap("api.dashboard", err))
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// HandleSystemHealth handles GET /health/system.
func (h *AnalyticsHandler) HandleSystemHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Analytics().SystemHealth(r.Context()))
}

// HandleSystemInfo handles GET /system/info.
func (h *AnalyticsHandler) HandleSystemInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Analytics().SystemInfo())
}
