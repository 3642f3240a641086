// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/smmbot/internal/adapters/repository"
	service "github.com/okian/smmbot/internal/app"
	"github.com/okian/smmbot/internal/config"
	"github.com/okian/smmbot/internal/domain/accounts"
	"github.com/okian/smmbot/internal/domain/analytics"
	"github.com/okian/smmbot/internal/domain/model"
	"github.com/okian/smmbot/internal/domain/platform"
	"github.com/okian/smmbot/internal/domain/safety"
	"github.com/okian/smmbot/internal/domain/schedule"
	"github.com/okian/smmbot/pkg/logger"
)

const (
	maxBodyBytes    = 1 << 20
	maxBatchSize    = 100
	defaultListSize = 50
	maxListSize     = 1000
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	StatsProvider

	// Started reports whether the components behind the accessors exist.
	Started() bool

	Submit(ctx context.Context, req model.ActionRequest) (model.Action, error)
	SubmitBatch(ctx context.Context, reqs []model.ActionRequest) ([]model.BatchItem, error)
	Action(ctx context.Context, id string) (model.Action, error)

	Members() *accounts.MemberManager
	Bots() *accounts.BotManager
	Analytics() *analytics.Analytics
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

// Server wires HTTP routes for the business API.
type Server struct {
	deps Dependencies
	log  logger.Logger

	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	actionsHandler   *ActionsHandler
	membersHandler   *MembersHandler
	botsHandler      *BotsHandler
	analyticsHandler *AnalyticsHandler
	systemHandler    *SystemHandler
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithLogger sets the logger used for failed requests.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{deps: deps, log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler(deps)
	s.statsHandler = NewStatsHandler(deps)
	s.actionsHandler = NewActionsHandler(deps)
	s.membersHandler = NewMembersHandler(deps)
	s.botsHandler = NewBotsHandler(deps)
	s.analyticsHandler = NewAnalyticsHandler(deps)
	s.systemHandler = NewSystemHandler(deps)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	open := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, MetricsMiddleware(Recoverer(h, s.log), pattern))
	}
	// Everything else needs the service components.
	route := func(pattern string, h http.HandlerFunc) {
		open(pattern, RequireStarted(h, s.deps))
	}

	open("GET /metrics", s.healthHandler.HandleMetrics)
	open("GET /healthz", s.healthHandler.HandleHealth)
	open("GET /stats", s.statsHandler.HandleStats)

	route("POST /actions", s.actionsHandler.HandleSubmit)
	route("POST /actions/batch", s.actionsHandler.HandleBatch)
	route("GET /actions/{id}", s.actionsHandler.HandleGet)

	route("GET /members", s.membersHandler.HandleList)
	route("POST /members", s.membersHandler.HandleCreate)
	route("GET /members/stats", s.membersHandler.HandleStats)
	route("GET /members/{username}", s.membersHandler.HandleGet)
	route("DELETE /members/{username}", s.membersHandler.HandleDelete)
	route("PUT /members/{username}/status", s.membersHandler.HandleStatus)
	route("GET /members/{username}/activity", s.membersHandler.HandleActivity)
	route("GET /members/{username}/targets", s.membersHandler.HandleTargets)
	route("POST /members/{username}/targets", s.membersHandler.HandleAddTarget)

	route("GET /bots", s.botsHandler.HandleList)
	route("POST /bots", s.botsHandler.HandleAdd)
	route("GET /bots/stats", s.botsHandler.HandleStats)
	route("POST /bots/clean", s.botsHandler.HandleClean)
	route("POST /bots/rotate", s.botsHandler.HandleRotate)
	route("POST /bots/health", s.botsHandler.HandleCheckAll)
	route("GET /bots/{id}", s.botsHandler.HandleGet)
	route("DELETE /bots/{id}", s.botsHandler.HandleRemove)
	route("PUT /bots/{id}/status", s.botsHandler.HandleStatus)
	route("POST /bots/{id}/health", s.botsHandler.HandleCheck)

	route("GET /analytics/daily", s.analyticsHandler.HandleDaily)
	route("GET /analytics/weekly", s.analyticsHandler.HandleWeekly)
	route("POST /analytics/export", s.analyticsHandler.HandleExport)
	route("GET /dashboard", s.analyticsHandler.HandleDashboard)
	route("GET /health/system", s.analyticsHandler.HandleSystemHealth)
	route("GET /system/info", s.analyticsHandler.HandleSystemInfo)

	route("GET /safety/report", s.systemHandler.HandleSafetyReport)
	route("POST /safety/reset", s.systemHandler.HandleSafetyReset)
	route("GET /safety/events", s.systemHandler.HandleSafetyEvents)
	route("GET /platforms/{platform}/health", s.systemHandler.HandlePlatformHealth)
	route("GET /platforms/{platform}/limits", s.systemHandler.HandlePlatformLimits)
	route("GET /schedule", s.systemHandler.HandleSchedule)
	route("POST /backup", s.systemHandler.HandleBackup)
	route("POST /export/{table}", s.systemHandler.HandleExportTable)
	route("GET /logs", s.systemHandler.HandleLogs)
	route("GET /logs/{kind}/stats", s.systemHandler.HandleLogStats)
	route("POST /logs/{kind}/export", s.systemHandler.HandleLogExport)
	route("GET /settings/backups", s.systemHandler.HandleSettingsBackups)
	route("POST /settings/restore", s.systemHandler.HandleSettingsRestore)
	route("PATCH /settings/schedule", s.systemHandler.HandleUpdateSchedule)
	route("PATCH /settings/safety", s.systemHandler.HandleUpdateSafety)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps err onto a status code by its sentinel kind.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrNotStarted), errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, service.ErrQueueFull), errors.Is(err, ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, platform.ErrUnsupportedPlatform),
		errors.Is(err, config.ErrSettingsNotFound),
		errors.Is(err, logger.ErrLogNotFound),
		errors.Is(err, config.ErrBackupNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrDuplicate):
		return http.StatusConflict, "duplicate"
	case errors.Is(err, repository.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, accounts.ErrLimitReached):
		return http.StatusConflict, "limit_reached"
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, service.ErrInvalidAction),
		errors.Is(err, accounts.ErrInvalidInput),
		errors.Is(err, model.ErrUnknownPlatform),
		errors.Is(err, model.ErrUnknownAction),
		errors.Is(err, model.ErrUnknownStatus),
		errors.Is(err, repository.ErrInvalidTable),
		errors.Is(err, analytics.ErrUnknownReport),
		errors.Is(err, analytics.ErrUnknownFormat),
		errors.Is(err, logger.ErrUnknownKind),
		errors.Is(err, logger.ErrUnknownFormat),
		errors.Is(err, config.ErrInvalidConfig):
		return http.StatusBadRequest, "bad_request"
	}
	return http.StatusInternalServerError, "internal_error"
}

// decode reads a JSON body into v.
func decode(r *http.Request, op string, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return WrapKind(op, ErrBadRequest, err)
	}
	return nil
}

// limitParam parses the optional ?limit= query value.
func limitParam(r *http.Request, op string) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListSize, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxListSize {
		return 0, WrapKind(op, ErrBadRequest, fmt.Errorf("limit must be within 1..%d", maxListSize))
	}
	return n, nil
}

// platformParam parses the {platform} path value.
func platformParam(r *http.Request, op string) (model.Platform, error) {
	p, err := model.ParsePlatform(r.PathValue("platform"))
	if err != nil {
		return "", Wrap(op, err)
	}
	return p, nil
}
