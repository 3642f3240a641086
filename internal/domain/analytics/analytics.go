// Package analytics builds reports from recorded activities: daily and weekly
// statistics, system health, the live dashboard snapshot and report exports.
package analytics

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/okian/smmbot/internal/adapters/repository"
	"github.com/okian/smmbot/internal/domain/model"
	"github.com/okian/smmbot/pkg/logger"
)

const (
	dirPermission  = 0o755
	filePermission = 0o644

	dashboardFile = "live_dashboard.json"
	exportStamp   = "20060102_150405"
	dateLayout    = "2006-01-02"
	weekDays      = 7

	defaultMinFree = 1 << 30
)

// Report kinds and export formats.
const (
	ReportDaily  = "daily"
	ReportWeekly = "weekly"
	FormatJSON   = "json"
	FormatCSV    = "csv"
)

// Component health states.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusDegraded  = "degraded"
	StatusOnline    = "online"
)

// Store is the read side used by Analytics.
type Store interface {
	StatsBetween(ctx context.Context, from, to time.Time) (repository.Stats, error)
	CountMembers(ctx context.Context) (int, error)
	ListBots(ctx context.Context, f repository.BotFilter) ([]model.BotAccount, error)
}

type component struct {
	name  string
	probe Probe
}

// DayTotal is one day of a weekly report.
type DayTotal struct {
	Date       string `json:"date"`
	Total      int    `json:"total"`
	Successful int    `json:"successful"`
}

// WeeklyReport aggregates the last seven days.
type WeeklyReport struct {
	Period               string                     `json:"period"`
	From                 time.Time                  `json:"from"`
	To                   time.Time                  `json:"to"`
	TotalActivities      int                        `json:"total_activities"`
	Successful           int                        `json:"successful_activities"`
	SuccessRate          float64                    `json:"success_rate"`
	PlatformDistribution map[model.Platform]int     `json:"platform_distribution"`
	DailyBreakdown       []DayTotal                 `json:"daily_breakdown"`
	SuccessRates         map[model.Platform]float64 `json:"success_rates"`
}

// ComponentHealth is one entry of the system health report.
type ComponentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Disk describes the filesystem holding the data directory.
type Disk struct {
	TotalBytes  uint64  `json:"total_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// SystemHealth is the system health report.
type SystemHealth struct {
	Timestamp       time.Time                  `json:"timestamp"`
	Status          string                     `json:"status"`
	Components      map[string]ComponentHealth `json:"components"`
	Disk            *Disk                      `json:"disk,omitempty"`
	Uptime          string                     `json:"uptime,omitempty"`
	Recommendations []string                   `json:"recommendations"`
}

// LiveStats is the headline of the dashboard.
type LiveStats struct {
	TotalMembers    int    `json:"total_members"`
	TotalBots       int    `json:"total_bots"`
	ActiveBots      int    `json:"active_bots"`
	TodayActivities int    `json:"today_activities"`
	SystemStatus    string `json:"system_status"`
}

// Dashboard is the live dashboard snapshot.
type Dashboard struct {
	LiveStats        LiveStats        `json:"live_stats"`
	TodayPerformance repository.Stats `json:"today_performance"`
	SystemHealth     SystemHealth     `json:"system_health"`
	LastUpdated      time.Time        `json:"last_updated"`
}

// Analytics computes reports from a Store.
type Analytics struct {
	store      Store
	dir        string
	dataDir    string
	components []component
	status     func() string
	started    time.Time
	minFree    uint64
	log        logger.Logger
	now        func() time.Time
}

// New creates an Analytics writing under <dataDir>/analytics.
func New(store Store, dataDir string, opts ...Option) *Analytics {
	a := &Analytics{
		store:   store,
		dataDir: dataDir,
		dir:     filepath.Join(dataDir, "analytics"),
		status:  func() string { return StatusOnline },
		minFree: defaultMinFree,
		log:     logger.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Dir returns the analytics output directory.
func (a *Analytics) Dir() string { return a.dir }

// ExportDir returns where reports are exported.
func (a *Analytics) ExportDir() string { return filepath.Join(a.dir, "exports") }

// Daily returns the statistics of the calendar day containing day.
func (a *Analytics) Daily(ctx context.Context, day time.Time) (repository.Stats, error) {
	start := startOfDay(day)
	return a.store.StatsBetween(ctx, start, start.AddDate(0, 0, 1))
}

// Weekly aggregates the seven calendar days ending with the current one.
func (a *Analytics) Weekly(ctx context.Context) (WeeklyReport, error) {
	today := startOfDay(a.now())
	from := today.AddDate(0, 0, -(weekDays - 1))
	to := today.AddDate(0, 0, 1)
	r := WeeklyReport{
		Period:               fmt.Sprintf("%s to %s", from.Format(dateLayout), today.Format(dateLayout)),
		From:                 from,
		To:                   to,
		PlatformDistribution: map[model.Platform]int{},
		DailyBreakdown:       make([]DayTotal, 0, weekDays),
		SuccessRates:         map[model.Platform]float64{},
	}
	successful := map[model.Platform]int{}
	for day := from; day.Before(to); day = day.AddDate(0, 0, 1) {
		st, err := a.store.StatsBetween(ctx, day, day.AddDate(0, 0, 1))
		if err != nil {
			return WeeklyReport{}, fmt.Errorf("stats for %s: %w", day.Format(dateLayout), err)
		}
		r.TotalActivities += st.Total
		r.Successful += st.Successful
		r.DailyBreakdown = append(r.DailyBreakdown, DayTotal{Date: day.Format(dateLayout), Total: st.Total, Successful: st.Successful})
		for p, ps := range st.Platforms {
			r.PlatformDistribution[p] += ps.Total
			successful[p] += ps.Successful
		}
	}
	if r.TotalActivities > 0 {
		r.SuccessRate = float64(r.Successful) / float64(r.TotalActivities) * 100
	}
	for p, total := range r.PlatformDistribution {
		if total > 0 {
			r.SuccessRates[p] = float64(successful[p]) / float64(total) * 100
		}
	}
	return r, nil
}

// SystemHealth probes the registered components and the data disk.
func (a *Analytics) SystemHealth(ctx context.Context) SystemHealth {
	now := a.now()
	h := SystemHealth{
		Timestamp:       now,
		Status:          StatusHealthy,
		Components:      make(map[string]ComponentHealth, len(a.components)),
		Recommendations: []string{},
	}
	for _, c := range a.components {
		ch := ComponentHealth{Status: StatusHealthy}
		if err := c.probe(ctx); err != nil {
			ch = ComponentHealth{Status: StatusUnhealthy, Error: err.Error()}
			h.Status = StatusDegraded
			h.Recommendations = append(h.Recommendations, fmt.Sprintf("Check %s: %v", c.name, err))
		}
		h.Components[c.name] = ch
	}

	if total, free, err := diskFree(a.diskPath()); err == nil && total > 0 {
		h.Disk = &Disk{
			TotalBytes:  total,
			FreeBytes:   free,
			UsedPercent: float64(total-free) / float64(total) * 100,
		}
		if free < a.minFree {
			h.Recommendations = append(h.Recommendations, "Low disk space")
		}
	} else if err != nil {
		a.log.Debug(ctx, "disk statistics unavailable", logger.Error(err))
	}
	if !a.started.IsZero() {
		h.Uptime = now.Sub(a.started).Truncate(time.Second).String()
	}
	return h
}

// diskPath returns the nearest existing directory of the data dir.
func (a *Analytics) diskPath() string {
	p := a.dataDir
	for p != "" && p != "." && p != string(filepath.Separator) {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		p = filepath.Dir(p)
	}
	if p == "" {
		return "."
	}
	return p
}

// Dashboard builds the live dashboard snapshot.
func (a *Analytics) Dashboard(ctx context.Context) (Dashboard, error) {
	members, err := a.store.CountMembers(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	bots, err := a.store.ListBots(ctx, repository.BotFilter{})
	if err != nil {
		return Dashboard{}, err
	}
	active := 0
	for _, b := range bots {
		if b.Status == model.BotActive {
			active++
		}
	}
	today, err := a.Daily(ctx, a.now())
	if err != nil {
		return Dashboard{}, err
	}
	return Dashboard{
		LiveStats: LiveStats{
			TotalMembers:    members,
			TotalBots:       len(bots),
			ActiveBots:      active,
			TodayActivities: today.Total,
			SystemStatus:    a.status(),
		},
		TodayPerformance: today,
		SystemHealth:     a.SystemHealth(ctx),
		LastUpdated:      a.now(),
	}, nil
}

// SaveDashboard builds the dashboard and writes it to live_dashboard.json.
func (a *Analytics) SaveDashboard(ctx context.Context) (Dashboard, error) {
	d, err := a.Dashboard(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	if err := writeJSON(filepath.Join(a.dir, dashboardFile), d); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}

// DashboardPath returns where SaveDashboard writes.
func (a *Analytics) DashboardPath() string { return filepath.Join(a.dir, dashboardFile) }

// Export writes a daily or weekly report as json or csv and returns the file
// path.
func (a *Analytics) Export(ctx context.Context, report, format string) (string, error) {
	if format != FormatJSON && format != FormatCSV {
		return "", fmt.Errorf("%q: %w", format, ErrUnknownFormat)
	}
	var (
		data any
		rows [][]string
	)
	switch report {
	case ReportDaily:
		st, err := a.Daily(ctx, a.now())
		if err != nil {
			return "", err
		}
		data, rows = st, dailyRows(st)
	case ReportWeekly:
		w, err := a.Weekly(ctx)
		if err != nil {
			return "", err
		}
		data, rows = w, weeklyRows(w)
	default:
		return "", fmt.Errorf("%q: %w", report, ErrUnknownReport)
	}

	path := filepath.Join(a.ExportDir(), fmt.Sprintf("%s_report_%s.%s", report, a.now().Format(exportStamp), format))
	var err error
	if format == FormatJSON {
		err = writeJSON(path, data)
	} else {
		err = writeCSV(path, rows)
	}
	if err != nil {
		return "", err
	}
	a.log.Info(ctx, "report exported", logger.String("report", report), logger.String("path", path))
	return path, nil
}

func dailyRows(st repository.Stats) [][]string {
	rows := [][]string{{"platform", "total", "successful"}}
	for _, p := range sortedPlatforms(st.Platforms) {
		ps := st.Platforms[p]
		rows = append(rows, []string{string(p), strconv.Itoa(ps.Total), strconv.Itoa(ps.Successful)})
	}
	return append(rows, []string{"all", strconv.Itoa(st.Total), strconv.Itoa(st.Successful)})
}

func weeklyRows(w WeeklyReport) [][]string {
	rows := [][]string{{"date", "total", "successful"}}
	for _, d := range w.DailyBreakdown {
		rows = append(rows, []string{d.Date, strconv.Itoa(d.Total), strconv.Itoa(d.Successful)})
	}
	return append(rows, []string{"all", strconv.Itoa(w.TotalActivities), strconv.Itoa(w.Successful)})
}

func sortedPlatforms[V any](m map[model.Platform]V) []model.Platform {
	out := make([]model.Platform, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// writeJSON writes v through a temp file so readers never see a partial file.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return writeFile(path, data)
}

func writeCSV(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPermission); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPermission); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, filePermission); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
