// Package client talks to the smmbot daemon over its HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/okian/smmbot/internal/config"
	"github.com/okian/smmbot/internal/domain/accounts"
	"github.com/okian/smmbot/internal/domain/model"
	"github.com/okian/smmbot/pkg/logger"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 30 * time.Second

// Sentinel kinds for failed calls.
var (
	ErrRequest     = errors.New("request failed")
	ErrUnavailable = errors.New("daemon unavailable")
)

// APIError is a non-2xx response decoded from the daemon's {code, message}
// error body.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// Unwrap lets callers test 503 responses with errors.Is(err, ErrUnavailable).
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusServiceUnavailable {
		return ErrUnavailable
	}
	return ErrRequest
}

// Client wraps http.Client with the daemon's base URL.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// New creates a client for the daemon at baseURL, e.g. http://localhost:9090.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the daemon address.
func (c *Client) BaseURL() string { return c.baseURL }

// do sends in as a JSON body (when non-nil) and decodes the response into out
// (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", method, path, ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = strings.ToLower(strings.ReplaceAll(http.StatusText(resp.StatusCode), " ", "_"))
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

type statusBody struct {
	Status string `json:"status"`
}

type pathBody struct {
	Path string `json:"path"`
}

// Health reports whether the daemon is up and started.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// Stats returns the service counters.
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, http.MethodGet, "/stats", nil, &out)
	return out, err
}

// BatchResult is the response of a batch submission.
type BatchResult struct {
	Accepted int               `json:"accepted"`
	Rejected int               `json:"rejected"`
	Results  []model.BatchItem `json:"results"`
}

// Submit queues one action.
func (c *Client) Submit(ctx context.Context, req model.ActionRequest) (model.Action, error) {
	var out model.Action
	err := c.do(ctx, http.MethodPost, "/actions", req, &out)
	return out, err
}

// SubmitBatch queues several actions in one request.
func (c *Client) SubmitBatch(ctx context.Context, reqs []model.ActionRequest) (BatchResult, error) {
	var out BatchResult
	in := struct {
		Actions []model.ActionRequest `json:"actions"`
	}{Actions: reqs}
	err := c.do(ctx, http.MethodPost, "/actions/batch", in, &out)
	return out, err
}

// Action fetches an action by id.
func (c *Client) Action(ctx context.Context, id string) (model.Action, error) {
	var out model.Action
	err := c.do(ctx, http.MethodGet, "/actions/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Members lists members, optionally filtered by status.
func (c *Client) Members(ctx context.Context, status string) ([]model.Member, error) {
	path := "/members"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var out []model.Member
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// AddMember registers a member.
func (c *Client) AddMember(ctx context.Context, in accounts.NewMember) (model.Member, error) {
	var out model.Member
	err := c.do(ctx, http.MethodPost, "/members", in, &out)
	return out, err
}

// Member fetches one member.
func (c *Client) Member(ctx context.Context, username string) (model.Member, error) {
	var out model.Member
	err := c.do(ctx, http.MethodGet, "/members/"+url.PathEscape(username), nil, &out)
	return out, err
}

// RemoveMember deletes a member.
func (c *Client) RemoveMember(ctx context.Context, username string) error {
	return c.do(ctx, http.MethodDelete, "/members/"+url.PathEscape(username), nil, nil)
}

// SetMemberStatus changes a member's status.
func (c *Client) SetMemberStatus(ctx context.Context, username, status string) (model.Member, error) {
	var out model.Member
	err := c.do(ctx, http.MethodPut, "/members/"+url.PathEscape(username)+"/status", statusBody{Status: status}, &out)
	return out, err
}

// MemberActivity returns a member's most recent activity entries.
func (c *Client) MemberActivity(ctx context.Context, username string, limit int) ([]model.MemberActivity, error) {
	var out []model.MemberActivity
	path := fmt.Sprintf("/members/%s/activity?limit=%d", url.PathEscape(username), limit)
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// MemberStats returns member counters.
func (c *Client) MemberStats(ctx context.Context) (accounts.MemberStats, error) {
	var out accounts.MemberStats
	err := c.do(ctx, http.MethodGet, "/members/stats", nil, &out)
	return out, err
}

// Bots lists bot accounts, optionally filtered.
func (c *Client) Bots(ctx context.Context, platform, status string) ([]model.BotAccount, error) {
	q := url.Values{}
	if platform != "" {
		q.Set("platform", platform)
	}
	if status != "" {
		q.Set("status", status)
	}
	path := "/bots"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []model.BotAccount
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// AddBot registers a bot account.
func (c *Client) AddBot(ctx context.Context, in accounts.NewBot) (model.BotAccount, error) {
	var out model.BotAccount
	err := c.do(ctx, http.MethodPost, "/bots", in, &out)
	return out, err
}

// RemoveBot deletes a bot account.
func (c *Client) RemoveBot(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/bots/"+url.PathEscape(id), nil, nil)
}

// CheckBot probes one bot account.
func (c *Client) CheckBot(ctx context.Context, id string) (accounts.BotHealth, error) {
	var out accounts.BotHealth
	err := c.do(ctx, http.MethodPost, "/bots/"+url.PathEscape(id)+"/health", nil, &out)
	return out, err
}

// CheckBots probes every bot account.
func (c *Client) CheckBots(ctx context.Context) ([]accounts.BotHealth, error) {
	var out []accounts.BotHealth
	err := c.do(ctx, http.MethodPost, "/bots/health", nil, &out)
	return out, err
}

// CleanBots removes dead bot accounts and returns how many went.
func (c *Client) CleanBots(ctx context.Context) (int, error) {
	var out struct {
		Removed int `json:"removed"`
	}
	err := c.do(ctx, http.MethodPost, "/bots/clean", nil, &out)
	return out.Removed, err
}

// RotateBot returns the next active bot of a platform.
func (c *Client) RotateBot(ctx context.Context, platform string) (model.BotAccount, error) {
	var out model.BotAccount
	in := struct {
		Platform string `json:"platform"`
	}{Platform: platform}
	err := c.do(ctx, http.MethodPost, "/bots/rotate", in, &out)
	return out, err
}

// BotStats returns bot counters.
func (c *Client) BotStats(ctx context.Context) (accounts.BotStats, error) {
	var out accounts.BotStats
	err := c.do(ctx, http.MethodGet, "/bots/stats", nil, &out)
	return out, err
}

// Daily returns the statistics of one day (YYYY-MM-DD); empty means today.
func (c *Client) Daily(ctx context.Context, date string) (map[string]any, error) {
	path := "/analytics/daily"
	if date != "" {
		path += "?date=" + url.QueryEscape(date)
	}
	var out map[string]any
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Weekly returns the seven-day report.
func (c *Client) Weekly(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, http.MethodGet, "/analytics/weekly", nil, &out)
	return out, err
}

// Dashboard returns and saves a dashboard snapshot.
func (c *Client) Dashboard(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, http.MethodGet, "/dashboard", nil, &out)
	return out, err
}

// SystemHealth returns component health.
func (c *Client) SystemHealth(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, http.MethodGet, "/health/system", nil, &out)
	return out, err
}

// SystemInfo returns host and runtime details of the daemon.
func (c *Client) SystemInfo(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, http.MethodGet, "/system/info", nil, &out)
	return out, err
}

// Export writes a report on the daemon host and returns its path.
func (c *Client) Export(ctx context.Context, report, format string) (string, error) {
	var out pathBody
	in := struct {
		Report string `json:"report"`
		Format string `json:"format"`
	}{Report: report, Format: format}
	err := c.do(ctx, http.MethodPost, "/analytics/export", in, &out)
	return out.Path, err
}

// SafetyReport returns the safety monitor report.
func (c *Client) SafetyReport(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, http.MethodGet, "/safety/report", nil, &out)
	return out, err
}

// ResetSafety clears the safety window and any suspension.
func (c *Client) ResetSafety(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/safety/reset", nil, nil)
}

// Schedule returns the scheduler state.
func (c *Client) Schedule(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, http.MethodGet, "/schedule", nil, &out)
	return out, err
}

// Backup snapshots the database on the daemon host and returns its path.
func (c *Client) Backup(ctx context.Context) (string, error) {
	var out pathBody
	err := c.do(ctx, http.MethodPost, "/backup", nil, &out)
	return out.Path, err
}

// ExportTable writes a table as CSV on the daemon host and returns its path.
func (c *Client) ExportTable(ctx context.Context, table string) (string, error) {
	var out pathBody
	err := c.do(ctx, http.MethodPost, "/export/"+url.PathEscape(table), nil, &out)
	return out.Path, err
}

// Logs returns the most recent system log rows.
func (c *Client) Logs(ctx context.Context, limit int) ([]map[string]any, error) {
	var out []map[string]any
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/logs?limit=%d", limit), nil, &out)
	return out, err
}

// LogStats summarizes one daemon log file: system, errors or activity.
func (c *Client) LogStats(ctx context.Context, kind string) (logger.Stats, error) {
	var out logger.Stats
	err := c.do(ctx, http.MethodGet, "/logs/"+url.PathEscape(kind)+"/stats", nil, &out)
	return out, err
}

// ExportLogs exports one daemon log file as json or text and returns the
// export path on the daemon host.
func (c *Client) ExportLogs(ctx context.Context, kind, format string) (string, error) {
	var out pathBody
	path := "/logs/" + url.PathEscape(kind) + "/export?format=" + url.QueryEscape(format)
	err := c.do(ctx, http.MethodPost, path, nil, &out)
	return out.Path, err
}

// UpdateSchedule merges partial into the schedule settings.
func (c *Client) UpdateSchedule(ctx context.Context, partial map[string]any) error {
	return c.do(ctx, http.MethodPatch, "/settings/schedule", partial, nil)
}

// UpdateSafety merges partial into the safety settings.
func (c *Client) UpdateSafety(ctx context.Context, partial map[string]any) error {
	return c.do(ctx, http.MethodPatch, "/settings/safety", partial, nil)
}

// SettingsBackups lists the backups of a settings file; empty name means the
// main file.
func (c *Client) SettingsBackups(ctx context.Context, name string) ([]config.Backup, error) {
	path := "/settings/backups"
	if name != "" {
		path += "?name=" + url.QueryEscape(name)
	}
	var out []config.Backup
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// RestoreSettings replaces a settings file with one of its backups.
func (c *Client) RestoreSettings(ctx context.Context, name, backup string) error {
	in := struct {
		Name   string `json:"name,omitempty"`
		Backup string `json:"backup"`
	}{Name: name, Backup: backup}
	return c.do(ctx, http.MethodPost, "/settings/restore", in, nil)
}
