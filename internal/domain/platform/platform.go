// Package platform defines the contract for executing actions against social
// networks, plus simulated drivers and a registry that routes by platform.
package platform

import (
	"context"
	"errors"
	"time"

	"github.com/okian/smmbot/internal/domain/model"
)

// Sentinel kinds for platform errors.
var (
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrRequestFailed       = errors.New("request failed")
)

// Error codes reported in failed responses.
const (
	CodeAPIError = "API_ERROR"
)

// Health states reported by CheckHealth.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Request describes one action to perform.
type Request struct {
	ActionID string           `json:"action_id,omitempty"`
	Platform model.Platform   `json:"platform"`
	Type     model.ActionType `json:"action_type"`
	Target   string           `json:"target_url"`
	Content  string           `json:"content,omitempty"`
	Token    string           `json:"-"`
}

// Response is the platform's answer to a Request. A rejected action has
// Success false and a Code; it is not an error.
type Response struct {
	ID           string           `json:"id,omitempty"`
	Success      bool             `json:"success"`
	Action       model.ActionType `json:"action"`
	Code         string           `json:"code,omitempty"`
	Message      string           `json:"error,omitempty"`
	ResponseTime time.Duration    `json:"response_time"`
	At           time.Time        `json:"timestamp"`
}

// Health is the result of a platform health check.
type Health struct {
	Platform     model.Platform `json:"platform"`
	Healthy      bool           `json:"healthy"`
	Status       string         `json:"status"`
	ResponseTime time.Duration  `json:"response_time"`
	CheckedAt    time.Time      `json:"last_checked"`
}

// RateLimits are the published limits of a platform.
type RateLimits struct {
	RequestsPerHour  int `json:"requests_per_hour"`
	RequestsPerDay   int `json:"requests_per_day"`
	ActionsPerMinute int `json:"actions_per_minute"`
}

// Driver performs actions on one platform.
type Driver interface {
	// Execute performs req, honoring ctx for cancellation.
	Execute(ctx context.Context, req Request) (Response, error)
	// CheckHealth probes the platform API.
	CheckHealth(ctx context.Context) (Health, error)
	// CheckAccount reports whether a bot account still responds.
	CheckAccount(ctx context.Context, bot model.BotAccount) (bool, error)
	// RateLimits returns the platform's published limits.
	RateLimits() RateLimits
}
