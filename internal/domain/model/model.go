// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel kinds for invalid enum values.
var (
	ErrUnknownPlatform = errors.New("unknown platform")
	ErrUnknownAction   = errors.New("unknown action type")
	ErrUnknownStatus   = errors.New("unknown status")
)

// Platform names a social network.
type Platform string

const (
	Facebook  Platform = "facebook"
	Instagram Platform = "instagram"
	Twitter   Platform = "twitter"
	YouTube   Platform = "youtube"
	TikTok    Platform = "tiktok"
)

// Platforms lists every platform a bot account may belong to.
var Platforms = []Platform{Facebook, Instagram, Twitter, YouTube, TikTok}

// ParsePlatform validates s as a Platform.
func ParsePlatform(s string) (Platform, error) {
	for _, p := range Platforms {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("%q: %w", s, ErrUnknownPlatform)
}

// ActionType is the kind of operation performed on a platform.
type ActionType string

const (
	Like    ActionType = "like"
	Comment ActionType = "comment"
	Share   ActionType = "share"
	Follow  ActionType = "follow"
	Post    ActionType = "post"
)

// ActionTypes lists the supported action types.
var ActionTypes = []ActionType{Like, Comment, Share, Follow, Post}

// ParseActionType validates s as an ActionType.
func ParseActionType(s string) (ActionType, error) {
	for _, a := range ActionTypes {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("%q: %w", s, ErrUnknownAction)
}

// ActionStatus tracks an action through the pipeline.
type ActionStatus string

const (
	ActionQueued    ActionStatus = "queued"
	ActionSucceeded ActionStatus = "succeeded"
	ActionFailed    ActionStatus = "failed"
	ActionRejected  ActionStatus = "rejected"
)

// Action is a unit of work submitted for execution.
type Action struct {
	ID        string       `json:"id"`
	Platform  Platform     `json:"platform"`
	Type      ActionType   `json:"type"`
	Target    string       `json:"target"`
	Content   string       `json:"content,omitempty"`
	BotID     string       `json:"bot_id,omitempty"`
	Member    string       `json:"member,omitempty"`
	Callback  string       `json:"callback_url,omitempty"`
	Status    ActionStatus `json:"status"`
	ResultID  string       `json:"result_id,omitempty"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// ActionRequest asks for an action to be executed. An empty ID is assigned
// on submission.
type ActionRequest struct {
	ID       string `json:"id,omitempty"`
	Platform string `json:"platform"`
	Type     string `json:"type"`
	Target   string `json:"target"`
	Content  string `json:"content,omitempty"`
	BotID    string `json:"bot_id,omitempty"`
	Member   string `json:"member,omitempty"`
	Callback string `json:"callback_url,omitempty"`
}

// BatchItem is the submission outcome of one request of a batch.
type BatchItem struct {
	Action *Action `json:"action,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// ActionResult is the outcome of executing an Action on a platform.
type ActionResult struct {
	ActionID     string        `json:"action_id"`
	Platform     Platform      `json:"platform"`
	Type         ActionType    `json:"type"`
	BotID        string        `json:"bot_id"`
	Success      bool          `json:"success"`
	ResultID     string        `json:"result_id,omitempty"`
	Message      string        `json:"message,omitempty"`
	ResponseTime time.Duration `json:"response_time"`
	At           time.Time     `json:"at"`
}

// MemberStatus is the lifecycle state of a member.
type MemberStatus string

const (
	MemberActive    MemberStatus = "active"
	MemberInactive  MemberStatus = "inactive"
	MemberSuspended MemberStatus = "suspended"
)

// ParseMemberStatus validates s as a MemberStatus.
func ParseMemberStatus(s string) (MemberStatus, error) {
	switch st := MemberStatus(s); st {
	case MemberActive, MemberInactive, MemberSuspended:
		return st, nil
	}
	return "", fmt.Errorf("member status %q: %w", s, ErrUnknownStatus)
}

// Default member permissions.
const (
	PermViewDashboard  = "view_dashboard"
	PermBasicOperation = "basic_operations"
)

// Member is a customer on whose behalf actions run.
type Member struct {
	Username    string       `json:"username"`
	Email       string       `json:"email,omitempty"`
	Phone       string       `json:"phone,omitempty"`
	Plan        string       `json:"plan"`
	Status      MemberStatus `json:"status"`
	Permissions []string     `json:"permissions"`
	JoinedAt    time.Time    `json:"join_date"`
	LastLogin   *time.Time   `json:"last_login,omitempty"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// MemberActivity is one entry in a member's activity log.
type MemberActivity struct {
	ID       int64     `json:"id"`
	Username string    `json:"username"`
	Kind     string    `json:"activity"`
	Details  string    `json:"details,omitempty"`
	At       time.Time `json:"timestamp"`
}

// Target is a URL a member wants actions aimed at.
type Target struct {
	ID       int64     `json:"id"`
	Username string    `json:"username"`
	Platform Platform  `json:"platform"`
	URL      string    `json:"url"`
	AddedAt  time.Time `json:"added_at"`
}

// BotStatus is the lifecycle state of a bot account.
type BotStatus string

const (
	BotActive    BotStatus = "active"
	BotDead      BotStatus = "dead"
	BotSuspended BotStatus = "suspended"
)

// ParseBotStatus validates s as a BotStatus.
func ParseBotStatus(s string) (BotStatus, error) {
	switch st := BotStatus(s); st {
	case BotActive, BotDead, BotSuspended:
		return st, nil
	}
	return "", fmt.Errorf("bot status %q: %w", s, ErrUnknownStatus)
}

// BotAccount is a platform account used to perform actions.
type BotAccount struct {
	ID            string     `json:"id"`
	Platform      Platform   `json:"platform"`
	Username      string     `json:"username"`
	PasswordHash  string     `json:"-"`
	Email         string     `json:"email,omitempty"`
	Status        BotStatus  `json:"status"`
	AddedAt       time.Time  `json:"added_date"`
	LastUsed      *time.Time `json:"last_used,omitempty"`
	TotalActions  int        `json:"total_actions"`
	FailedActions int        `json:"failed_actions"`
	SuccessRate   float64    `json:"success_rate"`
}

// BotID builds the identifier of a bot account.
func BotID(p Platform, username string) string {
	return string(p) + "_" + username
}

// Activity is a recorded platform operation.
type Activity struct {
	ID           int64         `json:"id"`
	ActionID     string        `json:"action_id,omitempty"`
	Member       string        `json:"member,omitempty"`
	BotID        string        `json:"bot_id,omitempty"`
	Kind         string        `json:"activity_type"`
	Platform     Platform      `json:"platform"`
	Target       string        `json:"target_url,omitempty"`
	Success      bool          `json:"success"`
	ResponseTime time.Duration `json:"response_time"`
	Details      string        `json:"details,omitempty"`
	At           time.Time     `json:"created_at"`
}
