package accounts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/smmbot/internal/domain/model"
	"github.com/okian/smmbot/pkg/logger"
	"github.com/okian/smmbot/pkg/metrics"
)

const (
	defaultMaxMembers = 100
	defaultPlan       = "basic"
)

// Member activity kinds written by the manager.
const (
	ActivityCreated       = "member_created"
	ActivityStatusChanged = "status_changed"
	ActivityTargetAdded   = "target_added"
)

// MemberStore is the persistence used by MemberManager.
type MemberStore interface {
	AddMember(ctx context.Context, m model.Member) error
	GetMember(ctx context.Context, username string) (model.Member, error)
	ListMembers(ctx context.Context, status model.MemberStatus) ([]model.Member, error)
	CountMembers(ctx context.Context) (int, error)
	UpdateMemberStatus(ctx context.Context, username string, status model.MemberStatus) error
	DeleteMember(ctx context.Context, username string) error
	LogMemberActivity(ctx context.Context, a model.MemberActivity) (int64, error)
	ListMemberActivity(ctx context.Context, username string, limit int) ([]model.MemberActivity, error)
	AddTarget(ctx context.Context, t model.Target) (int64, error)
	ListTargets(ctx context.Context, username string) ([]model.Target, error)
}

// NewMember is the input of MemberManager.Create.
type NewMember struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Plan     string `json:"plan,omitempty"`
}

// MemberStats summarises all members.
type MemberStats struct {
	Total        int            `json:"total_members"`
	Active       int            `json:"active_members"`
	Inactive     int            `json:"inactive_members"`
	Suspended    int            `json:"suspended_members"`
	Plans        map[string]int `json:"plans"`
	RecentJoin   string         `json:"most_recent_join,omitempty"`
	RecentJoinAt *time.Time     `json:"most_recent_join_date,omitempty"`
}

// MemberOption applies a configuration option to the MemberManager.
type MemberOption func(*MemberManager)

// WithMaxMembers caps the number of stored members.
func WithMaxMembers(n int) MemberOption {
	return func(m *MemberManager) {
		if n > 0 {
			m.maxMembers = n
		}
	}
}

// WithMemberLogger sets the logger.
func WithMemberLogger(l logger.Logger) MemberOption {
	return func(m *MemberManager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithMemberClock replaces time.Now.
func WithMemberClock(now func() time.Time) MemberOption {
	return func(m *MemberManager) {
		if now != nil {
			m.now = now
		}
	}
}

// MemberManager creates members and keeps their activity log.
type MemberManager struct {
	store      MemberStore
	maxMembers int
	log        logger.Logger
	now        func() time.Time
}

// NewMemberManager creates a manager backed by store.
func NewMemberManager(store MemberStore, opts ...MemberOption) *MemberManager {
	m := &MemberManager{
		store:      store,
		maxMembers: defaultMaxMembers,
		log:        logger.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create stores a new active member with the default permissions.
func (m *MemberManager) Create(ctx context.Context, in NewMember) (model.Member, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return model.Member{}, fmt.Errorf("username is required: %w", ErrInvalidInput)
	}
	n, err := m.store.CountMembers(ctx)
	if err != nil {
		return model.Member{}, err
	}
	if n >= m.maxMembers {
		return model.Member{}, fmt.Errorf("%d members: %w", n, ErrLimitReached)
	}

	plan := strings.TrimSpace(in.Plan)
	if plan == "" {
		plan = defaultPlan
	}
	now := m.now()
	mem := model.Member{
		Username:    username,
		Email:       strings.TrimSpace(in.Email),
		Phone:       strings.TrimSpace(in.Phone),
		Plan:        plan,
		Status:      model.MemberActive,
		Permissions: []string{model.PermViewDashboard, model.PermBasicOperation},
		JoinedAt:    now,
		UpdatedAt:   now,
	}
	if err := m.store.AddMember(ctx, mem); err != nil {
		return model.Member{}, err
	}
	m.logActivity(ctx, username, ActivityCreated, "plan "+plan)
	m.log.Info(ctx, "member created", logger.String("username", username), logger.String("plan", plan))
	return mem, nil
}

// Get returns one member.
func (m *MemberManager) Get(ctx context.Context, username string) (model.Member, error) {
	return m.store.GetMember(ctx, username)
}

// List returns members, optionally filtered by status.
func (m *MemberManager) List(ctx context.Context, status model.MemberStatus) ([]model.Member, error) {
	return m.store.ListMembers(ctx, status)
}

// Delete removes a member with its activity and targets.
func (m *MemberManager) Delete(ctx context.Context, username string) error {
	if err := m.store.DeleteMember(ctx, username); err != nil {
		return err
	}
	m.log.Info(ctx, "member deleted", logger.String("username", username))
	return nil
}

// UpdateStatus changes a member's status and records the change.
func (m *MemberManager) UpdateStatus(ctx context.Context, username string, status model.MemberStatus) error {
	if err := m.store.UpdateMemberStatus(ctx, username, status); err != nil {
		return err
	}
	m.logActivity(ctx, username, ActivityStatusChanged, string(status))
	return nil
}

// LogActivity appends an entry to the member's activity log.
func (m *MemberManager) LogActivity(ctx context.Context, username, kind, details string) error {
	if _, err := m.store.GetMember(ctx, username); err != nil {
		return err
	}
	_, err := m.store.LogMemberActivity(ctx, model.MemberActivity{
		Username: username, Kind: kind, Details: details, At: m.now(),
	})
	return err
}

// Activity returns the newest entries of the member's activity log.
func (m *MemberManager) Activity(ctx context.Context, username string, limit int) ([]model.MemberActivity, error) {
	if _, err := m.store.GetMember(ctx, username); err != nil {
		return nil, err
	}
	return m.store.ListMemberActivity(ctx, username, limit)
}

// AddTarget stores a target URL for the member.
func (m *MemberManager) AddTarget(ctx context.Context, username, platform, url string) (model.Target, error) {
	p, err := model.ParsePlatform(strings.ToLower(strings.TrimSpace(platform)))
	if err != nil {
		return model.Target{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return model.Target{}, fmt.Errorf("url is required: %w", ErrInvalidInput)
	}
	if _, err := m.store.GetMember(ctx, username); err != nil {
		return model.Target{}, err
	}
	t := model.Target{Username: username, Platform: p, URL: url, AddedAt: m.now()}
	id, err := m.store.AddTarget(ctx, t)
	if err != nil {
		return model.Target{}, err
	}
	t.ID = id
	m.logActivity(ctx, username, ActivityTargetAdded, url)
	return t, nil
}

// Targets returns the member's targets.
func (m *MemberManager) Targets(ctx context.Context, username string) ([]model.Target, error) {
	if _, err := m.store.GetMember(ctx, username); err != nil {
		return nil, err
	}
	return m.store.ListTargets(ctx, username)
}

// Stats summarises all members and refreshes the members gauge.
func (m *MemberManager) Stats(ctx context.Context) (MemberStats, error) {
	members, err := m.store.ListMembers(ctx, "")
	if err != nil {
		return MemberStats{}, err
	}
	st := MemberStats{Plans: map[string]int{}}
	for _, mem := range members {
		st.Total++
		switch mem.Status {
		case model.MemberActive:
			st.Active++
		case model.MemberInactive:
			st.Inactive++
		case model.MemberSuspended:
			st.Suspended++
		}
		st.Plans[mem.Plan]++
		if st.RecentJoinAt == nil || mem.JoinedAt.After(*st.RecentJoinAt) {
			joined := mem.JoinedAt
			st.RecentJoinAt = &joined
			st.RecentJoin = mem.Username
		}
	}
	metrics.UpdateMembers(st.Total)
	return st, nil
}

// logActivity records a manager-generated entry; failures are only logged.
func (m *MemberManager) logActivity(ctx context.Context, username, kind, details string) {
	if _, err := m.store.LogMemberActivity(ctx, model.MemberActivity{
		Username: username, Kind: kind, Details: details, At: m.now(),
	}); err != nil {
		m.log.Warn(ctx, "member activity not recorded", logger.String("username", username), logger.Error(err))
	}
}
