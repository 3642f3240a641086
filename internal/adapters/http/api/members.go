package api

import (
	"net/http"
	"strings"

	"github.com/okian/smmbot/internal/domain/accounts"
	"github.com/okian/smmbot/internal/domain/model"
)

// MemberDependencies exposes the member manager.
type MemberDependencies interface {
	Members() *accounts.MemberManager
}

// MembersHandler handles member requests.
type MembersHandler struct {
	deps MemberDependencies
}

// NewMembersHandler creates a new members handler.
func NewMembersHandler(deps MemberDependencies) *MembersHandler {
	return &MembersHandler{deps: deps}
}

type statusRequest struct {
	Status string `json:"status"`
}

type targetRequest struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
}

// HandleList handles GET /members?status=.
func (h *MembersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_members"
	var status model.MemberStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, err := model.ParseMemberStatus(strings.ToLower(raw))
		if err != nil {
			writeFailure(w, Wrap(op, err))
			return
		}
		status = st
	}
	members, err := h.deps.Members().List(r.Context(), status)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, members)
}

// HandleCreate handles POST /members.
func (h *MembersHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_member"
	var in accounts.NewMember
	if err := decode(r, op, &in); err != nil {
		writeFailure(w, err)
		return
	}
	m, err := h.deps.Members().Create(r.Context(), in)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// HandleGet handles GET /members/{username}.
func (h *MembersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	m, err := h.deps.Members().Get(r.Context(), r.PathValue("username"))
	if err != nil {
		writeFailure(w, Wrap("api.get_member", err))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// HandleDelete handles DELETE /members/{username}.
func (h *MembersHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Members().Delete(r.Context(), r.PathValue("username")); err != nil {
		writeFailure(w, Wrap("api.delete_member", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleStatus handles PUT /members/{username}/status.
func (h *MembersHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	const op = "api.member_status"
	var req statusRequest
	if err := decode(r, op, &req); err != nil {
		writeFailure(w, err)
		return
	}
	status, err := model.ParseMemberStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	username := r.PathValue("username")
	if err := h.deps.Members().UpdateStatus(r.Context(), username, status); err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	m, err := h.deps.Members().Get(r.Context(), username)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// HandleActivity handles GET /members/{username}/activity?limit=.
func (h *MembersHandler) HandleActivity(w http.ResponseWriter, r *http.Request) {
	const op = "api.member_activity"
	limit, err := limitParam(r, op)
	if err != nil {
		writeFailure(w, err)
		return
	}
	acts, err := h.deps.Members().Activity(r.Context(), r.PathValue("username"), limit)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, acts)
}

// HandleTargets handles GET /members/{username}/targets.
func (h *MembersHandler) HandleTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := h.deps.Members().Targets(r.Context(), r.PathValue("username"))
	if err != nil {
		writeFailure(w, Wrap("api.member_targets", err))
		return
	}
	writeJSON(w, http.StatusOK, targets)
}

// HandleAddTarget handles POST /members/{username}/targets.
func (h *MembersHandler) HandleAddTarget(w http.ResponseWriter, r *http.Request) {
	const op = "api.add_target"
	var req targetRequest
	if err := decode(r, op, &req); err != nil {
		writeFailure(w, err)
		return
	}
	t, err := h.deps.Members().AddTarget(r.Context(), r.PathValue("username"), req.Platform, req.URL)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// HandleStats handles GET /members/stats.
func (h *MembersHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.deps.Members().Stats(r.Context())
	if err != nil {
		writeFailure(w, Wrap("api.member_stats", err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}
