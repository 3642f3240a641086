package api

import (
	"net/http"
	"strings"

	"github.com/okian/smmbot/internal/adapters/repository"
	"github.com/okian/smmbot/internal/domain/accounts"
	"github.com/okian/smmbot/internal/domain/model"
)

// BotDependencies exposes the bot account manager.
type BotDependencies interface {
	Bots() *accounts.BotManager
}

// BotsHandler handles bot account requests.
type BotsHandler struct {
	deps BotDependencies
}

// NewBotsHandler creates a new bots handler.
func NewBotsHandler(deps BotDependencies) *BotsHandler {
	return &BotsHandler{deps: deps}
}

type rotateRequest struct {
	Platform string `json:"platform"`
}

type cleanResponse struct {
	Removed int `json:"removed"`
}

// HandleList handles GET /bots?platform=&status=.
func (h *BotsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_bots"
	var f repository.BotFilter
	q := r.URL.Query()
	if raw := q.Get("platform"); raw != "" {
		p, err := model.ParsePlatform(strings.ToLower(raw))
		if err != nil {
			writeFailure(w, Wrap(op, err))
			return
		}
		f.Platform = p
	}
	if raw := q.Get("status"); raw != "" {
		st, err := model.ParseBotStatus(strings.ToLower(raw))
		if err != nil {
			writeFailure(w, Wrap(op, err))
			return
		}
		f.Status = st
	}
	bots, err := h.deps.Bots().List(r.Context(), f)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, bots)
}

// HandleAdd handles POST /bots.
func (h *BotsHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	const op = "api.add_bot"
	var in accounts.NewBot
	if err := decode(r, op, &in); err != nil {
		writeFailure(w, err)
		return
	}
	b, err := h.deps.Bots().Add(r.Context(), in)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// HandleGet handles GET /bots/{id}.
func (h *BotsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	b, err := h.deps.Bots().Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, Wrap("api.get_bot", err))
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// HandleRemove handles DELETE /bots/{id}.
func (h *BotsHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Bots().Remove(r.Context(), r.PathValue("id")); err != nil {
		writeFailure(w, Wrap("api.remove_bot", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleStatus handles PUT /bots/{id}/status.
func (h *BotsHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	const op = "api.bot_status"
	var req statusRequest
	if err := decode(r, op, &req); err != nil {
		writeFailure(w, err)
		return
	}
	status, err := model.ParseBotStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	id := r.PathValue("id")
	if err := h.deps.Bots().UpdateStatus(r.Context(), id, status); err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	b, err := h.deps.Bots().Get(r.Context(), id)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// HandleCheck handles POST /bots/{id}/health.
func (h *BotsHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.Bots().CheckHealth(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, Wrap("api.check_bot", err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleCheckAll handles POST /bots/health.
func (h *BotsHandler) HandleCheckAll(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.Bots().CheckAll(r.Context())
	if err != nil {
		writeFailure(w, Wrap("api.check_bots", err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleClean handles POST /bots/clean.
func (h *BotsHandler) HandleClean(w http.ResponseWriter, r *http.Request) {
	n, err := h.deps.Bots().CleanDead(r.Context())
	if err != nil {
		writeFailure(w, Wrap("api.clean_bots", err))
		return
	}
	writeJSON(w, http.StatusOK, cleanResponse{Removed: n})
}

// HandleRotate handles POST /bots/rotate.
func (h *BotsHandler) HandleRotate(w http.ResponseWriter, r *http.Request) {
	const op = "api.rotate_bot"
	var req rotateRequest
	if err := decode(r, op, &req); err != nil {
		writeFailure(w, err)
		return
	}
	p, err := model.ParsePlatform(strings.ToLower(strings.TrimSpace(req.Platform)))
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	b, err := h.deps.Bots().Rotate(r.Context(), p)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// HandleStats handles GET /bots/stats.
func (h *BotsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.deps.Bots().Stats(r.Context())
	if err != nil {
		writeFailure(w, Wrap("api.bot_stats", err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}
