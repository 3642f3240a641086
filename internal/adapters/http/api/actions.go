package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/okian/smmbot/internal/domain/model"
)

// ActionDependencies defines the interface for action submission.
type ActionDependencies interface {
	Submit(ctx context.Context, req model.ActionRequest) (model.Action, error)
	SubmitBatch(ctx context.Context, reqs []model.ActionRequest) ([]model.BatchItem, error)
	Action(ctx context.Context, id string) (model.Action, error)
}

// ActionsHandler handles action requests.
type ActionsHandler struct {
	deps ActionDependencies
}

// NewActionsHandler creates a new actions handler.
func NewActionsHandler(deps ActionDependencies) *ActionsHandler {
	return &ActionsHandler{deps: deps}
}

type batchRequest struct {
	Actions []model.ActionRequest `json:"actions"`
}

type batchResponse struct {
	Accepted int               `json:"accepted"`
	Rejected int               `json:"rejected"`
	Results  []model.BatchItem `json:"results"`
}

// HandleSubmit handles POST /actions. The action is executed asynchronously.
func (h *ActionsHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_action"
	var req model.ActionRequest
	if err := decode(r, op, &req); err != nil {
		writeFailure(w, err)
		return
	}
	a, err := h.deps.Submit(r.Context(), req)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, a)
}

// HandleBatch handles POST /actions/batch.
func (h *ActionsHandler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_batch"
	var req batchRequest
	if err := decode(r, op, &req); err != nil {
		writeFailure(w, err)
		return
	}
	if len(req.Actions) == 0 || len(req.Actions) > maxBatchSize {
		writeFailure(w, WrapKind(op, ErrBadRequest, fmt.Errorf("batch must hold 1..%d actions", maxBatchSize)))
		return
	}
	items, err := h.deps.SubmitBatch(r.Context(), req.Actions)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	resp := batchResponse{Results: items}
	for _, it := range items {
		if it.Action != nil {
			resp.Accepted++
		} else {
			resp.Rejected++
		}
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// HandleGet handles GET /actions/{id}.
func (h *ActionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	a, err := h.deps.Action(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, Wrap("api.get_action", err))
		return
	}
	writeJSON(w, http.StatusOK, a)
}
