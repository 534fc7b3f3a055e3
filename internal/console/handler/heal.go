package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/sentinel-console/internal/domain"
	"github.com/xela07ax/sentinel-console/internal/heal"
)

// HealDecider — решения по лечению
type HealDecider interface {
	Approve(ctx context.Context, id string) (domain.Record, error)
	Reject(ctx context.Context, id string) (domain.Record, error)
}

type HealHandler struct {
	workflow HealDecider
}

func NewHealHandler(workflow HealDecider) *HealHandler {
	return &HealHandler{workflow: workflow}
}

func (h *HealHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.workflow.Approve)
}

func (h *HealHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.workflow.Reject)
}

func (h *HealHandler) decide(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (domain.Record, error)) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "record id is required")
		return
	}

	rec, err := fn(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, rec)
	case errors.Is(err, heal.ErrUnknownRecord):
		writeError(w, http.StatusNotFound, "record not found")
	case errors.Is(err, heal.ErrDecisionConflict), errors.Is(err, heal.ErrNotPending):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeBackendError(w, err)
	}
}
