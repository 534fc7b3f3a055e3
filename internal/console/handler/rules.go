package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/sentinel-console/internal/domain"
	"github.com/xela07ax/sentinel-console/internal/rules"
	"go.uber.org/zap"
)

// RulesService — операции над защитными правилами
type RulesService interface {
	Refresh(ctx context.Context) error
	List() []domain.Rule
	Toggle(id string, active bool) error
	Delete(id string) error
	Reset(ctx context.Context) error
	RawText(ctx context.Context) (string, error)
}

type RulesHandler struct {
	service RulesService
	logger  *zap.Logger
}

func NewRulesHandler(service RulesService, logger *zap.Logger) *RulesHandler {
	return &RulesHandler{service: service, logger: logger.Named("rules-handler")}
}

// List отдает baseline + динамические правила. Перед ответом пытаемся
// освежить динамический слой с бэкенда; отказ не фатален — отдаем кэш.
func (h *RulesHandler) List(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Refresh(r.Context()); err != nil {
		h.logger.Warn("rules refresh failed, serving cached view", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, h.service.List())
}

type toggleRequest struct {
	Active bool `json:"active"`
}

func (h *RulesHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.Toggle(chi.URLParam(r, "id"), req.Active); err != nil {
		h.writeRuleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.service.List())
}

func (h *RulesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(chi.URLParam(r, "id")); err != nil {
		h.writeRuleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.service.List())
}

func (h *RulesHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Reset(r.Context()); err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.service.List())
}

// Raw — сырое содержимое файла вакцин, как его хранит бэкенд
func (h *RulesHandler) Raw(w http.ResponseWriter, r *http.Request) {
	content, err := h.service.RawText(r.Context())
	if err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"content": content})
}

func (h *RulesHandler) writeRuleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rules.ErrBaselineImmutable):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, rules.ErrRuleNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
