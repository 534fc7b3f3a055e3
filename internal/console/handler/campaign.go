package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/xela07ax/sentinel-console/internal/campaign"
	"github.com/xela07ax/sentinel-console/internal/domain"
)

// CampaignController — операции трекера кампании
type CampaignController interface {
	Start(ctx context.Context, attackIDs []string, autoHeal bool) (domain.Campaign, error)
	Stop(ctx context.Context) (domain.Campaign, error)
	Snapshot() domain.Campaign
	Reset()
}

// AutoHealProvider — live-чтение тумблера автолечения из настроек
type AutoHealProvider interface {
	AutoHeal() bool
}

// RecordsResetter — сброс объединенной коллекции при полном сбросе
type RecordsResetter interface {
	Reset()
}

type CampaignHandler struct {
	tracker  CampaignController
	settings AutoHealProvider
	records  RecordsResetter
}

func NewCampaignHandler(tracker CampaignController, settings AutoHealProvider, records RecordsResetter) *CampaignHandler {
	return &CampaignHandler{tracker: tracker, settings: settings, records: records}
}

type startRequest struct {
	AttackIDs []string `json:"attack_ids,omitempty"`
	AutoHeal  *bool    `json:"auto_heal,omitempty"`
}

// Start запускает кампанию. Если auto_heal в теле не задан — берем
// актуальное значение из настроек на момент запуска.
func (h *CampaignHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	autoHeal := h.settings.AutoHeal()
	if req.AutoHeal != nil {
		autoHeal = *req.AutoHeal
	}

	camp, err := h.tracker.Start(r.Context(), req.AttackIDs, autoHeal)
	if err != nil {
		if errors.Is(err, campaign.ErrCampaignActive) {
			writeError(w, http.StatusConflict, "campaign is already active")
			return
		}
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, camp)
}

func (h *CampaignHandler) Stop(w http.ResponseWriter, r *http.Request) {
	camp, err := h.tracker.Stop(r.Context())
	if err != nil {
		if errors.Is(err, campaign.ErrCampaignNotActive) {
			writeError(w, http.StatusConflict, "no active campaign")
			return
		}
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, camp)
}

func (h *CampaignHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tracker.Snapshot())
}

// Reset — полный сброс локального состояния: кампания и коллекция записей.
// Сервер не трогаем, это чисто клиентская операция.
func (h *CampaignHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.tracker.Reset()
	h.records.Reset()
	writeJSON(w, http.StatusOK, h.tracker.Snapshot())
}
