package handler

import (
	"net/http"

	"github.com/xela07ax/sentinel-console/internal/console/service"
	"github.com/xela07ax/sentinel-console/internal/domain"
	"github.com/xela07ax/sentinel-console/internal/stream"
)

// RecordStats — агрегаты по объединенной коллекции
type RecordStats interface {
	Stats() (total, contained, breached, pending int)
}

// CampaignSnapshot — текущее состояние кампании
type CampaignSnapshot interface {
	Snapshot() domain.Campaign
	Polling() bool
}

// StreamState — состояние push-канала
type StreamState interface {
	Connected() bool
	State() stream.State
}

// RulesCounter — сколько правил активно
type RulesCounter interface {
	List() []domain.Rule
}

// NoticeSource — одноразовые уведомления
type NoticeSource interface {
	Drain() []service.Notice
}

type StatsHandler struct {
	records  RecordStats
	campaign CampaignSnapshot
	stream   StreamState
	rules    RulesCounter
	notices  NoticeSource
}

func NewStatsHandler(records RecordStats, campaign CampaignSnapshot, stream StreamState, rules RulesCounter, notices NoticeSource) *StatsHandler {
	return &StatsHandler{
		records:  records,
		campaign: campaign,
		stream:   stream,
		rules:    rules,
		notices:  notices,
	}
}

// DashboardView — один снимок для главного экрана
type DashboardView struct {
	Records struct {
		Total     int `json:"total"`
		Contained int `json:"contained"`
		Breached  int `json:"breached"`
		Pending   int `json:"pending"`
	} `json:"records"`
	SuccessRate float64         `json:"success_rate"`
	Campaign    domain.Campaign `json:"campaign"`
	Polling     bool            `json:"polling"`
	Stream      struct {
		Connected bool   `json:"connected"`
		State     string `json:"state"`
	} `json:"stream"`
	ActiveRules int `json:"active_rules"`
}

func (h *StatsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	var view DashboardView

	total, contained, breached, pending := h.records.Stats()
	view.Records.Total = total
	view.Records.Contained = contained
	view.Records.Breached = breached
	view.Records.Pending = pending

	// Доля сдержанных атак. Пустая коллекция — 100%: пробоев не было.
	if total > 0 {
		view.SuccessRate = float64(contained) / float64(total) * 100
	} else {
		view.SuccessRate = 100
	}

	view.Campaign = h.campaign.Snapshot()
	view.Polling = h.campaign.Polling()
	view.Stream.Connected = h.stream.Connected()
	view.Stream.State = string(h.stream.State())

	for _, rule := range h.rules.List() {
		if rule.Active {
			view.ActiveRules++
		}
	}

	writeJSON(w, http.StatusOK, view)
}

// Notifications отдает накопленные уведомления и очищает буфер
func (h *StatsHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.notices.Drain())
}
