package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/xela07ax/sentinel-console/internal/backend"
	"github.com/xela07ax/sentinel-console/internal/domain"
)

// RecordsProvider Описываем, что нам нужно от слоя слияния
type RecordsProvider interface {
	SnapshotByTime() []domain.Record
}

// RecordSubmitter — отправка одиночной атаки на бэкенд
type RecordSubmitter interface {
	SubmitRecord(ctx context.Context, req backend.SubmitRecordRequest) (*domain.Record, error)
}

// RecordSink — возврат результата в объединенную коллекцию
type RecordSink interface {
	Ingest(rec domain.Record)
}

// Coverage — категории, уже закрытые активной вакциной
type Coverage interface {
	Covered(category string) bool
}

type RecordsHandler struct {
	records   RecordsProvider
	submitter RecordSubmitter
	sink      RecordSink
	coverage  Coverage
}

func NewRecordsHandler(records RecordsProvider, submitter RecordSubmitter, sink RecordSink, coverage Coverage) *RecordsHandler {
	return &RecordsHandler{records: records, submitter: submitter, sink: sink, coverage: coverage}
}

// List отдает объединенную коллекцию, отсортированную по времени создания.
// Порядок вставки причинность не отражает — источники гонятся.
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.records.SnapshotByTime())
}

type SubmitRequest struct {
	Category  string `json:"category"`
	Objective string `json:"objective"`
	Persona   string `json:"persona"`
	Prompt    string `json:"prompt"`
	AutoHeal  *bool  `json:"auto_heal,omitempty"`
	// Force обходит skip-проверку: прогнать атаку, даже если категория привита
	Force bool `json:"force,omitempty"`
}

// Submit прогоняет одиночную атаку и вливает результат в коллекцию.
// Категория, уже закрытая активной вакциной, по умолчанию пропускается —
// та же дедупликация, что у кампаний.
func (h *RecordsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Category == "" || req.Objective == "" || req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "category, objective and prompt are required")
		return
	}

	if !req.Force && h.coverage != nil && h.coverage.Covered(req.Category) {
		writeJSON(w, http.StatusOK, domain.SkipEntry{
			Category: req.Category,
			Reason:   "category already covered by an active vaccine",
		})
		return
	}

	rec, err := h.submitter.SubmitRecord(r.Context(), backend.SubmitRecordRequest{
		Category:  req.Category,
		Objective: req.Objective,
		Persona:   req.Persona,
		Prompt:    req.Prompt,
		AutoHeal:  req.AutoHeal,
	})
	if err != nil {
		writeBackendError(w, err)
		return
	}

	h.sink.Ingest(*rec)
	writeJSON(w, http.StatusCreated, rec)
}
