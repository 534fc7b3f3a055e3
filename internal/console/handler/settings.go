package handler

import (
	"encoding/json"
	"net/http"

	"github.com/xela07ax/sentinel-console/internal/settings"
)

// SettingsStore — чтение/запись пользовательских настроек
type SettingsStore interface {
	Current() settings.Settings
	Save(next settings.Settings) error
}

type SettingsHandler struct {
	store SettingsStore
}

func NewSettingsHandler(store SettingsStore) *SettingsHandler {
	return &SettingsHandler{store: store}
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Current())
}

// Put заменяет настройки целиком. Частичных обновлений нет: фронтенд
// шлет полную форму, так нечего мержить.
func (h *SettingsHandler) Put(w http.ResponseWriter, r *http.Request) {
	var next settings.Settings
	if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.store.Save(next); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.store.Current())
}
