package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xela07ax/sentinel-console/internal/backend"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeBackendError транслирует отказ внешнего сервиса в наш ответ.
// Сообщение бэкенда доносим как есть, статус — 502: отказала не консоль.
func writeBackendError(w http.ResponseWriter, err error) {
	var be *backend.BackendError
	if errors.As(err, &be) {
		writeError(w, http.StatusBadGateway, be.Message)
		return
	}
	writeError(w, http.StatusBadGateway, err.Error())
}
