package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/xela07ax/sentinel-console/internal/backend"
	"github.com/xela07ax/sentinel-console/internal/domain"
	"github.com/xela07ax/sentinel-console/internal/heal"
)

type stubDecider struct {
	rec domain.Record
	err error
}

func (s *stubDecider) Approve(ctx context.Context, id string) (domain.Record, error) {
	return s.rec, s.err
}

func (s *stubDecider) Reject(ctx context.Context, id string) (domain.Record, error) {
	return s.rec, s.err
}

func healRouter(d *stubDecider) http.Handler {
	h := NewHealHandler(d)
	r := chi.NewRouter()
	r.Post("/api/heal/{id}/approve", h.Approve)
	r.Post("/api/heal/{id}/reject", h.Reject)
	return r
}

func TestHealErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"ok", nil, http.StatusOK},
		{"unknown record", heal.ErrUnknownRecord, http.StatusNotFound},
		{"conflict", heal.ErrDecisionConflict, http.StatusConflict},
		{"not pending", heal.ErrNotPending, http.StatusConflict},
		{"backend down", &backend.BackendError{StatusCode: 503, Message: "offline"}, http.StatusBadGateway},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := healRouter(&stubDecider{
				rec: domain.Record{ID: "a", Category: "X"},
				err: tc.err,
			})

			req := httptest.NewRequest(http.MethodPost, "/api/heal/a/approve", nil)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code)
			assert.True(t, strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json"))
		})
	}
}

func TestRejectRoute(t *testing.T) {
	router := healRouter(&stubDecider{rec: domain.Record{ID: "a", Category: "X", Approval: domain.ApprovalRejected}})

	req := httptest.NewRequest(http.MethodPost, "/api/heal/a/reject", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"rejected"`)
}
