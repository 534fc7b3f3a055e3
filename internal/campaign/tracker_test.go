package campaign

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/sentinel-console/internal/backend"
	"github.com/xela07ax/sentinel-console/internal/domain"
	"go.uber.org/zap"
)

// fakeAPI — управляемая заглушка бэкенда
type fakeAPI struct {
	mu         sync.Mutex
	startResp  *backend.StartCampaignResponse
	startErr   error
	stopResp   *backend.StopCampaignResponse
	stopErr    error
	running    bool
	statusErr  error
	records    []domain.Record
	recordsErr error
	polls      int
	listGate   chan struct{} // если задан, ListRecords ждет закрытия канала
}

func (f *fakeAPI) StartCampaign(ctx context.Context, req backend.StartCampaignRequest) (*backend.StartCampaignResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startResp, f.startErr
}

func (f *fakeAPI) StopCampaign(ctx context.Context) (*backend.StopCampaignResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopResp, f.stopErr
}

func (f *fakeAPI) CampaignStatus(ctx context.Context) (*backend.CampaignStatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return &backend.CampaignStatusResponse{Running: f.running}, nil
}

func (f *fakeAPI) ListRecords(ctx context.Context) ([]domain.Record, error) {
	f.mu.Lock()
	gate := f.listGate
	recs, err := f.records, f.recordsErr
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return recs, err
}

func (f *fakeAPI) setRunning(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = v
}

func (f *fakeAPI) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

// fakeSink копит выгруженную историю
type fakeSink struct {
	mu      sync.Mutex
	batches [][]domain.Record
}

func (s *fakeSink) IngestHistory(recs []domain.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, recs)
}

func (s *fakeSink) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

// fakeNotifier копит уведомления
type fakeNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *fakeNotifier) Push(level, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, level+": "+text)
}

func (n *fakeNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.texts))
	copy(out, n.texts)
	return out
}

func newTestTracker(api *fakeAPI) (*Tracker, *fakeSink, *fakeNotifier) {
	sink := &fakeSink{}
	notifier := &fakeNotifier{}
	return NewTracker(api, sink, notifier, 10*time.Millisecond, zap.NewNop(), nil), sink, notifier
}

func TestStartSuccess(t *testing.T) {
	api := &fakeAPI{
		running: true,
		startResp: &backend.StartCampaignResponse{
			CampaignID: "c-1",
			Summary:    backend.CampaignSummary{TotalTests: 8, Passed: 5, Failed: 3},
			Attacks:    []domain.Record{{ID: "a", Category: "DATA_LEAKAGE"}},
			Skipped:    []domain.SkipEntry{{Category: "UNSAFE_STRATEGY", Reason: "already vaccinated"}},
			Message:    "Campaign launched",
		},
	}
	tr, sink, _ := newTestTracker(api)
	defer tr.Reset()

	camp, err := tr.Start(context.Background(), nil, false)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusRunning, camp.Status)
	assert.Equal(t, "c-1", camp.ID)
	assert.Equal(t, domain.Summary{Total: 8, Contained: 5, Breached: 3}, camp.Summary)
	assert.Len(t, camp.Skipped, 1)
	assert.True(t, tr.Polling())

	// Записи из ответа уходят в слияние асинхронно
	require.Eventually(t, func() bool {
		return sink.batchCount() >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestStartFailureUsesBackendMessage(t *testing.T) {
	api := &fakeAPI{
		startErr: &backend.BackendError{StatusCode: 503, Message: "Ollama is not available"},
	}
	tr, _, notifier := newTestTracker(api)

	camp, err := tr.Start(context.Background(), nil, false)
	require.Error(t, err)

	assert.Equal(t, domain.StatusFailed, camp.Status)
	assert.Equal(t, "Ollama is not available", camp.Message, "backend message passed through verbatim")
	assert.False(t, tr.Polling(), "failed start must not begin polling")
	assert.NotEmpty(t, notifier.all())
}

func TestStartWhileActiveRejected(t *testing.T) {
	api := &fakeAPI{
		running:   true,
		startResp: &backend.StartCampaignResponse{CampaignID: "c-1"},
	}
	tr, _, _ := newTestTracker(api)
	defer tr.Reset()

	_, err := tr.Start(context.Background(), nil, false)
	require.NoError(t, err)

	_, err = tr.Start(context.Background(), nil, false)
	assert.ErrorIs(t, err, ErrCampaignActive)
}

func TestPollCompletesExactlyOnce(t *testing.T) {
	api := &fakeAPI{
		running:   true,
		startResp: &backend.StartCampaignResponse{CampaignID: "c-1"},
	}
	tr, _, notifier := newTestTracker(api)
	defer tr.Reset()

	_, err := tr.Start(context.Background(), nil, false)
	require.NoError(t, err)

	api.setRunning(false)

	require.Eventually(t, func() bool {
		return tr.Snapshot().Status == domain.StatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	assert.False(t, tr.Polling(), "polling stops after completion")

	// Уведомление о завершении ровно одно
	time.Sleep(50 * time.Millisecond)
	completed := 0
	for _, text := range notifier.all() {
		if text == "info: Campaign completed" {
			completed++
		}
	}
	assert.Equal(t, 1, completed)
}

func TestPollErrorKeepsState(t *testing.T) {
	api := &fakeAPI{
		running:   true,
		startResp: &backend.StartCampaignResponse{CampaignID: "c-1"},
	}
	tr, _, _ := newTestTracker(api)
	defer tr.Reset()

	_, err := tr.Start(context.Background(), nil, false)
	require.NoError(t, err)

	api.mu.Lock()
	api.statusErr = errors.New("connection refused")
	api.mu.Unlock()

	before := api.pollCount()
	require.Eventually(t, func() bool {
		return api.pollCount() > before+2
	}, 2*time.Second, 5*time.Millisecond)

	// Отказ опроса — "неизвестно": статус не мигает
	assert.Equal(t, domain.StatusRunning, tr.Snapshot().Status)
	assert.True(t, tr.Polling())
}

func TestStopFromRunning(t *testing.T) {
	api := &fakeAPI{
		running:   true,
		startResp: &backend.StartCampaignResponse{CampaignID: "c-1"},
		stopResp:  &backend.StopCampaignResponse{Accepted: true, Message: "Stop requested"},
	}
	tr, _, _ := newTestTracker(api)
	defer tr.Reset()

	_, err := tr.Start(context.Background(), nil, false)
	require.NoError(t, err)

	camp, err := tr.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStopping, camp.Status)
	assert.Equal(t, "Stop requested", camp.Message)
}

func TestStopWithoutCampaign(t *testing.T) {
	tr, _, _ := newTestTracker(&fakeAPI{})
	_, err := tr.Stop(context.Background())
	assert.ErrorIs(t, err, ErrCampaignNotActive)
}

func TestReconcileAdoptsRunningCampaign(t *testing.T) {
	api := &fakeAPI{
		running: true,
		records: []domain.Record{{ID: "a", Category: "DATA_LEAKAGE"}},
	}
	tr, sink, _ := newTestTracker(api)
	defer tr.Reset()

	tr.Reconcile(context.Background())

	camp := tr.Snapshot()
	assert.Equal(t, domain.StatusRunning, camp.Status)
	assert.NotEmpty(t, camp.ID, "adopted campaign gets a correlation id")
	assert.True(t, tr.Polling())
	assert.GreaterOrEqual(t, sink.batchCount(), 1, "history fetched during reconcile")
}

func TestReconcileIdleWhenNothingRuns(t *testing.T) {
	api := &fakeAPI{running: false}
	tr, _, _ := newTestTracker(api)

	tr.Reconcile(context.Background())

	assert.Equal(t, domain.StatusIdle, tr.Snapshot().Status)
	assert.False(t, tr.Polling())
}

func TestStaleHistoryFetchDiscardedAfterReset(t *testing.T) {
	gate := make(chan struct{})
	api := &fakeAPI{
		running:   true,
		startResp: &backend.StartCampaignResponse{CampaignID: "c-1"},
		records:   []domain.Record{{ID: "stale", Category: "DATA_LEAKAGE"}},
		listGate:  gate,
	}
	tr, sink, _ := newTestTracker(api)

	_, err := tr.Start(context.Background(), nil, false)
	require.NoError(t, err)

	// Ждем, пока опрос дойдет до выгрузки истории и повиснет на заслонке
	require.Eventually(t, func() bool {
		return api.pollCount() >= 1
	}, 2*time.Second, 5*time.Millisecond)

	tr.Reset()
	close(gate) // выгрузка возвращается уже после сброса

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, sink.batchCount(), "fetch issued before reset must not reach the merge layer")
}

func TestResetReturnsToIdle(t *testing.T) {
	api := &fakeAPI{
		running:   true,
		startResp: &backend.StartCampaignResponse{CampaignID: "c-1"},
	}
	tr, _, _ := newTestTracker(api)

	_, err := tr.Start(context.Background(), nil, false)
	require.NoError(t, err)

	tr.Reset()

	assert.Equal(t, domain.StatusIdle, tr.Snapshot().Status)
	assert.False(t, tr.Polling())
}
