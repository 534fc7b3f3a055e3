package campaign

/*
Пакет campaign сверяет локальное представление о кампании с правдой сервера.

Три источника истины о статусе: ответ на явный start/stop, периодический
опрос и сверка при старте клиента (перезагрузка теряет память — сервер
нет). Правила разрешения гонок:
  - успешный start немедленно ставит running и запускает опрос;
  - опрос, увидевший running=false, ровно один раз переводит в completed
    и глушит дальнейший опрос;
  - отказ опроса — это "неизвестно": статус не трогаем, чтобы не дергать
    индикацию, следующая попытка на очередном тике;
  - свежие idle/initializing недостижимы опросом — только явный запуск
    или полный сброс (см. domain.CampaignStatus.CanTransition).
Опоздавшие ответы отсекаются поколением: после Reset результат старого
запроса в состояние не попадает.
*/

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/sentinel-console/internal/backend"
	"github.com/xela07ax/sentinel-console/internal/domain"
	"github.com/xela07ax/sentinel-console/internal/infra"
	"go.uber.org/zap"
)

var (
	ErrCampaignActive    = errors.New("campaign is already active")
	ErrCampaignNotActive = errors.New("no active campaign")
)

// API — операции внешнего сервиса, нужные трекеру
type API interface {
	StartCampaign(ctx context.Context, req backend.StartCampaignRequest) (*backend.StartCampaignResponse, error)
	StopCampaign(ctx context.Context) (*backend.StopCampaignResponse, error)
	CampaignStatus(ctx context.Context) (*backend.CampaignStatusResponse, error)
	ListRecords(ctx context.Context) ([]domain.Record, error)
}

// HistorySink — куда складываем выгруженную историю (слой слияния)
type HistorySink interface {
	IngestHistory(recs []domain.Record)
}

// Notifier — одноразовые уведомления пользователю
type Notifier interface {
	Push(level, text string)
}

// DefaultPollInterval — фиксированный шаг опроса статуса
const DefaultPollInterval = 3 * time.Second

type Tracker struct {
	api          API
	sink         HistorySink
	notifier     Notifier
	pollInterval time.Duration

	logger  *zap.Logger
	metrics *infra.Metrics

	mu         sync.Mutex
	campaign   domain.Campaign
	gen        uint64
	pollCancel context.CancelFunc
}

func NewTracker(api API, sink HistorySink, notifier Notifier, pollInterval time.Duration, logger *zap.Logger, metrics *infra.Metrics) *Tracker {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}
	return &Tracker{
		api:          api,
		sink:         sink,
		notifier:     notifier,
		pollInterval: pollInterval,
		logger:       logger.Named("tracker"),
		metrics:      metrics,
		campaign:     domain.Campaign{Status: domain.StatusIdle},
	}
}

// Snapshot — копия текущего состояния кампании
func (t *Tracker) Snapshot() domain.Campaign {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.campaign
}

// Start запускает кампанию. Явное действие пользователя — единственный
// легальный путь к свежему initializing. Отказ ставит failed с сообщением
// бэкенда и НЕ ретраится.
func (t *Tracker) Start(ctx context.Context, attackIDs []string, autoHeal bool) (domain.Campaign, error) {
	t.mu.Lock()
	if t.campaign.Status.Active() {
		current := t.campaign
		t.mu.Unlock()
		return current, ErrCampaignActive
	}

	// Явный перезапуск из idle/completed/failed: новое поколение
	t.gen++
	gen := t.gen
	t.campaign = domain.Campaign{Status: domain.StatusInitializing}
	t.mu.Unlock()

	resp, err := t.api.StartCampaign(ctx, backend.StartCampaignRequest{
		AttackIDs: attackIDs,
		AutoHeal:  autoHeal,
	})

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.gen != gen {
		// Пока запрос летел, состояние сбросили — результат уже никому не нужен
		return t.campaign, nil
	}

	if err != nil {
		t.campaign.Status = domain.StatusFailed
		t.campaign.Message = startFailureMessage(err)
		t.logger.Error("campaign start failed", zap.Error(err))
		t.notify("error", t.campaign.Message)
		return t.campaign, err
	}

	t.campaign = domain.Campaign{
		ID:      campaignID(resp),
		Status:  domain.StatusRunning,
		Summary: summaryFromResponse(resp.Summary),
		Skipped: resp.Skipped,
		Message: resp.Message,
	}
	t.logger.Info("campaign started",
		zap.String("campaign_id", t.campaign.ID),
		zap.Int("seeded_records", len(resp.Attacks)),
		zap.Int("skipped", len(resp.Skipped)))

	// Записи из ответа — тоже история: вливаем через слой слияния.
	// К моменту фактического вызова состояние могли сбросить — сверяем поколение
	if len(resp.Attacks) > 0 {
		seeded := resp.Attacks
		go func() {
			if t.generationIs(gen) {
				t.sink.IngestHistory(seeded)
			}
		}()
	}

	t.startPollingLocked()
	return t.campaign, nil
}

// Stop просит бэкенд остановить кампанию. Отвечаем фактом приема запроса,
// не дожидаясь фактического завершения — его увидит опрос.
func (t *Tracker) Stop(ctx context.Context) (domain.Campaign, error) {
	t.mu.Lock()
	if t.campaign.Status != domain.StatusRunning {
		current := t.campaign
		t.mu.Unlock()
		return current, ErrCampaignNotActive
	}
	gen := t.gen
	t.mu.Unlock()

	resp, err := t.api.StopCampaign(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.gen != gen {
		return t.campaign, nil
	}

	if err != nil {
		// Статус не трогаем: кампания, вероятно, все еще идет
		t.logger.Error("campaign stop failed", zap.Error(err))
		t.notify("error", fmt.Sprintf("Stop request failed: %v", err))
		return t.campaign, err
	}

	if t.campaign.Status.CanTransition(domain.StatusStopping) {
		t.campaign.Status = domain.StatusStopping
	}
	if resp.Message != "" {
		t.campaign.Message = resp.Message
	}
	t.logger.Info("campaign stop accepted", zap.Bool("accepted", resp.Accepted))
	return t.campaign, nil
}

// Reconcile — сверка при старте клиента: кампания могла быть запущена до
// того, как мы подключились. Ошибки сверки статус не меняют.
func (t *Tracker) Reconcile(ctx context.Context) {
	t.mu.Lock()
	gen := t.gen
	t.mu.Unlock()

	// Историю подтягиваем всегда: перезагрузка потеряла коллекцию
	if recs, err := t.api.ListRecords(ctx); err != nil {
		t.logger.Warn("initial history fetch failed", zap.Error(err))
	} else if t.generationIs(gen) {
		t.sink.IngestHistory(recs)
	}

	st, err := t.api.CampaignStatus(ctx)
	if err != nil {
		t.logger.Warn("initial status reconciliation failed", zap.Error(err))
		return
	}
	if !st.Running {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.campaign.Status.Active() {
		return
	}

	// Сервер уже гонит кампанию — принимаем running и начинаем опрос
	t.campaign = domain.Campaign{
		ID:     uuid.New().String(), // локальный корреляционный id: серверный нам неизвестен
		Status: domain.StatusRunning,
	}
	t.logger.Info("adopted campaign already running on server")
	t.startPollingLocked()
}

// Reset — полный сброс локального состояния (вместе с остановкой опроса).
// Коллекцию записей сбрасывает вызывающий: она принадлежит слою слияния.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopPollingLocked()
	t.gen++
	t.campaign = domain.Campaign{Status: domain.StatusIdle}
	t.logger.Info("campaign state reset", zap.Uint64("generation", t.gen))
}

// Polling — true, пока цикл опроса жив (для тестов и дашборда)
func (t *Tracker) Polling() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pollCancel != nil
}

// startPollingLocked запускает цикл опроса. Вызывается только под t.mu.
func (t *Tracker) startPollingLocked() {
	if t.pollCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.pollCancel = cancel
	gen := t.gen

	go t.pollLoop(ctx, gen)
}

// stopPollingLocked глушит цикл опроса. Вызывается только под t.mu.
func (t *Tracker) stopPollingLocked() {
	if t.pollCancel != nil {
		t.pollCancel()
		t.pollCancel = nil
	}
}

func (t *Tracker) pollLoop(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.poll(ctx, gen)
		}
	}
}

// poll — один шаг опроса. Отказ сети — "неизвестно": состояние не меняем,
// повторим на следующем тике. Так индикация не мигает при коротких сбоях.
func (t *Tracker) poll(ctx context.Context, gen uint64) {
	st, err := t.api.CampaignStatus(ctx)
	if err != nil {
		t.metrics.StatusPolls.WithLabelValues("error").Inc()
		t.logger.Debug("status poll failed, keeping last known state", zap.Error(err))
		return
	}
	t.metrics.StatusPolls.WithLabelValues("ok").Inc()

	if st.Running {
		// Кампания идет: заодно освежаем историю (дешевая сверка пропусков
		// push-канала). Отказ здесь так же не фатален. Выгрузку, пережившую
		// сброс, не вливаем — она из прошлого поколения.
		if recs, err := t.api.ListRecords(ctx); err == nil && t.generationIs(gen) {
			t.sink.IngestHistory(recs)
		}
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.gen != gen {
		return
	}
	if !t.campaign.Status.CanTransition(domain.StatusCompleted) {
		return
	}

	t.campaign.Status = domain.StatusCompleted
	// Более конкретное сообщение (из ответа start/stop) не перетираем
	if t.campaign.Message == "" {
		t.campaign.Message = "Campaign completed"
	}
	t.stopPollingLocked()

	t.logger.Info("campaign completed", zap.String("campaign_id", t.campaign.ID))
	t.notify("info", t.campaign.Message)
}

// generationIs — ответ, выданный до сброса, принадлежит прошлому поколению
func (t *Tracker) generationIs(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen == gen
}

func (t *Tracker) notify(level, text string) {
	if t.notifier != nil {
		t.notifier.Push(level, text)
	}
}

func campaignID(resp *backend.StartCampaignResponse) string {
	if resp.CampaignID != "" {
		return resp.CampaignID
	}
	if resp.Summary.ID != "" {
		return resp.Summary.ID
	}
	return uuid.New().String()
}

func summaryFromResponse(s backend.CampaignSummary) domain.Summary {
	return domain.Summary{
		Total:     s.TotalTests,
		Contained: s.Passed,
		Breached:  s.Failed,
	}
}

func startFailureMessage(err error) string {
	var be *backend.BackendError
	if errors.As(err, &be) {
		return be.Message
	}
	return fmt.Sprintf("Campaign start failed: %v", err)
}
