package heal

/*
Пакет heal ведет состояние подтверждения лечения по каждой пробитой атаке.

Если тумблер автолечения включен — бэкенд уже вылечился сам, клиенту
остается отрисовать прикрепленную вакцину. Если выключен — запись висит
в pending до явного approve/reject оператора.

Правила разрешения конфликтов (воркфлоу сериализован мьютексом, поэтому
"одновременные" решения упорядочиваются и побеждает последнее):
  - повторное решение в ту же сторону по уже решенной записи — тихий no-op;
  - противоположное решение после резолюции — явная ошибка
    ErrDecisionConflict: это признак рассинхронизации воркфлоу, его
    нельзя глотать.

Тумблер читается через живую ссылку на настройки в момент события, а не
из копии, захваченной при планировании — настройки меняются в полете.
*/

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/xela07ax/sentinel-console/internal/backend"
	"github.com/xela07ax/sentinel-console/internal/domain"
	"github.com/xela07ax/sentinel-console/internal/infra"
	"github.com/xela07ax/sentinel-console/internal/store"
	"go.uber.org/zap"
)

var (
	// ErrDecisionConflict — противоположное решение по уже решенной записи
	ErrDecisionConflict = errors.New("remediation already resolved with the opposite decision")
	// ErrNotPending — запись не ждет подтверждения
	ErrNotPending = errors.New("record is not awaiting remediation approval")
	// ErrUnknownRecord — записи нет в объединенной коллекции
	ErrUnknownRecord = errors.New("unknown record")
)

// API — операции лечения внешнего сервиса
type API interface {
	ApproveHeal(ctx context.Context, id string) (*backend.HealDecisionResponse, error)
	RejectHeal(ctx context.Context, id string) (*backend.HealDecisionResponse, error)
}

// SettingsProvider — живое чтение настроек в момент решения
type SettingsProvider interface {
	AutoHeal() bool
	AlertRank() int
}

// Coverage — учет категорий, уже закрытых вакциной (для skip-логики кампаний)
type Coverage interface {
	MarkCovered(category, action string)
}

// Notifier — одноразовые уведомления пользователю
type Notifier interface {
	Push(level, text string)
}

// Workflow — входная точка обоих потоков данных (push и история) и
// владелец решений по лечению. Саму коллекцию мутирует только RecordStore.
type Workflow struct {
	mu sync.Mutex

	records  *store.RecordStore
	api      API
	settings SettingsProvider
	coverage Coverage
	notifier Notifier

	logger  *zap.Logger
	metrics *infra.Metrics
}

func NewWorkflow(records *store.RecordStore, api API, settings SettingsProvider, coverage Coverage, notifier Notifier, logger *zap.Logger, metrics *infra.Metrics) *Workflow {
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}
	return &Workflow{
		records:  records,
		api:      api,
		settings: settings,
		coverage: coverage,
		notifier: notifier,
		logger:   logger.Named("heal"),
		metrics:  metrics,
	}
}

// Ingest — живой push: упсертим в коллекцию и оцениваем необходимость
// ручного подтверждения. Реализует stream.RecordSink.
func (w *Workflow) Ingest(rec domain.Record) {
	fresh := w.records.UpsertLive(rec)
	w.observe(rec.ID, fresh)
}

// IngestHistory — выгруженная история. Реализует campaign.HistorySink.
// Опрос статуса освежает историю каждым тиком, поэтому одна и та же
// запись приходит сюда многократно — разовые реакции гейтим по fresh.
func (w *Workflow) IngestHistory(recs []domain.Record) {
	freshIDs := w.records.MergeFetched(recs)
	fresh := make(map[string]struct{}, len(freshIDs))
	for _, id := range freshIDs {
		fresh[id] = struct{}{}
	}
	for _, rec := range recs {
		_, isFresh := fresh[rec.ID]
		w.observe(rec.ID, isFresh)
	}
}

// observe смотрит на слитую версию записи (не на кандидата: его могла
// перекрыть более свежая live-версия) и при необходимости ставит pending.
// fresh = запись впервые в коллекции: оповещение и учет автолечения
// срабатывают один раз на запись, а не на каждую повторную сверку.
func (w *Workflow) observe(id string, fresh bool) {
	rec, ok := w.records.Get(id)
	if !ok {
		return // вытеснена потолком коллекции
	}

	if fresh && bool(rec.Breached) && rec.Severity.Rank() >= w.settings.AlertRank() {
		w.notify("alert", fmt.Sprintf("%s breach: %s", rec.Severity, rec.Category))
	}

	if !rec.Breached || rec.Approval != domain.ApprovalNone {
		return
	}

	if rec.Heal != nil {
		// Вакцина уже прикреплена — бэкенд вылечился сам (автолечение)
		if fresh {
			w.metrics.HealDecisions.WithLabelValues("auto").Inc()
		}
		// Покрытие категорий идемпотентно, его сверяем всегда
		if w.coverage != nil {
			w.coverage.MarkCovered(rec.Heal.Category, rec.Heal.Action)
		}
		return
	}

	if w.settings.AutoHeal() {
		// Тумблер включен: лечение — забота бэкенда, подтверждения не ждем
		return
	}

	if err := w.records.SetApproval(id, domain.ApprovalPending, nil); err == nil {
		w.logger.Info("record held for remediation approval",
			zap.String("id", id),
			zap.String("category", rec.Category))
	}
}

// Approve подтверждает лечение: просим бэкенд применить вакцину и
// прикрепляем результат к записи.
func (w *Workflow) Approve(ctx context.Context, id string) (domain.Record, error) {
	return w.decide(ctx, id, true)
}

// Reject отклоняет лечение: pending снимается, вакцина не применяется.
func (w *Workflow) Reject(ctx context.Context, id string) (domain.Record, error) {
	return w.decide(ctx, id, false)
}

func (w *Workflow) decide(ctx context.Context, id string, approve bool) (domain.Record, error) {
	// Мьютекс держим на все решение, включая сетевой вызов:
	// решения строго упорядочены, параллельных approve/reject не бывает
	w.mu.Lock()
	defer w.mu.Unlock()

	rec, ok := w.records.Get(id)
	if !ok {
		return domain.Record{}, ErrUnknownRecord
	}

	target := domain.ApprovalApproved
	if !approve {
		target = domain.ApprovalRejected
	}

	switch rec.Approval {
	case domain.ApprovalPending:
		// Продолжаем
	case target:
		// Повторное решение в ту же сторону — тихий no-op
		w.logger.Debug("duplicate remediation decision ignored",
			zap.String("id", id), zap.String("decision", string(target)))
		return rec, nil
	case domain.ApprovalApproved, domain.ApprovalRejected:
		// Противоположное решение после резолюции — рассинхронизация воркфлоу
		return rec, fmt.Errorf("record %s: %w", id, ErrDecisionConflict)
	default:
		return rec, fmt.Errorf("record %s: %w", id, ErrNotPending)
	}

	if approve {
		resp, err := w.api.ApproveHeal(ctx, id)
		if err != nil {
			w.notify("error", fmt.Sprintf("Remediation approval failed: %v", err))
			return rec, fmt.Errorf("approve remediation: %w", err)
		}
		if err := w.records.SetApproval(id, domain.ApprovalApproved, resp.Heal); err != nil {
			return rec, err
		}
		if resp.Heal != nil && w.coverage != nil {
			w.coverage.MarkCovered(resp.Heal.Category, resp.Heal.Action)
		}
		w.metrics.HealDecisions.WithLabelValues("approved").Inc()
		w.logger.Info("remediation approved", zap.String("id", id))
	} else {
		if _, err := w.api.RejectHeal(ctx, id); err != nil {
			w.notify("error", fmt.Sprintf("Remediation rejection failed: %v", err))
			return rec, fmt.Errorf("reject remediation: %w", err)
		}
		if err := w.records.SetApproval(id, domain.ApprovalRejected, nil); err != nil {
			return rec, err
		}
		w.metrics.HealDecisions.WithLabelValues("rejected").Inc()
		w.logger.Info("remediation rejected", zap.String("id", id))
	}

	updated, _ := w.records.Get(id)
	return updated, nil
}

func (w *Workflow) notify(level, text string) {
	if w.notifier != nil {
		w.notifier.Push(level, text)
	}
}
