package store

/*
Пакет store владеет канонической коллекцией записей атак.

Это единственное место, где коллекция мутирует: коннектор и трекер —
только производители, они отдают кандидатов через UpsertLive/MergeFetched,
а воркфлоу лечения меняет состояние подтверждения через SetApproval.
Правило приоритета при конфликте id: живой push бьет выгруженную историю,
потому что push по определению свежее.
*/

import (
	"errors"
	"sort"
	"sync"

	"github.com/xela07ax/sentinel-console/internal/domain"
	"github.com/xela07ax/sentinel-console/internal/infra"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("record not found")

// DefaultCapacity — потолок объединенной коллекции
const DefaultCapacity = 50

type RecordStore struct {
	mu sync.RWMutex

	// order хранит id, самые свежие в начале; byID — сами записи
	order []string
	byID  map[string]*domain.Record

	capacity int

	logger  *zap.Logger
	metrics *infra.Metrics
}

func New(capacity int, logger *zap.Logger, metrics *infra.Metrics) *RecordStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}
	return &RecordStore{
		order:    make([]string, 0, capacity),
		byID:     make(map[string]*domain.Record, capacity),
		capacity: capacity,
		logger:   logger.Named("records"),
		metrics:  metrics,
	}
}

// UpsertLive вставляет или заменяет запись, пришедшую push-каналом.
// Новые id встают в начало; у известных — позиция сохраняется, изменяемые
// поля перезаписываются по принципу last-write-wins.
// Возвращает true, если id увиден впервые: потребители реагируют на
// запись один раз, а не на каждую повторную сверку.
func (rs *RecordStore) UpsertLive(rec domain.Record) bool {
	rec.Origin = domain.OriginLive

	rs.mu.Lock()
	defer rs.mu.Unlock()

	fresh := rs.upsert(rec, true)
	rs.metrics.RecordsIngested.WithLabelValues("live").Inc()
	rs.metrics.MergedRecords.Set(float64(len(rs.order)))
	return fresh
}

// MergeFetched вливает выгруженную историю. Для id, уже пришедших живым
// каналом, содержимое не трогаем — история считается более старой.
// Возвращает id, появившиеся в коллекции впервые.
func (rs *RecordStore) MergeFetched(recs []domain.Record) []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	var fresh []string
	for _, rec := range recs {
		rec.Origin = domain.OriginFetched
		if rs.upsert(rec, false) {
			fresh = append(fresh, rec.ID)
		}
	}
	rs.metrics.RecordsIngested.WithLabelValues("fetched").Add(float64(len(recs)))
	rs.metrics.MergedRecords.Set(float64(len(rs.order)))
	return fresh
}

// upsert — общая точка слияния, true = id новый. Вызывается только под rs.mu.
func (rs *RecordStore) upsert(rec domain.Record, live bool) bool {
	if !rec.Valid() {
		// Сюда доходить не должно: коннектор фильтрует раньше
		rs.logger.Debug("upsert skipped: record without id or category")
		return false
	}

	existing, known := rs.byID[rec.ID]
	if known {
		if !live && existing.Origin == domain.OriginLive {
			// История не перетирает живую запись
			return false
		}
		// Инвариант: id и время создания не меняются после первого появления
		rec.ID = existing.ID
		if !existing.CreatedAt.IsZero() {
			rec.CreatedAt = existing.CreatedAt
		}
		// Решение по лечению не теряем, если новая версия его не несет
		if rec.Approval == domain.ApprovalNone {
			rec.Approval = existing.Approval
		}
		if rec.Heal == nil {
			rec.Heal = existing.Heal
		}
		*existing = rec
		return false
	}

	// Новый id — в начало упорядоченного представления
	clone := rec
	rs.byID[rec.ID] = &clone
	rs.order = append([]string{rec.ID}, rs.order...)

	// Вытесняем самые старые с хвоста, никогда — свежие
	for len(rs.order) > rs.capacity {
		last := rs.order[len(rs.order)-1]
		rs.order = rs.order[:len(rs.order)-1]
		delete(rs.byID, last)
	}
	return true
}

// SetApproval — единственный способ поменять состояние подтверждения.
// Вызывается воркфлоу лечения; хранилище остается единственным писателем.
func (rs *RecordStore) SetApproval(id string, state domain.ApprovalState, heal *domain.HealAction) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	rec, ok := rs.byID[id]
	if !ok {
		return ErrNotFound
	}

	rec.Approval = state
	if heal != nil {
		rec.Heal = heal
	}
	return nil
}

// Get возвращает копию записи
func (rs *RecordStore) Get(id string) (domain.Record, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	rec, ok := rs.byID[id]
	if !ok {
		return domain.Record{}, false
	}
	return *rec, true
}

// Snapshot — копия коллекции в порядке вставки (самые свежие первыми)
func (rs *RecordStore) Snapshot() []domain.Record {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	out := make([]domain.Record, 0, len(rs.order))
	for _, id := range rs.order {
		out = append(out, *rs.byID[id])
	}
	return out
}

// SnapshotByTime — представление для отображения. Порядок вставки не
// отражает причинность (источники гонятся), поэтому сортируем по времени
// создания записи, свежие первыми.
func (rs *RecordStore) SnapshotByTime() []domain.Record {
	out := rs.Snapshot()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt.Time)
	})
	return out
}

// Stats — агрегаты для дашборда
func (rs *RecordStore) Stats() (total, contained, breached, pending int) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	for _, id := range rs.order {
		rec := rs.byID[id]
		total++
		if rec.Breached {
			breached++
		} else {
			contained++
		}
		if rec.Approval == domain.ApprovalPending {
			pending++
		}
	}
	return
}

func (rs *RecordStore) Len() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.order)
}

// Reset очищает коллекцию. Защита от опоздавших выгрузок — забота того,
// кто их запрашивает (поколение трекера): хранилище само не знает, когда
// был выдан запрос.
func (rs *RecordStore) Reset() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.order = rs.order[:0]
	rs.byID = make(map[string]*domain.Record, rs.capacity)
	rs.metrics.MergedRecords.Set(0)
	rs.logger.Info("record collection reset")
}
