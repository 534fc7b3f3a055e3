package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Liveness push-канала (0 - разорван, 1 - подключен)
	StreamConnected prometheus.Gauge

	// Сколько раз планировали переподключение
	StreamReconnects prometheus.Counter

	// Принятые записи по источнику: live / fetched
	RecordsIngested *prometheus.CounterVec

	// Отброшенные push-сообщения (нет id/category, битый JSON)
	FramesDiscarded prometheus.Counter

	// Текущий размер объединенной коллекции
	MergedRecords prometheus.Gauge

	// Опросы статуса кампании по результату: ok / error
	StatusPolls *prometheus.CounterVec

	// Решения по лечению: approved / rejected / auto
	HealDecisions *prometheus.CounterVec

	// Состояние Circuit Breaker на командных вызовах (0 - закрыт, 1 - открыт)
	BreakerState prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		StreamConnected: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_stream_connected",
			Help: "Whether the attack push channel is currently connected.",
		}),

		StreamReconnects: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "sentinel_stream_reconnects_total",
			Help: "Total number of scheduled reconnect attempts.",
		}),

		RecordsIngested: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_records_ingested_total",
			Help: "Total number of records folded into the merged view.",
		}, []string{"source"}), // источники: live, fetched

		FramesDiscarded: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "sentinel_frames_discarded_total",
			Help: "Total number of push frames dropped as non-records.",
		}),

		MergedRecords: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_merged_records",
			Help: "Current size of the merged record collection.",
		}),

		StatusPolls: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_status_polls_total",
			Help: "Total number of campaign status polls by result.",
		}, []string{"result"}),

		HealDecisions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_heal_decisions_total",
			Help: "Total number of remediation decisions by kind.",
		}, []string{"decision"}),

		BreakerState: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_backend_breaker_state",
			Help: "Current state of the backend circuit breaker (0=closed, 1=open).",
		}),
	}
}
