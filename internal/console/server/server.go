package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xela07ax/sentinel-console/internal/backend"
	"github.com/xela07ax/sentinel-console/internal/console/handler"
	"go.uber.org/zap"
)

// HealthChecker — проверка живости внешнего сервиса
type HealthChecker interface {
	Health(ctx context.Context) (*backend.HealthResponse, error)
}

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger

	health   HealthChecker
	registry *prometheus.Registry

	// Обработчики бизнес-доменов
	recordsHandler  *handler.RecordsHandler  // /api/records
	campaignHandler *handler.CampaignHandler // /api/campaign
	healHandler     *handler.HealHandler     // /api/heal
	settingsHandler *handler.SettingsHandler // /api/settings
	rulesHandler    *handler.RulesHandler    // /api/rules
	statsHandler    *handler.StatsHandler    // /api/stats, /api/notifications
}

// NewConsoleServer инициализирует HTTP-слой консоли со всеми зависимостями
func NewConsoleServer(
	logger *zap.Logger,
	health HealthChecker,
	registry *prometheus.Registry,
	recordsH *handler.RecordsHandler,
	campaignH *handler.CampaignHandler,
	healH *handler.HealHandler,
	settingsH *handler.SettingsHandler,
	rulesH *handler.RulesHandler,
	statsH *handler.StatsHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:          chi.NewRouter(),
		logger:          logger.Named("console-api"),
		health:          health,
		registry:        registry,
		recordsHandler:  recordsH,
		campaignHandler: campaignH,
		healHandler:     healH,
		settingsHandler: settingsH,
		rulesHandler:    rulesH,
		statsHandler:    statsH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- Глобальные инфраструктурные Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Healthcheck: свой статус плюс сквозная проверка бэкенда
	r.Get("/health", s.handleHealth)

	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		// Объединенная коллекция записей
		r.Route("/records", func(r chi.Router) {
			r.Get("/", s.recordsHandler.List)    // Слитый список (fetch + push)
			r.Post("/", s.recordsHandler.Submit) // Одиночная атака вне кампании
		})

		// Жизненный цикл кампании
		r.Route("/campaign", func(r chi.Router) {
			r.Get("/", s.campaignHandler.Get)
			r.Post("/start", s.campaignHandler.Start)
			r.Post("/stop", s.campaignHandler.Stop)
			r.Post("/reset", s.campaignHandler.Reset) // Полный локальный сброс
		})

		// Подтверждение лечения (HITL)
		r.Route("/heal/{id}", func(r chi.Router) {
			r.Post("/approve", s.healHandler.Approve)
			r.Post("/reject", s.healHandler.Reject)
		})

		// Пользовательские настройки
		r.Route("/settings", func(r chi.Router) {
			r.Get("/", s.settingsHandler.Get)
			r.Put("/", s.settingsHandler.Put)
		})

		// Защитные правила: baseline + вакцины
		r.Route("/rules", func(r chi.Router) {
			r.Get("/", s.rulesHandler.List)
			r.Post("/reset", s.rulesHandler.Reset)
			r.Get("/raw", s.rulesHandler.Raw)
			r.Route("/{id}", func(r chi.Router) {
				r.Patch("/", s.rulesHandler.Toggle)
				r.Delete("/", s.rulesHandler.Delete)
			})
		})

		// Дашборд и одноразовые уведомления
		r.Get("/stats", s.statsHandler.Dashboard)
		r.Get("/notifications", s.statsHandler.Notifications)
	})
}

// handleHealth отвечает degraded, если бэкенд недоступен: консоль сама по
// себе жива, но полезность без бэкенда ограничена — пусть видит мониторинг.
func (s *ConsoleServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	type healthView struct {
		Status  string `json:"status"`
		Backend string `json:"backend"`
	}

	view := healthView{Status: "ok", Backend: "ok"}
	status := http.StatusOK
	if _, err := s.health.Health(r.Context()); err != nil {
		view.Status = "degraded"
		view.Backend = err.Error()
		status = http.StatusServiceUnavailable
		s.logger.Debug("backend health probe failed", zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(view)
}

func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
