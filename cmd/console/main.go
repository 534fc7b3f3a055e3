package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/xela07ax/sentinel-console/internal/backend"
	"github.com/xela07ax/sentinel-console/internal/campaign"
	"github.com/xela07ax/sentinel-console/internal/console/handler"
	"github.com/xela07ax/sentinel-console/internal/console/server"
	"github.com/xela07ax/sentinel-console/internal/console/service"
	"github.com/xela07ax/sentinel-console/internal/heal"
	"github.com/xela07ax/sentinel-console/internal/infra"
	"github.com/xela07ax/sentinel-console/internal/rules"
	"github.com/xela07ax/sentinel-console/internal/settings"
	"github.com/xela07ax/sentinel-console/internal/store"
	"github.com/xela07ax/sentinel-console/internal/stream"
)

func main() {
	// 1. Инфраструктура: конфиг, логгер, метрики
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	reg := prometheus.NewRegistry()
	metrics := infra.NewMetrics(reg)

	// 2. Локальное состояние: настройки пользователя (единственный
	// персистентный артефакт клиента) и объединенная коллекция записей
	userSettings, err := settings.Load(cfg.State.Dir, logger)
	if err != nil {
		logger.Fatal("failed to load user settings", zap.Error(err))
	}

	records := store.New(cfg.Sync.RecordCapacity, logger, metrics)

	// 3. Клиент бэкенда + транспортные политики
	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.RequestTimeout, logger)
	api := backend.NewReliability(client, logger, metrics)

	// 4. Доменные слои (Dependency Injection)
	guardrails := rules.NewService(api, logger)
	notifier := service.NewNotifier(0, logger)
	workflow := heal.NewWorkflow(records, api, userSettings, guardrails, notifier, logger, metrics)
	tracker := campaign.NewTracker(api, workflow, notifier, cfg.Sync.PollInterval, logger, metrics)
	connector := stream.NewConnector(cfg.Backend.StreamURL, workflow, cfg.Sync.ReconnectDelay, logger, metrics)

	// Контекст жизненного цикла фоновых горутин
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 5. Сверка с сервером: кампания могла стартовать до нас, история
	// нужна в любом случае. Дальше — живой push-канал.
	tracker.Reconcile(appCtx)
	connector.Connect(appCtx)

	if err := guardrails.Refresh(appCtx); err != nil {
		logger.Warn("initial rules fetch failed, baseline view only", zap.Error(err))
	}

	// 6. HTTP-слой консоли
	consoleSrv := server.NewConsoleServer(
		logger,
		api,
		reg,
		handler.NewRecordsHandler(records, api, workflow, guardrails),
		handler.NewCampaignHandler(tracker, userSettings, records),
		handler.NewHealHandler(workflow),
		handler.NewSettingsHandler(userSettings),
		handler.NewRulesHandler(guardrails, logger),
		handler.NewStatsHandler(records, tracker, connector, guardrails, notifier),
	)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      consoleSrv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 7. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("sentinel console started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("sentinel console stopping")

	connector.Disconnect()
	tracker.Reset()

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	logger.Info("sentinel console exited properly")
}
