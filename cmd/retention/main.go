// Точка входа сервиса хранения файлов мероприятий:
// загрузка гостями, выгрузка архива и плановая очистка по сроку хранения.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/slymnaltan/frame-app/retention/internal/api/handlers"
	"github.com/slymnaltan/frame-app/retention/internal/config"
	"github.com/slymnaltan/frame-app/retention/internal/domain/plan"
	"github.com/slymnaltan/frame-app/retention/internal/domain/retention"
	"github.com/slymnaltan/frame-app/retention/internal/server"
	"github.com/slymnaltan/frame-app/retention/internal/service"
	"github.com/slymnaltan/frame-app/retention/internal/storage/backend"
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	logger := config.SetupLogger(cfg)
	logger.Info("Сервис хранения запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("event_store", cfg.EventStore),
		slog.String("timezone", cfg.Timezone.String()),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("Сервис остановлен с ошибкой", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Сервис хранения остановлен")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Каталог тарифов
	catalog := plan.Default(logger)
	if cfg.PlansFile != "" {
		loaded, err := plan.LoadFile(cfg.PlansFile, logger)
		if err != nil {
			return err
		}
		logger.Info("Каталог тарифов загружен из файла",
			slog.String("path", cfg.PlansFile),
			slog.Int("rental_tiers", len(loaded.RentalTiers())),
			slog.Int("storage_tiers", len(loaded.StorageTiers())),
		)
		catalog = loaded
	}
	calc := retention.New(cfg.Timezone)

	// 2. Хранилище мероприятий
	store, err := openEventStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.close()

	// 3. Объектное хранилище
	selection, err := backend.Open(cfg, logger)
	if err != nil {
		return err
	}
	driver := selection.Driver

	// 4. Сервисы
	eventSvc := service.NewEventService(store.repo, catalog, calc, cfg.UploadBaseURL, logger)
	uploadSvc := service.NewUploadService(store.repo, driver, cfg.MaxFileSize, cfg.UploadCacheSize, cfg.UploadCacheTTL, logger)
	archiveSvc := service.NewArchiveService(store.repo, driver, logger)

	reaper := service.NewReaper(store.repo, driver, service.ReaperConfig{
		SafetyBuffer: cfg.CleanupSafetyBuffer,
		Workers:      cfg.CleanupWorkers,
		BatchLimit:   cfg.CleanupBatchLimit,
		EventTimeout: cfg.StorageTimeout,
	}, logger)
	defer reaper.Close()

	// 5. Планировщик очистки
	scheduler := service.NewScheduler(reaper, cfg.CleanupSchedule, cfg.Timezone, cfg.CleanupRunOnStart, logger)
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	// 6. topologymetrics: мониторинг зависимостей
	dephealthSvc := startDephealth(ctx, cfg, store, driver.Backend(), selection.Endpoint, logger)
	if dephealthSvc != nil {
		defer dephealthSvc.Stop()
	}

	// 7. Handlers
	srv := server.New(cfg, logger, server.Handlers{
		Health:      handlers.NewHealthHandler(store.ready, driver.Backend()),
		Maintenance: handlers.NewMaintenanceHandler(reaper),
		Events:      handlers.NewEventsHandler(eventSvc, uploadSvc, archiveSvc, logger),
	})

	// 8. HTTP-сервер до сигнала завершения. Отмена ctx прерывает идущую
	// очистку, затем defer'ы: dephealth, планировщик, reaper, хранилище
	err = srv.Run(ctx)
	cancel()
	return err
}

// startDephealth запускает мониторинг зависимостей.
// Ошибки не фатальны: сервис работает без topologymetrics.
func startDephealth(ctx context.Context, cfg *config.Config, store *eventStore, storageName, storageURL string, logger *slog.Logger) *service.DephealthService {
	svc, err := service.NewDephealthService(service.DephealthConfig{
		ServiceID:     serviceID(cfg.ServiceID),
		Group:         cfg.DephealthGroup,
		DB:            store.sqlDB,
		PGConnURL:     store.pgURL,
		StorageName:   storageName,
		StorageURL:    storageURL,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if errors.Is(err, service.ErrNoDependencies) {
		logger.Info("topologymetrics: нет внешних зависимостей для мониторинга")
		return nil
	}
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
		return nil
	}

	if err := svc.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
		return nil
	}
	logger.Info("topologymetrics запущен",
		slog.String("check_interval", cfg.DephealthCheckInterval.String()),
	)
	return svc
}
