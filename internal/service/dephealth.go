// dephealth.go: интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// Сервис хранения мониторит:
//   - PostgreSQL: SQL checker через существующий pgxpool (connection pool mode, critical)
//   - Объектное хранилище (S3 / Supabase): HTTP checker к endpoint'у backend'а
//
// Локальный backend и MongoDB/in-memory EventStore через dephealth не проверяются,
// их доступность видна в /health/ready.
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health: состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds: задержка проверки
//   - app_dependency_status: категория статуса
//   - app_dependency_status_detail: детальный статус
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрация HTTP checker factory
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrNoDependencies: нечего мониторить.
var ErrNoDependencies = errors.New("нет зависимостей для мониторинга")

// DephealthConfig: параметры мониторинга зависимостей.
type DephealthConfig struct {
	// ServiceID: имя вершины графа текущего приложения
	ServiceID string
	// Group: имя группы в метриках (FA_DEPHEALTH_GROUP)
	Group string
	// DB: *sql.DB поверх pgxpool (stdlib.OpenDBFromPool); nil: PostgreSQL не мониторится
	DB *sql.DB
	// PGConnURL: URL PostgreSQL для лейблов метрик, не для подключения
	PGConnURL string
	// StorageName: имя зависимости хранилища ("s3", "supabase")
	StorageName string
	// StorageURL: endpoint хранилища; пустой: хранилище не мониторится
	StorageURL string
	// CheckInterval: интервал проверки (FA_DEPHEALTH_CHECK_INTERVAL)
	CheckInterval time.Duration
}

// DephealthService: сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
func NewDephealthService(cfg DephealthConfig, logger *slog.Logger) (*DephealthService, error) {
	return newDephealthService(cfg, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(cfg DephealthConfig, logger *slog.Logger, registerer prometheus.Registerer) (*DephealthService, error) {
	return newDephealthService(cfg, logger, dephealth.WithRegisterer(registerer))
}

func newDephealthService(cfg DephealthConfig, logger *slog.Logger, extraOpts ...dephealth.Option) (*DephealthService, error) {
	opts := []dephealth.Option{dephealth.WithLogger(logger)}

	if cfg.DB != nil {
		opts = append(opts, dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(cfg.DB)),
			dephealth.FromURL(cfg.PGConnURL),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
		))
	}

	if cfg.StorageURL != "" {
		storageOpts := []dephealth.DependencyOption{
			dephealth.FromURL(cfg.StorageURL),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(false),
		}
		if strings.HasPrefix(cfg.StorageURL, "https://") {
			storageOpts = append(storageOpts, dephealth.WithHTTPTLSSkipVerify(false))
		}
		name := cfg.StorageName
		if name == "" {
			name = "object-storage"
		}
		opts = append(opts, dephealth.HTTP(name, storageOpts...))
	}

	if len(opts) == 1 {
		return nil, ErrNoDependencies
	}
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(cfg.ServiceID, cfg.Group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ: "зависимость:host:port", значение: true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
